package main

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/letterpress/internal/config"
)

func TestHashToken(t *testing.T) {
	hash, err := hashToken("0123456789abcdef")
	if err != nil {
		t.Fatalf("hashToken() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("0123456789abcdef")); err != nil {
		t.Errorf("hash does not match token: %v", err)
	}

	if _, err := hashToken("short"); err == nil {
		t.Error("expected error for short token")
	}
}

func TestDescribeStorage(t *testing.T) {
	if got := describeStorage(config.StorageConfig{Type: "bolt", Path: "/tmp/lp.db"}); got != "bolt /tmp/lp.db" {
		t.Errorf("bolt = %q", got)
	}
	got := describeStorage(config.StorageConfig{Type: "redis", Redis: config.RedisConfig{Addr: "cache:6379", DB: 2}})
	if got != "redis cache:6379 db 2" {
		t.Errorf("redis = %q", got)
	}
}

func TestReadOptionalFile(t *testing.T) {
	if s, err := readOptionalFile(""); err != nil || s != "" {
		t.Errorf("empty path: %q, %v", s, err)
	}

	path := filepath.Join(t.TempDir(), "issue.md")
	if err := os.WriteFile(path, []byte("# Issue 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if s, err := readOptionalFile(path); err != nil || s != "# Issue 1" {
		t.Errorf("readOptionalFile() = %q, %v", s, err)
	}

	if _, err := readOptionalFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCommandTree(t *testing.T) {
	want := [][]string{
		{"serve"},
		{"config", "validate"},
		{"version"},
		{"newsletter", "create"},
		{"newsletter", "list"},
		{"newsletter", "send"},
		{"newsletter", "stats"},
		{"subscriber", "add"},
		{"subscriber", "list"},
		{"subscriber", "remove"},
		{"token", "hash"},
		{"test", "send"},
	}
	for _, path := range want {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not registered", path)
		}
	}
}
