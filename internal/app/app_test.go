package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/letterpress/internal/campaign"
	"github.com/foxzi/letterpress/internal/config"
	"github.com/foxzi/letterpress/internal/newsletter"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Parse([]byte(`
server:
  base_url: https://news.example.com
storage:
  type: bolt
  path: ` + filepath.Join(t.TempDir(), "app.db") + `
transport:
  type: log
  from: news@example.com
dispatch:
  batch_size: 2
  batch_delay: 1ms
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestSetupLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.Debug("details")
	if !strings.Contains(buf.String(), "msg=details") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestCoreSendsThroughLogTransport(t *testing.T) {
	cfg := testConfig(t)
	var logs bytes.Buffer
	ctx := context.Background()

	core, err := NewCore(ctx, cfg, NewLogger(cfg.Logging, &logs))
	if err != nil {
		t.Fatalf("NewCore() error = %v", err)
	}
	defer core.Close()

	if core.Transport.Err() != nil {
		t.Fatalf("transport error = %v", core.Transport.Err())
	}

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := core.Campaign.Subscribe(ctx, email, "", ""); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", email, err)
		}
	}

	n, err := core.Campaign.CreateNewsletter(ctx, campaign.NewsletterInput{
		Title:   "Issue 1",
		Content: "Hello {{name}}",
	})
	if err != nil {
		t.Fatalf("CreateNewsletter() error = %v", err)
	}

	report, err := core.Campaign.Send(ctx, n.ID)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if report.Sent != 3 || report.Failed != 0 || report.Batches != 2 {
		t.Errorf("report = %+v", report)
	}

	stats, err := core.Analytics.StatsFor(ctx, n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats[newsletter.EventSent] != 3 {
		t.Errorf("sent events = %d, want 3", stats[newsletter.EventSent])
	}
}
