package metrics

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseNetworks(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    int
	}{
		{"empty list", nil, 0},
		{"single IP", []string{"192.168.1.1"}, 1},
		{"CIDR notation", []string{"192.168.0.0/16", "10.0.0.0/8"}, 2},
		{"blank entries skipped", []string{" ", "10.0.0.1"}, 1},
		{"invalid skipped", []string{"192.168.1.1", "invalid", "10.0.0.0/33"}, 1},
		{"IPv6", []string{"::1", "fe80::/10"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseNetworks(tt.entries, discardLogger())
			if len(got) != tt.want {
				t.Errorf("parseNetworks() returned %d networks, want %d", len(got), tt.want)
			}
		})
	}
}

func TestIsIPAllowed(t *testing.T) {
	s := NewServer(New(), ServerOptions{AllowedIPs: []string{
		"192.168.1.100",
		"10.0.0.0/8",
		"::1",
	}}, discardLogger())

	tests := []struct {
		ip      string
		allowed bool
	}{
		{"192.168.1.100", true},
		{"192.168.1.101", false},
		{"10.255.255.255", true},
		{"11.0.0.1", false},
		{"::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := s.isIPAllowed(net.ParseIP(tt.ip)); got != tt.allowed {
				t.Errorf("isIPAllowed(%s) = %v, want %v", tt.ip, got, tt.allowed)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.168.1.100:12345", nil, "192.168.1.100"},
		{"forwarded chain", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.1"}, "10.0.0.1"},
		{"real ip", "127.0.0.1:1", map[string]string{"X-Real-IP": "172.16.0.1"}, "172.16.0.1"},
		{
			"forwarded wins",
			"127.0.0.1:1",
			map[string]string{"X-Forwarded-For": "10.0.0.1", "X-Real-IP": "172.16.0.1"},
			"10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			ip := clientIP(req)
			if ip == nil || ip.String() != tt.want {
				t.Errorf("clientIP() = %v, want %s", ip, tt.want)
			}
		})
	}
}

func TestHandlerFiltersMetricsButNotHealth(t *testing.T) {
	m := New()
	m.DispatchBatchesTotal.Inc()
	s := NewServer(m, ServerOptions{AllowedIPs: []string{"192.168.1.0/24"}}, discardLogger())
	h := s.Handler()

	tests := []struct {
		name       string
		path       string
		remoteAddr string
		wantStatus int
	}{
		{"allowed scrape", "/metrics", "192.168.1.10:5000", http.StatusOK},
		{"denied scrape", "/metrics", "10.0.0.1:5000", http.StatusForbidden},
		{"health is open", "/health", "10.0.0.1:5000", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "192.168.1.10:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "letterpress_dispatch_batches_total") {
		t.Error("expected dispatch batch counter in scrape output")
	}
}
