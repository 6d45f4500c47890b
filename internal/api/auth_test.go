package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/config"
)

func TestAuthMiddleware_RequireAuth_NoTokenLocalOnly(t *testing.T) {
	cfg := &config.API{}

	middleware, err := NewAuthMiddleware(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("failed to create auth middleware: %v", err)
	}
	defer middleware.Close()

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})

	req := httptest.NewRequest(http.MethodPost, "/queue/speakers/enqueue", nil)
	req.RemoteAddr = "8.8.8.8:12345"
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for non-local request with no token configured, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/queue/speakers/enqueue", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 for local request with no token configured, got %d", w.Code)
	}
}

func TestAuthMiddleware_RequireAuth_TokenAuth(t *testing.T) {
	cfg := &config.API{AuthToken: "valid-token-123456"}

	middleware, err := NewAuthMiddleware(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("failed to create auth middleware: %v", err)
	}
	defer middleware.Close()

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})

	req := httptest.NewRequest(http.MethodPost, "/queue/speakers/enqueue", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/queue/speakers/enqueue", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	req.Header.Set("Authorization", "Bearer invalid-token")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 with invalid token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/queue/speakers/enqueue", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	req.Header.Set("Authorization", "Bearer valid-token-123456")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 with valid token, got %d", w.Code)
	}
}

func TestAuthMiddleware_NonControlEndpoint(t *testing.T) {
	cfg := &config.API{AuthToken: "valid-token-123456"}

	middleware, err := NewAuthMiddleware(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("failed to create auth middleware: %v", err)
	}
	defer middleware.Close()

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})

	req := httptest.NewRequest(http.MethodGet, "/queue/speakers", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 for read-only endpoint without auth, got %d", w.Code)
	}
}

func TestAuthMiddleware_AuditLogging(t *testing.T) {
	tmpDir := t.TempDir()
	auditPath := filepath.Join(tmpDir, "audit.log")

	cfg := &config.API{AuthToken: "valid-token-123456", AuditLog: auditPath}

	middleware, err := NewAuthMiddleware(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("failed to create auth middleware: %v", err)
	}
	defer middleware.Close()

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})

	req := httptest.NewRequest(http.MethodPost, "/queue/speakers/enqueue", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	req.Header.Set("Authorization", "Bearer valid-token-123456")
	req.Header.Set("User-Agent", "test-client/1.0")
	w := httptest.NewRecorder()
	handler(w, req)

	time.Sleep(10 * time.Millisecond)

	auditData, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}
	if len(auditData) == 0 {
		t.Fatal("audit log is empty")
	}

	var event AuditEvent
	if err := json.Unmarshal(bytes.TrimSpace(auditData), &event); err != nil {
		t.Fatalf("failed to parse audit event: %v", err)
	}
	if event.Method != "POST" {
		t.Errorf("expected method POST, got %s", event.Method)
	}
	if event.Path != "/queue/speakers/enqueue" {
		t.Errorf("expected path /queue/speakers/enqueue, got %s", event.Path)
	}
	if !event.Authorized {
		t.Error("expected authorized=true")
	}
	if event.Token != "vali****" {
		t.Errorf("expected truncated token 'vali****', got %s", event.Token)
	}
	if event.UserAgent != "test-client/1.0" {
		t.Errorf("expected user agent 'test-client/1.0', got %s", event.UserAgent)
	}
}

func TestIsControlEndpoint(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		expected bool
	}{
		{"POST", "/queue/speakers/enqueue", true},
		{"POST", "/queue/displays/enqueue", true},
		{"GET", "/queue/speakers/enqueue", false},
		{"GET", "/queue/speakers", false},
		{"POST", "/queue/speakers", false},
		{"POST", "/status", false},
	}

	for _, tt := range tests {
		actual := isControlEndpoint(tt.method, tt.path)
		if actual != tt.expected {
			t.Errorf("isControlEndpoint(%s, %s) = %v, expected %v", tt.method, tt.path, actual, tt.expected)
		}
	}
}

func TestIsLocalRequest(t *testing.T) {
	tests := []struct {
		remoteAddr string
		expected   bool
	}{
		{"127.0.0.1:12345", true},
		{"[::1]:12345", true},
		{"192.168.1.100:12345", true},
		{"10.0.0.1:12345", true},
		{"172.16.0.1:12345", true},
		{"8.8.8.8:12345", false},
		{"1.1.1.1:12345", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		actual := isLocalRequest(tt.remoteAddr)
		if actual != tt.expected {
			t.Errorf("isLocalRequest(%s) = %v, expected %v", tt.remoteAddr, actual, tt.expected)
		}
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header   string
		expected string
	}{
		{"Bearer token123", "token123"},
		{"bearer token123", "token123"},
		{"BEARER token123", "token123"},
		{"Basic token123", ""},
		{"Bearer", ""},
		{"", ""},
		{"token123", ""},
		{"Bearer token_with_underscores", "token_with_underscores"},
		{"Bearer token with spaces", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		actual := extractToken(req)
		if actual != tt.expected {
			t.Errorf("extractToken(%q) = %q, expected %q", tt.header, actual, tt.expected)
		}
	}
}
