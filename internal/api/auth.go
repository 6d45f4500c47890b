package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/config"
)

// AuthMiddleware gates the queue control endpoints behind a bearer token
// and records an audit trail of who hit them.
type AuthMiddleware struct {
	config    *config.API
	logger    *slog.Logger
	auditFile *os.File
}

// NewAuthMiddleware creates a new auth middleware. If cfg.AuditLog is set,
// it opens (creating if needed) an append-only audit log file.
func NewAuthMiddleware(cfg *config.API, logger *slog.Logger) (*AuthMiddleware, error) {
	am := &AuthMiddleware{
		config: cfg,
		logger: logger,
	}

	if cfg.AuditLog != "" {
		f, err := os.OpenFile(cfg.AuditLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log %q: %w", cfg.AuditLog, err)
		}
		am.auditFile = f
	}

	return am, nil
}

// Close closes the audit log file.
func (am *AuthMiddleware) Close() error {
	if am.auditFile != nil {
		return am.auditFile.Close()
	}
	return nil
}

// AuditEvent represents an audit log entry.
type AuditEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	RemoteAddr string    `json:"remote_addr"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Authorized bool      `json:"authorized"`
	Token      string    `json:"token,omitempty"`
	Error      string    `json:"error,omitempty"`
	Duration   string    `json:"duration"`
}

func (am *AuthMiddleware) logAuditEvent(event AuditEvent) {
	if am.auditFile == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		am.logger.Error("failed to marshal audit event", "error", err)
		return
	}
	if _, err := am.auditFile.Write(append(data, '\n')); err != nil {
		am.logger.Error("failed to write audit event", "error", err)
	}
}

// truncateToken returns a redacted prefix of token suitable for logging.
func truncateToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "****"
}

// isLocalRequest reports whether remoteAddr looks like a loopback or
// RFC 1918 private address.
func isLocalRequest(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

// extractToken gets the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

// isValidToken checks the provided token against the configured token.
// A single shared token is enough for this surface — queue inspection and
// enqueueing, not multi-tenant dispatch control.
func (am *AuthMiddleware) isValidToken(token string) bool {
	return token != "" && am.config.AuthToken != "" && token == am.config.AuthToken
}

// isControlEndpoint reports whether this request mutates queue state.
func isControlEndpoint(method, path string) bool {
	return method == http.MethodPost && strings.HasPrefix(path, "/queue/") && strings.HasSuffix(path, "/enqueue")
}

// RequireAuth wraps next with bearer-token enforcement for control
// endpoints; read-only requests pass through untouched.
func (am *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if !isControlEndpoint(r.Method, r.URL.Path) {
			next(w, r)
			return
		}

		event := AuditEvent{
			Timestamp:  start,
			RemoteAddr: r.RemoteAddr,
			Method:     r.Method,
			Path:       r.URL.Path,
			UserAgent:  r.Header.Get("User-Agent"),
		}
		defer func() {
			event.Duration = time.Since(start).String()
			am.logAuditEvent(event)
		}()

		if am.config.AuthToken == "" {
			if !isLocalRequest(r.RemoteAddr) {
				event.Authorized = false
				event.Error = "non-local request rejected (no auth_token configured)"
				writeError(w, http.StatusForbidden, "access denied: non-local requests require auth_token")
				return
			}
			event.Authorized = true
			next(w, r)
			return
		}

		token := extractToken(r)
		event.Token = truncateToken(token)

		if !am.isValidToken(token) {
			event.Authorized = false
			event.Error = "invalid or missing token"
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "unauthorized: valid token required")
			return
		}

		event.Authorized = true
		next(w, r)
	}
}
