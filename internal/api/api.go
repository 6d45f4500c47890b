// Package api provides a lightweight, read-mostly HTTP API for querying
// extraction runtime state: per-category queue depth, host yield history,
// and loaded rule-pack summaries. Adapted from the teacher's internal/api,
// which served dispatch/scheduler/team state over the same stdlib-only
// net/http shape; here the domain is product extraction, not agent
// dispatch, so the handlers read from pkg/queue and pkg/learning instead.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/config"
	"github.com/antigravity-dev/specsheet/pkg/learning"
	"github.com/antigravity-dev/specsheet/pkg/queue"
)

// Server is the HTTP API server.
type Server struct {
	cfg            *config.Config
	helperRoot     string
	learningStore  *learning.Store
	logger         *slog.Logger
	startTime      time.Time
	httpServer     *http.Server
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server rooted at helperRoot, the same
// directory cmd/specsheet's compile/validate/run subcommands operate on.
func NewServer(cfg *config.Config, helperRoot string, learningStore *learning.Store, logger *slog.Logger) (*Server, error) {
	authMiddleware, err := NewAuthMiddleware(&cfg.API, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth middleware: %w", err)
	}

	return &Server{
		cfg:            cfg,
		helperRoot:     helperRoot,
		learningStore:  learningStore,
		logger:         logger,
		startTime:      time.Now(),
		authMiddleware: authMiddleware,
	}, nil
}

// Close closes the server and cleans up resources.
func (s *Server) Close() error {
	if s.authMiddleware != nil {
		return s.authMiddleware.Close()
	}
	return nil
}

// Start begins listening on the configured bind address. Blocks until
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/categories", s.handleCategories)
	mux.HandleFunc("/hosts/", s.handleHostYield)
	mux.HandleFunc("/queue/", s.authMiddleware.RequireAuth(s.routeQueue))

	s.httpServer = &http.Server{
		Addr:        s.cfg.API.Bind,
		Handler:     mux,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "bind", s.cfg.API.Bind)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"healthy": true, "uptime_s": time.Since(s.startTime).Seconds()})
}

// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	categories := s.listCategories()
	writeJSON(w, map[string]any{
		"uptime_s":        time.Since(s.startTime).Seconds(),
		"helper_root":     s.helperRoot,
		"category_count":  len(categories),
		"search_provider": s.cfg.Search.Provider,
	})
}

// GET /categories — the rule-pack category directories under helperRoot.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.listCategories())
}

func (s *Server) listCategories() []string {
	entries, err := os.ReadDir(s.helperRoot)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), "_") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// routeQueue serves both the read-only snapshot (GET /queue/{category})
// and the enqueue control verb (POST /queue/{category}/enqueue). Both sit
// behind RequireAuth; the middleware only actually challenges the POST
// form, per isControlEndpoint in auth.go.
func (s *Server) routeQueue(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/queue/")
	if path == "" {
		writeError(w, http.StatusBadRequest, "category required")
		return
	}

	var category string
	var isEnqueue bool
	if r.Method == http.MethodPost && strings.HasSuffix(path, "/enqueue") {
		category, isEnqueue = strings.TrimSuffix(path, "/enqueue"), true
	} else {
		category = path
	}
	if !validCategory(category) {
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}

	if isEnqueue {
		s.handleEnqueue(w, r, category)
		return
	}
	if r.Method == http.MethodGet {
		s.handleQueueStatus(w, r, category)
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// validCategory rejects path-traversal and nested segments so a category
// name from the URL can't be joined into queuePath to escape helperRoot.
func validCategory(category string) bool {
	return category != "" && !strings.Contains(category, "/") && category != "." && category != ".."
}

// GET /queue/{category} — queue snapshot for one category.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request, category string) {
	q, err := queue.Open(s.queuePath(category), s.cfg.Queue.MaxAttempts, s.cfg.Queue.BackoffBase.Duration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open queue: "+err.Error())
		return
	}
	writeJSON(w, q.Snapshot())
}

// POST /queue/{category}/enqueue
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request, category string) {
	var body struct {
		ProductID string `json:"product_id"`
		Priority  int    `json:"priority"`
		Hint      string `json:"hint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id required")
		return
	}

	q, err := queue.Open(s.queuePath(category), s.cfg.Queue.MaxAttempts, s.cfg.Queue.BackoffBase.Duration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open queue: "+err.Error())
		return
	}
	if err := q.Enqueue(body.ProductID, body.Priority, body.Hint); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed: "+err.Error())
		return
	}

	s.logger.Info("product enqueued via api", "category", category, "product_id", body.ProductID)
	writeJSON(w, map[string]any{"enqueued": body.ProductID, "category": category})
}

func (s *Server) queuePath(category string) string {
	return filepath.Join(s.helperRoot, category, "_control_plane", "queue.json")
}

// GET /hosts/{host} — learned fetch yield for a host (tracked by
// pkg/learning from fetch attempts made during earlier runs).
func (s *Server) handleHostYield(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	host := strings.TrimPrefix(r.URL.Path, "/hosts/")
	if host == "" {
		writeError(w, http.StatusBadRequest, "host required")
		return
	}
	if s.learningStore == nil {
		writeError(w, http.StatusServiceUnavailable, "learning store not configured")
		return
	}
	yield, err := s.learningStore.GetHostYield(host)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query host yield: "+err.Error())
		return
	}
	writeJSON(w, yield)
}
