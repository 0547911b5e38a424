package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/dealwatch/internal/id/uuid"
	"github.com/JakeFAU/dealwatch/internal/metrics"
	"github.com/JakeFAU/dealwatch/internal/tracker"
	"github.com/JakeFAU/dealwatch/internal/tracking"
	"github.com/JakeFAU/dealwatch/internal/watch"
)

// Tracker is the command surface the server drives.
type Tracker interface {
	Track(ctx context.Context, url, channelID string, budget *int) (string, error)
	Untrack(ctx context.Context, label string) (watch.TrackedSource, error)
	List() []watch.SourceSummary
	SetPingRole(roleID string) string
	PingRole() string
	SweepAll(ctx context.Context) ([]watch.SweepResult, error)
	SweepSource(ctx context.Context, url string) (watch.SweepResult, error)
	Sweeping() bool
}

// Options configures the HTTP server.
type Options struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	// Ready reports whether downstream dependencies are usable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the tracker.
type Server struct {
	router  chi.Router
	tracker Tracker
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(t Tracker, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	metrics.Init()
	s := &Server{
		tracker: t,
		opts:    opts,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)

	r.Group(func(r chi.Router) {
		if opts.AuthEnabled {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
		r.Route("/v1", func(r chi.Router) {
			r.Route("/sources", func(r chi.Router) {
				r.Get("/", s.listSources)
				r.Post("/", s.trackSource)
				r.Delete("/", s.untrackSource)
			})
			r.Route("/pingrole", func(r chi.Router) {
				r.Get("/", s.getPingRole)
				r.Put("/", s.setPingRole)
				r.Delete("/", s.clearPingRole)
			})
			r.Get("/sweep", s.sweepStatus)
			r.Post("/sweep", s.sweep)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type trackRequest struct {
	URL       string `json:"url"`
	ChannelID string `json:"channel_id"`
	Budget    *int   `json:"budget"`
}

func (s *Server) trackSource(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	label, err := s.tracker.Track(r.Context(), req.URL, req.ChannelID, req.Budget)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidSource) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("track failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist tracked source")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"category": label})
}

func (s *Server) untrackSource(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("category")
	if strings.TrimSpace(label) == "" {
		writeError(w, http.StatusBadRequest, "category query parameter required")
		return
	}
	removed, err := s.tracker.Untrack(r.Context(), label)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.logger.Error("untrack failed", zap.String("category", label), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist untrack")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"category": removed.Category, "url": removed.URL})
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.tracker.List()})
}

type pingRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (s *Server) getPingRole(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ping_role": s.tracker.PingRole()})
}

func (s *Server) setPingRole(w http.ResponseWriter, r *http.Request) {
	var req pingRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.RoleID) == "" {
		writeError(w, http.StatusBadRequest, "role_id required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ping_role": s.tracker.SetPingRole(req.RoleID)})
}

func (s *Server) clearPingRole(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ping_role": s.tracker.SetPingRole("")})
}

type sweepResponse struct {
	Sources  int `json:"sources"`
	Fetched  int `json:"fetched"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
	Empty    int `json:"empty"`
}

func (s *Server) sweepStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"sweeping": s.tracker.Sweeping()})
}

// sweep runs a full pass, or a single source when the url query parameter is set. The sweep
// is detached from the request so a client disconnect cannot abort it halfway.
func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	var (
		results []watch.SweepResult
		err     error
	)
	if source := strings.TrimSpace(r.URL.Query().Get("url")); source != "" {
		if s.tracker.Sweeping() {
			writeError(w, http.StatusConflict, tracker.ErrSweepInProgress.Error())
			return
		}
		var res watch.SweepResult
		res, err = s.tracker.SweepSource(ctx, source)
		results = []watch.SweepResult{res}
	} else {
		results, err = s.tracker.SweepAll(ctx)
	}
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrSweepInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, tracking.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		default:
			s.logger.Error("sweep failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	resp := sweepResponse{Sources: len(results)}
	for _, res := range results {
		resp.Fetched += res.Fetched
		resp.Notified += res.Notified
		resp.Failed += res.Failed
		if res.EmptyFetch {
			resp.Empty++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.FromHeader(r.Header.Get("X-Request-ID"))
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
