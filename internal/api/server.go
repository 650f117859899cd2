// Package api serves the daemon's read-only HTTP surface: health, engine
// status, remediation history and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/setevik/autoheal/internal/engine"
	"github.com/setevik/autoheal/internal/store"
)

// StatusProvider reports the engine's current status.
type StatusProvider interface {
	Status() engine.Status
}

// History serves stored remediations.
type History interface {
	Query(f store.QueryFilter) ([]*store.Remediation, error)
}

// Server is the HTTP status server.
type Server struct {
	router *chi.Mux
	addr   string
}

// NewServer wires the routes. history may be nil, in which case /history
// is not served.
func NewServer(addr string, status StatusProvider, history History, gatherer prometheus.Gatherer) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	h := &handlers{status: status, history: history}
	r.Get("/healthz", h.health)
	r.Get("/status", h.getStatus)
	if history != nil {
		r.Get("/history", h.getHistory)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{router: r, addr: addr}
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("status server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handlers struct {
	status  StatusProvider
	history History
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	code := http.StatusOK
	if !st.IsRunning {
		code = http.StatusServiceUnavailable
	}
	sendJSON(w, code, map[string]string{"state": st.State})
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, h.status.Status())
}

// historyItem is the wire form of a stored remediation.
type historyItem struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Signal     string    `json:"signal"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     string    `json:"status"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.QueryFilter{
		Kind:   q.Get("kind"),
		Status: q.Get("status"),
		Limit:  50,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			sendError(w, http.StatusBadRequest, "since must be a duration such as 24h")
			return
		}
		f.Since = time.Now().Add(-d)
	}

	rows, err := h.history.Query(f)
	if err != nil {
		slog.Error("history query failed", "error", err)
		sendError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	items := make([]historyItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, historyItem{
			ID:         row.ID,
			Kind:       string(row.Kind),
			Signal:     row.Signal.Text,
			Source:     row.Signal.Source,
			StartedAt:  row.StartedAt,
			FinishedAt: row.FinishedAt,
			Status:     string(row.Status),
			Success:    row.Result.Success,
			Message:    row.Result.Message,
		})
	}
	sendJSON(w, http.StatusOK, items)
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}

// requestLogger logs each request through slog at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
