// Package api implements the read-only query service over the persisted
// event log. Handlers read the sqlite file directly and never touch the
// detector's in-process state.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/acepocalypse/tt2check/internal/db"
	"github.com/acepocalypse/tt2check/internal/httputil"
	"github.com/acepocalypse/tt2check/internal/monitoring"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Server serves the launch-history endpoints.
type Server struct {
	db      *db.DB
	origins []string
}

// NewServer creates a Server over the given database. origins is the CORS
// allow-list; empty disables CORS headers.
func NewServer(database *db.DB, origins []string) *Server {
	return &Server{db: database, origins: origins}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.landing)
	mux.HandleFunc("/latest", s.latest)
	mux.HandleFunc("/events", s.events)
	mux.HandleFunc("/stats", s.stats)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// Handler wraps the mux with CORS and request logging.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.corsMiddleware(s.ServeMux()))
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.origins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", "GET")
				break
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) landing(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "no such route")
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"message": "tt2check launch history API",
		"endpoints": map[string]string{
			"/latest":  "most recent event",
			"/events":  "last N events (limit 1..1000, default 100)",
			"/stats":   "count of each outcome",
			"/healthz": "liveness check",
		},
	})
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	event, err := s.db.LatestLaunch()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve latest event: %v", err))
		return
	}
	if event == nil {
		httputil.NotFound(w, "no events yet")
		return
	}
	httputil.WriteJSONOK(w, event)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxEventLimit {
			httputil.BadRequest(w, fmt.Sprintf("limit must be an integer in [1,%d]", maxEventLimit))
			return
		}
		limit = parsed
	}

	events, err := s.db.ListLaunches(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve events: %v", err))
		return
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	stats, err := s.db.LaunchStats()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve stats: %v", err))
		return
	}
	httputil.WriteJSONOK(w, stats)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}
