// Package api provides the HTTP server for the Rise reward engine.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rise-habits/rise/internal/app/challenge"
	"github.com/rise-habits/rise/internal/app/ledger"
	"github.com/rise-habits/rise/internal/app/streak"
)

// Options configures the server surface.
type Options struct {
	CORSOrigins []string
	Metrics     bool
}

// Server is the Rise HTTP API server.
type Server struct {
	ledger  *ledger.Service
	streak  *streak.Service
	tracker *challenge.Tracker
	opts    Options
}

// NewServer creates a new API server over the reward services.
func NewServer(led *ledger.Service, str *streak.Service, tracker *challenge.Tracker, opts Options) *Server {
	return &Server{ledger: led, streak: str, tracker: tracker, opts: opts}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/progression", s.handleProgression)
		r.Post("/xp", s.handleAddXP)
		r.Get("/xp/history", s.handleXPHistory)
		r.Post("/xp/{id}/reverse", s.handleReverseXP)

		r.Get("/streak", s.handleStreak)
		r.Post("/streak/entry", s.handleStreakEntry)
		r.Post("/streak/warmup", s.handleWarmUp)
		r.Post("/streak/recalculate", s.handleRecalculate)
		r.Post("/streak/debt/reset", s.handleForceResetDebt)
		r.Post("/streak/debt/repair", s.handleRepairDebt)

		r.Get("/challenge", s.handleChallenge)
		r.Get("/challenge/reward", s.handleChallengeReward)
		r.Get("/challenge/history", s.handleChallengeHistory)
	})

	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for the mobile app's dev server.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := "*"
	if len(s.opts.CORSOrigins) > 0 {
		origin = s.opts.CORSOrigins[0]
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
