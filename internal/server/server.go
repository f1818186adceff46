// Package server exposes the read-only ranking and comparison API.
// Every response is served from the last committed snapshot and carries
// its timestamp, so consumers can always show "data as of" the previous
// successful pass.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/LivingRiskyCo/dsx-tracker/internal/config"
	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
	"github.com/LivingRiskyCo/dsx-tracker/internal/rank"
)

// Server wires the rank service into an HTTP router.
type Server struct {
	svc             *rank.Service
	cfg             config.ServerConfig
	defaultMinGames int
}

// New creates a Server. defaultMinGames is the ranking view cutoff used
// when the request does not specify one.
func New(svc *rank.Service, cfg config.ServerConfig, defaultMinGames int) *Server {
	return &Server{svc: svc, cfg: cfg, defaultMinGames: defaultMinGames}
}

// Router builds the chi router with CORS and throttling middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Use(throttle(rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RateBurst)))

	r.Get("/health", s.handleHealth)
	r.Get("/rankings", s.handleRankings)
	r.Get("/compare", s.handleCompare)
	r.Get("/reviews", s.handleReviews)
	r.Get("/teams", s.handleTeams)
	r.Get("/teams/{query}/matches", s.handleTeamMatches)
	return r
}

// throttle rejects requests above the configured rate with 429 instead
// of queueing them.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	cohort := model.Cohort(r.URL.Query().Get("cohort"))
	minGames := s.defaultMinGames
	if raw := r.URL.Query().Get("min_games"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "min_games must be a non-negative integer")
			return
		}
		minGames = n
	}

	view, err := s.svc.Rankings(r.Context(), cohort, minGames)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		respondError(w, http.StatusBadRequest, "query parameters a and b are required")
		return
	}

	view, err := s.svc.Compare(r.Context(), a, b)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	snap, reviews, err := s.svc.ReviewQueue(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snap.ID,
		"as_of":       snap.CommittedAt,
		"reviews":     reviews,
	})
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	snap, teams, err := s.svc.Teams(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snap.ID,
		"as_of":       snap.CommittedAt,
		"teams":       teams,
	})
}

func (s *Server) handleTeamMatches(w http.ResponseWriter, r *http.Request) {
	query := chi.URLParam(r, "query")
	snap, team, matches, err := s.svc.TeamMatches(r.Context(), query)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snap.ID,
		"as_of":       snap.CommittedAt,
		"team":        team,
		"matches":     matches,
	})
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, rank.ErrNoSnapshot):
		respondError(w, http.StatusServiceUnavailable, "no committed snapshot yet")
	case eris.Is(err, rank.ErrUnknownTeam):
		respondError(w, http.StatusNotFound, "unknown team")
	default:
		zap.L().Error("server: query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
