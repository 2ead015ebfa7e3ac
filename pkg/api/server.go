// Package api serves usage evaluations over HTTP for the dashboard.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/workforce-ai/meter/pkg/aggregate"
	"github.com/workforce-ai/meter/pkg/logger"
	"github.com/workforce-ai/meter/pkg/meter"
	"github.com/workforce-ai/meter/pkg/metrics"
	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
)

const maxBodyBytes = 1 << 20

// Evaluator computes a user's current usage evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, userID string) (*models.Evaluation, error)
}

// Recorder stores usage records. It is optional; without one the ingest
// route answers 501.
type Recorder interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// Server is the HTTP surface.
type Server struct {
	eval     Evaluator
	recorder Recorder
	logger   *zap.Logger
}

// NewServer creates a Server. recorder may be nil.
func NewServer(eval Evaluator, recorder Recorder, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{eval: eval, recorder: recorder, logger: log}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/plans", s.listPlans)
		r.Get("/users/{userID}/usage", s.getUsage)
		r.Post("/users/{userID}/usage", s.recordUsage)
	})
	return r
}

// requestLogger attaches a logger tagged with the chi request id to the
// request context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
		next.ServeHTTP(w, r.WithContext(logger.ContextWithLogger(r.Context(), l)))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type planView struct {
	models.PlanLimits
	Price string `json:"price"`
}

func (s *Server) listPlans(w http.ResponseWriter, _ *http.Request) {
	all := plan.All()
	out := make([]planView, 0, len(all))
	for _, l := range all {
		out = append(out, planView{PlanLimits: l, Price: plan.FormatPrice(l.MonthlyPriceMinorUnits)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	eval, err := s.eval.Evaluate(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (s *Server) recordUsage(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, http.StatusNotImplemented, "not_implemented", "usage source is read-only")
		return
	}

	var rec models.UsageRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	rec.ID = 0
	rec.UserID = chi.URLParam(r, "userID")
	if rec.TotalTokens == 0 {
		rec.TotalTokens = models.AddTokens(rec.InputTokens, rec.OutputTokens)
	}
	if _, err := aggregate.AggregateStrict([]models.UsageRecord{rec}); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := s.recorder.Record(r.Context(), rec); err != nil {
		logger.FromContext(r.Context()).Error("record usage failed", zap.String("user_id", rec.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "unable to record usage")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleError maps service errors to status codes. Unexpected errors are
// logged and hidden from the client.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var ute *plan.UnknownTierError
	switch {
	case errors.As(err, &ute):
		writeError(w, http.StatusUnprocessableEntity, "unknown_tier", ute.Error())
	case errors.Is(err, meter.ErrNoPlan):
		writeError(w, http.StatusNotFound, "no_plan", "no plan on record for user")
	case errors.Is(err, meter.ErrMissingUser):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "unable to compute usage")
	}
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}
