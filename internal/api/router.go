package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/enroll"
	"github.com/technosupport/canteen-authz/internal/liveness"
	"github.com/technosupport/canteen-authz/internal/metrics"
	"github.com/technosupport/canteen-authz/internal/middleware"
	"github.com/technosupport/canteen-authz/internal/payment"
	"github.com/technosupport/canteen-authz/internal/ratelimit"
	"github.com/technosupport/canteen-authz/internal/tokens"
	"github.com/technosupport/canteen-authz/internal/ws"
)

// Deps collects the constructed components NewRouter wires onto routes.
// Built around a chi.NewRouter + middleware chain shape.
type Deps struct {
	DB       *sql.DB
	Terminals middleware.TerminalLookup

	EmployeeInfo *EmployeeInfoHandler
	Enroll       *enroll.Service
	Liveness     *liveness.Service
	Pay          *payment.Service
	Tokens       *tokens.Manager
	Hub          *ws.Hub
	Metrics      *metrics.Registry
	Limiter      *ratelimit.Limiter
	Lockout      cardLockout

	FrameRateLimit ratelimit.LimitConfig
	PayRateLimit   ratelimit.LimitConfig
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORS)

	r.Get("/healthz", (&HealthHandler{DB: d.DB}).Healthz)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	enrollHandler := NewEnrollHandler(d.Enroll)
	livenessHandler := NewLivenessHandler(d.Liveness, d.Tokens, d.Hub, d.Metrics)
	payHandler := NewPayHandler(d.Pay, d.Lockout, d.Metrics)

	termAuth := middleware.NewTerminalAuth(d.Terminals)

	r.Group(func(r chi.Router) {
		r.Use(termAuth.Middleware)

		r.Get("/api/employee_info", d.EmployeeInfo.Get)
		r.Post("/api/enroll_face", enrollHandler.Enroll)
		r.Post("/api/start_liveness", livenessHandler.Start)
		r.Post("/api/finish_liveness", livenessHandler.Finish)

		r.With(middleware.RateLimit(d.Limiter, ratelimit.ScopeLivenessFrame, d.FrameRateLimit)).
			Post("/api/liveness_frame", livenessHandler.SubmitFrame)

		r.With(middleware.RateLimit(d.Limiter, ratelimit.ScopePay, d.PayRateLimit)).
			Post("/api/pay", payHandler.Pay)
	})

	r.Get("/api/ws/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		livenessHandler.ServeSessionWS(w, r, id)
	})

	return r
}
