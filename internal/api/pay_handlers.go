package api

import (
	"context"
	"net/http"
	"time"

	"github.com/technosupport/canteen-authz/internal/apierr"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/metrics"
	"github.com/technosupport/canteen-authz/internal/middleware"
	"github.com/technosupport/canteen-authz/internal/payment"
)

// cardLockout guards against repeated declines: N consecutive declined
// payments for a card trip a temporary lockout, independent of
// Card.status/Employee.status.
type cardLockout interface {
	IsLockedOut(ctx context.Context, cardUID string) (bool, error)
	RecordFailure(ctx context.Context, cardUID string) error
	ClearFailures(ctx context.Context, cardUID string) error
}

// PayHandler serves POST /api/pay, the single place that moves money. A
// successful authorization or a post-token-acceptance decline both
// return 200 with status in the body; pre-token-acceptance rejections
// surface as the matching apierr status.
type PayHandler struct {
	Service *payment.Service
	Lockout cardLockout
	Metrics *metrics.Registry
}

func NewPayHandler(svc *payment.Service, lockout cardLockout, reg *metrics.Registry) *PayHandler {
	return &PayHandler{Service: svc, Lockout: lockout, Metrics: reg}
}

type payResponse struct {
	Status                string `json:"status"`
	AmountCents           int    `json:"amount_cents,omitempty"`
	SubsidySpentCents     int    `json:"subsidy_spent_cents"`
	MonthlySpentCents     int    `json:"monthly_spent_cents"`
	SubsidyTodayLeftCents int    `json:"subsidy_today_left_cents"`
	MonthlyLeftCents      int    `json:"monthly_left_cents"`
	Code                  string `json:"code,omitempty"`
	Message               string `json:"message,omitempty"`
}

func (h *PayHandler) Pay(w http.ResponseWriter, r *http.Request) {
	terminal, ok := middleware.TerminalFromContext(r.Context())
	if !ok {
		respondErr(w, apierr.FromCode("TERMINAL_UNAUTHORIZED", "missing terminal context"))
		return
	}

	var req struct {
		CardUID       string `json:"card_uid"`
		AmountCents   int    `json:"amount_cents"`
		LivenessToken string `json:"liveness_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "invalid JSON body"))
		return
	}

	if h.Lockout != nil && req.CardUID != "" {
		// Redis unavailable: fail open rather than block every payment on a
		// lockout check, matching internal/ratelimit's middleware.
		if lockedOut, err := h.Lockout.IsLockedOut(r.Context(), req.CardUID); err == nil && lockedOut {
			respondErr(w, apierr.FromCode("PAY_LOCKED_OUT", "card temporarily locked out after repeated declines"))
			return
		}
	}

	start := time.Now()
	result, err := h.Service.Pay(r.Context(), terminal.ID, req.CardUID, req.AmountCents, req.LivenessToken)
	if h.Metrics != nil {
		h.Metrics.PayLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if h.Metrics != nil {
			code := "INTERNAL"
			if apiErr, ok := err.(*apierr.Error); ok {
				code = apiErr.Code
			}
			h.Metrics.PaymentOutcomes.WithLabelValues("rejected", code).Inc()
		}
		respondErr(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.PaymentOutcomes.WithLabelValues(string(result.Status), result.DeclineCode).Inc()
	}

	if h.Lockout != nil && req.CardUID != "" {
		if result.Status == domain.TxDeclined {
			h.Lockout.RecordFailure(r.Context(), req.CardUID)
		} else {
			h.Lockout.ClearFailures(r.Context(), req.CardUID)
		}
	}

	resp := payResponse{
		Status:                string(result.Status),
		SubsidySpentCents:     result.SubsidySpentCents,
		MonthlySpentCents:     result.MonthlySpentCents,
		SubsidyTodayLeftCents: result.SubsidyTodayLeftCents,
		MonthlyLeftCents:      result.MonthlyLeftCents,
		Code:                  result.DeclineCode,
		Message:               result.DeclineMessage,
	}
	if result.Status == domain.TxApproved {
		resp.Status = "APPROVED"
		resp.AmountCents = result.AmountCents
	} else {
		resp.Status = "DECLINED"
	}

	respondData(w, http.StatusOK, resp)
}
