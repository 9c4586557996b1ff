package liveness

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/apierr"
	"github.com/technosupport/canteen-authz/internal/data"
	"github.com/technosupport/canteen-authz/internal/domain"
)

// TokenIssuer is the Token Service surface consumed by FinishLiveness.
// The liveness token is a stateless JWT — re-issuing it on a repeated
// FinishLiveness call is safe, since the session row (not the token) is
// the single source of truth for one-shot consumption.
type TokenIssuer interface {
	Issue(employeeID, sessionID, terminalID string) (string, time.Time, error)
}

// FinishResult mirrors POST /api/finish_liveness's response shape.
type FinishResult struct {
	Passed        bool
	LivenessToken string
	ExpiresInSec  int
	ReasonCode    string
}

func (s *Service) FinishLiveness(ctx context.Context, sessionID uuid.UUID, terminalID uuid.UUID, issuer TokenIssuer) (*FinishResult, error) {
	session, err := s.sessions.GetByIDForUpdate(ctx, sessionID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, apierr.FromCode("LIVENESS_NOT_FOUND", "liveness session not found")
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if session.Status == domain.LivenessInProgress && now.After(session.ExpiresAt) {
		session.Status = domain.LivenessExpired
		session.FailReasonCode = "LIVENESS_SESSION_EXPIRED"
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
	}

	if session.TerminalID != terminalID {
		return nil, apierr.FromCode("LIVENESS_NOT_FOUND", "liveness session not found")
	}

	if session.Status != domain.LivenessPassed {
		reason := session.FailReasonCode
		if reason == "" {
			reason = "LIVENESS_FAILED"
		}
		return &FinishResult{Passed: false, ReasonCode: reason}, nil
	}

	token, exp, err := issuer.Issue(session.EmployeeID.String(), session.ID.String(), session.TerminalID.String())
	if err != nil {
		return nil, err
	}

	return &FinishResult{
		Passed:        true,
		LivenessToken: token,
		ExpiresInSec:  int(time.Until(exp).Seconds()),
	}, nil
}
