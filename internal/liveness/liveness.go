// Package liveness implements the Liveness Session Manager: the state
// machine, command sequencing, and frame processing that turn a card
// presentation into a PASSED/FAILED/EXPIRED liveness session.
//
// Built around a service-with-injected-repository shape.
package liveness

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/apierr"
	"github.com/technosupport/canteen-authz/internal/data"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/identity"
	"github.com/technosupport/canteen-authz/internal/oracle"
)

const (
	DefaultSessionTTL = 25 * time.Second
	yawThresholdDeg   = 15.0
	rollThresholdDeg  = 12.0
)

var commandPool = []domain.CommandType{domain.CmdTurnLeft, domain.CmdTurnRight, domain.CmdTilt}

// Repositories consumed by the Session Manager. Small, consumer-defined
// interfaces (not the whole of internal/data) so tests inject fakes freely.
type CardRepo interface {
	GetByUID(ctx context.Context, uid string) (*domain.Card, error)
}

type EmployeeRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Employee, error)
}

type FaceTemplateRepo interface {
	GetActiveByEmployee(ctx context.Context, employeeID uuid.UUID) (*domain.FaceTemplate, error)
}

type SessionRepo interface {
	Create(ctx context.Context, s *domain.LivenessSession) error
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error)
	Save(ctx context.Context, s *domain.LivenessSession) error
}

type Auditor interface {
	Record(ctx context.Context, action string, employeeID *uuid.UUID, result, reasonCode string)
}

type Service struct {
	sessions   SessionRepo
	cards      CardRepo
	employees  EmployeeRepo
	templates  FaceTemplateRepo
	face       oracle.Face
	pose       oracle.PoseEstimator
	matcher    *identity.Matcher
	sessionTTL time.Duration
	auditor    Auditor
}

func NewService(sessions SessionRepo, cards CardRepo, employees EmployeeRepo, templates FaceTemplateRepo, face oracle.Face, pose oracle.PoseEstimator, matcher *identity.Matcher, sessionTTL time.Duration, auditor Auditor) *Service {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Service{
		sessions: sessions, cards: cards, employees: employees, templates: templates,
		face: face, pose: pose, matcher: matcher, sessionTTL: sessionTTL, auditor: auditor,
	}
}

// StartLiveness creates an in_progress session with a randomized command
// list for the card's owning employee.
func (s *Service) StartLiveness(ctx context.Context, cardUID string, terminalID uuid.UUID) (*domain.LivenessSession, error) {
	card, err := s.cards.GetByUID(ctx, cardUID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, apierr.FromCode("CARD_NOT_FOUND", "card not found")
	}
	if err != nil {
		return nil, err
	}
	if !card.IsActive() {
		return nil, apierr.FromCode("CARD_BLOCKED", "card is blocked")
	}

	employee, err := s.employees.GetByID(ctx, card.EmployeeID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, apierr.FromCode("EMPLOYEE_BLOCKED", "employee not found")
	}
	if err != nil {
		return nil, err
	}
	if !employee.IsActive() {
		return nil, apierr.FromCode("EMPLOYEE_BLOCKED", "employee is blocked")
	}

	if _, err := s.templates.GetActiveByEmployee(ctx, employee.ID); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, apierr.FromCode("NO_ACTIVE_FACE", "no enrolled face template")
		}
		return nil, err
	}

	commands, err := sampleCommands()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.LivenessSession{
		EmployeeID:   employee.ID,
		CardID:       card.ID,
		TerminalID:   terminalID,
		Status:       domain.LivenessInProgress,
		Commands:     commands,
		CurrentIndex: 0,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	if s.auditor != nil {
		s.auditor.Record(ctx, "liveness.started", &employee.ID, "success", "")
	}
	return session, nil
}

// sampleCommands chooses k in {2,3} uniformly and samples k commands
// without replacement from the pool.
func sampleCommands() ([]domain.CommandType, error) {
	k, err := randIntn(2)
	if err != nil {
		return nil, err
	}
	k += 2 // {2,3}

	pool := append([]domain.CommandType(nil), commandPool...)
	out := make([]domain.CommandType, 0, k)
	for i := 0; i < k; i++ {
		j, err := randIntn(len(pool))
		if err != nil {
			return nil, err
		}
		out = append(out, pool[j])
		pool = append(pool[:j], pool[j+1:]...)
	}
	return out, nil
}

func randIntn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// FrameResult is returned to the caller after a single frame submission.
type FrameResult struct {
	Session    *domain.LivenessSession
	CmdAdvanced bool
}

// SubmitFrame decodes one frame, verifies identity, advances the command
// state machine, and persists the session.
func (s *Service) SubmitFrame(ctx context.Context, sessionID uuid.UUID, imageBytes []byte) (*FrameResult, error) {
	session, err := s.sessions.GetByIDForUpdate(ctx, sessionID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, apierr.FromCode("LIVENESS_NOT_FOUND", "liveness session not found")
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if session.Status != domain.LivenessInProgress {
		return nil, apierr.FromCode("LIVENESS_NOT_IN_PROGRESS", "session is not in progress")
	}

	if now.After(session.ExpiresAt) || now.Equal(session.ExpiresAt) {
		session.Status = domain.LivenessExpired
		session.FailReasonCode = "LIVENESS_SESSION_EXPIRED"
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
		return nil, apierr.FromCode("LIVENESS_EXPIRED", "liveness session expired")
	}

	frame, err := s.face.Decode(ctx, imageBytes)
	if err != nil {
		return nil, err
	}

	detection, err := s.face.DetectAndEncode(ctx, frame)
	if err != nil {
		// Frame-quality failures are non-destructive: they don't advance or
		// terminate the session.
		return nil, mapFaceOracleErr(err)
	}

	employee, err := s.employees.GetByID(ctx, session.EmployeeID)
	if err != nil {
		return nil, err
	}
	template, err := s.templates.GetActiveByEmployee(ctx, employee.ID)
	if err != nil {
		return nil, err
	}

	matched, dist := s.matcher.Match(detection.Embedding, template.Embedding)
	if session.MinFaceDistance == nil || dist < *session.MinFaceDistance {
		session.MinFaceDistance = &dist
	}
	if !matched {
		session.Status = domain.LivenessFailed
		session.FailReasonCode = "FACE_NOT_MATCH"
		session.LastSeenAt = &now
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
		if s.auditor != nil {
			s.auditor.Record(ctx, "liveness.failed", &employee.ID, "failure", "FACE_NOT_MATCH")
		}
		return nil, apierr.FromCode("FACE_NOT_MATCH", "face does not match enrolled template")
	}

	poseBlink, err := s.pose.EstimatePoseAndBlink(ctx, frame)
	if err != nil {
		return nil, err
	}

	if session.AnchorPose == nil {
		p := poseBlink.Pose
		session.AnchorPose = &p
		b := poseBlink.Pose
		session.BaselinePose = &b
	}

	advanced := false
	if cmd, ok := session.CurrentCommand(); ok {
		if commandSatisfied(cmd, *session.AnchorPose, poseBlink.Pose) {
			session.CurrentIndex++
			p := poseBlink.Pose
			session.AnchorPose = &p
			advanced = true
		}
	}

	if poseBlink.Blink {
		session.BlinkSeen = true
	}
	session.LastSeenAt = &now

	if session.CurrentIndex >= len(session.Commands) {
		if session.BlinkSeen {
			session.Status = domain.LivenessPassed
		} else {
			session.Status = domain.LivenessFailed
			session.FailReasonCode = "BLINK_NOT_DETECTED"
		}
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	if session.Status == domain.LivenessPassed && s.auditor != nil {
		s.auditor.Record(ctx, "liveness.passed", &employee.ID, "success", "")
	}
	if session.Status == domain.LivenessFailed && s.auditor != nil {
		s.auditor.Record(ctx, "liveness.failed", &employee.ID, "failure", session.FailReasonCode)
	}

	return &FrameResult{Session: session, CmdAdvanced: advanced}, nil
}

// commandSatisfied implements the per-command angular-change predicate.
func commandSatisfied(cmd domain.CommandType, anchor, current domain.Pose) bool {
	switch cmd {
	case domain.CmdTurnLeft:
		return current.Yaw <= anchor.Yaw-yawThresholdDeg
	case domain.CmdTurnRight:
		return current.Yaw >= anchor.Yaw+yawThresholdDeg
	case domain.CmdTilt:
		diff := current.Roll - anchor.Roll
		if diff < 0 {
			diff = -diff
		}
		return diff >= rollThresholdDeg
	default:
		return false
	}
}

func mapFaceOracleErr(err error) error {
	switch {
	case errors.Is(err, oracle.ErrFaceNotFound):
		return apierr.FromCode("FACE_NOT_FOUND", "no face detected")
	case errors.Is(err, oracle.ErrMultipleFaces):
		return apierr.FromCode("MULTIPLE_FACES", "more than one face detected")
	case errors.Is(err, oracle.ErrFaceTooSmall):
		return apierr.FromCode("FACE_TOO_SMALL", "face too small in frame")
	case errors.Is(err, oracle.ErrLowLight):
		return apierr.FromCode("LOW_LIGHT", "insufficient light")
	case errors.Is(err, oracle.ErrBlurry):
		return apierr.FromCode("BLURRY", "frame too blurry")
	default:
		return err
	}
}
