package liveness_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/canteen-authz/internal/data"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/identity"
	"github.com/technosupport/canteen-authz/internal/liveness"
	"github.com/technosupport/canteen-authz/internal/oracle"
)

type fakeCards struct{ card *domain.Card }

func (f *fakeCards) GetByUID(ctx context.Context, uid string) (*domain.Card, error) {
	if f.card == nil || f.card.UID != uid {
		return nil, data.ErrRecordNotFound
	}
	return f.card, nil
}

type fakeEmployees struct{ employee *domain.Employee }

func (f *fakeEmployees) GetByID(ctx context.Context, id uuid.UUID) (*domain.Employee, error) {
	if f.employee == nil || f.employee.ID != id {
		return nil, data.ErrRecordNotFound
	}
	return f.employee, nil
}

type fakeTemplates struct{ tmpl *domain.FaceTemplate }

func (f *fakeTemplates) GetActiveByEmployee(ctx context.Context, employeeID uuid.UUID) (*domain.FaceTemplate, error) {
	if f.tmpl == nil || f.tmpl.EmployeeID != employeeID {
		return nil, data.ErrRecordNotFound
	}
	return f.tmpl, nil
}

type fakeSessions struct {
	byID map[uuid.UUID]*domain.LivenessSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[uuid.UUID]*domain.LivenessSession{}}
}

func (f *fakeSessions) Create(ctx context.Context, s *domain.LivenessSession) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSessions) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Save(ctx context.Context, s *domain.LivenessSession) error {
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func setup(t *testing.T, commands []domain.CommandType) (*liveness.Service, *domain.Employee, *domain.Card, *oracle.DeterministicFace, *oracle.DeterministicPose) {
	employee := &domain.Employee{ID: uuid.New(), Kind: domain.EmployeeWorker, Status: domain.EmployeeActive}
	card := &domain.Card{ID: uuid.New(), UID: "DEMO-1", EmployeeID: employee.ID, Status: domain.CardActive}

	var templateEmbedding [domain.FaceEmbeddingDim]float32
	templateEmbedding[0] = 1.0
	tmpl := &domain.FaceTemplate{ID: uuid.New(), EmployeeID: employee.ID, Embedding: templateEmbedding, Active: true}

	face := &oracle.DeterministicFace{
		FixedDetection: oracle.Detection{Embedding: templateEmbedding},
	}
	pose := &oracle.DeterministicPose{}

	svc := liveness.NewService(
		newFakeSessions(),
		&fakeCards{card: card},
		&fakeEmployees{employee: employee},
		&fakeTemplates{tmpl: tmpl},
		face, pose,
		identity.NewMatcher(identity.DefaultThreshold),
		liveness.DefaultSessionTTL,
		nil,
	)
	return svc, employee, card, face, pose
}

// S1-shaped happy path: each sampled command (two or three of them)
// satisfied in turn, blink seen on the final frame, session transitions
// straight to PASSED.
func TestSubmitFrame_HappyPath(t *testing.T) {
	svc, _, card, _, pose := setup(t, nil)
	ctx := context.Background()

	session, err := svc.StartLiveness(ctx, card.UID, uuid.New())
	require.NoError(t, err)
	require.Contains(t, []int{2, 3}, len(session.Commands))

	answerFor := func(cmd domain.CommandType, blink bool) oracle.PoseBlink {
		switch cmd {
		case domain.CmdTurnLeft:
			return oracle.PoseBlink{Pose: domain.Pose{Yaw: -20}, Blink: blink}
		case domain.CmdTurnRight:
			return oracle.PoseBlink{Pose: domain.Pose{Yaw: 20}, Blink: blink}
		default: // CmdTilt
			return oracle.PoseBlink{Pose: domain.Pose{Roll: 20}, Blink: blink}
		}
	}

	// The first frame only establishes the neutral anchor pose; it can never
	// satisfy a command since the anchor is taken from that same frame.
	// DeterministicPose consumes its queue one call at a time, so answers
	// accumulate rather than get replaced.
	pose.Answers = append(pose.Answers, oracle.PoseBlink{Pose: domain.Pose{}, Blink: false})
	anchorResult, err := svc.SubmitFrame(ctx, session.ID, []byte("anchor"))
	require.NoError(t, err)
	assert.False(t, anchorResult.CmdAdvanced)

	for i, cmd := range session.Commands {
		isLast := i == len(session.Commands)-1
		pose.Answers = append(pose.Answers, answerFor(cmd, isLast))

		result, err := svc.SubmitFrame(ctx, session.ID, []byte("frame"))
		require.NoError(t, err)
		assert.True(t, result.CmdAdvanced)

		if isLast {
			assert.Equal(t, domain.LivenessPassed, result.Session.Status)
		} else {
			assert.Equal(t, domain.LivenessInProgress, result.Session.Status)
		}
	}
}

// S6: all commands satisfied but no blink ever observed — the session
// fails with BLINK_NOT_DETECTED and FinishLiveness reports it without
// issuing a token.
func TestSubmitFrame_NoBlinkFailsSession(t *testing.T) {
	svc, _, card, _, pose := setup(t, nil)
	ctx := context.Background()

	terminalID := uuid.New()
	session, err := svc.StartLiveness(ctx, card.UID, terminalID)
	require.NoError(t, err)

	answerFor := func(cmd domain.CommandType) oracle.PoseBlink {
		switch cmd {
		case domain.CmdTurnLeft:
			return oracle.PoseBlink{Pose: domain.Pose{Yaw: -20}}
		case domain.CmdTurnRight:
			return oracle.PoseBlink{Pose: domain.Pose{Yaw: 20}}
		default:
			return oracle.PoseBlink{Pose: domain.Pose{Roll: 20}}
		}
	}

	pose.Answers = append(pose.Answers, oracle.PoseBlink{})
	_, err = svc.SubmitFrame(ctx, session.ID, []byte("anchor"))
	require.NoError(t, err)

	var last *liveness.FrameResult
	for _, cmd := range session.Commands {
		pose.Answers = append(pose.Answers, answerFor(cmd))
		last, err = svc.SubmitFrame(ctx, session.ID, []byte("frame"))
		require.NoError(t, err)
	}

	assert.Equal(t, domain.LivenessFailed, last.Session.Status)
	assert.Equal(t, "BLINK_NOT_DETECTED", last.Session.FailReasonCode)

	finish, err := svc.FinishLiveness(ctx, session.ID, terminalID, issuerFunc(func(e, s, tid string) (string, time.Time, error) {
		t.Fatal("no token must be issued for a failed session")
		return "", time.Time{}, nil
	}))
	require.NoError(t, err)
	assert.False(t, finish.Passed)
	assert.Equal(t, "BLINK_NOT_DETECTED", finish.ReasonCode)
	assert.Empty(t, finish.LivenessToken)
}

type issuerFunc func(employeeID, sessionID, terminalID string) (string, time.Time, error)

func (f issuerFunc) Issue(employeeID, sessionID, terminalID string) (string, time.Time, error) {
	return f(employeeID, sessionID, terminalID)
}

func TestFinishLiveness_IssuesTokenForPassedSession(t *testing.T) {
	svc, _, card, _, pose := setup(t, nil)
	ctx := context.Background()

	terminalID := uuid.New()
	session, err := svc.StartLiveness(ctx, card.UID, terminalID)
	require.NoError(t, err)

	answerFor := func(cmd domain.CommandType) oracle.PoseBlink {
		switch cmd {
		case domain.CmdTurnLeft:
			return oracle.PoseBlink{Pose: domain.Pose{Yaw: -20}, Blink: true}
		case domain.CmdTurnRight:
			return oracle.PoseBlink{Pose: domain.Pose{Yaw: 20}, Blink: true}
		default:
			return oracle.PoseBlink{Pose: domain.Pose{Roll: 20}, Blink: true}
		}
	}

	pose.Answers = append(pose.Answers, oracle.PoseBlink{})
	_, err = svc.SubmitFrame(ctx, session.ID, []byte("anchor"))
	require.NoError(t, err)
	for _, cmd := range session.Commands {
		pose.Answers = append(pose.Answers, answerFor(cmd))
		_, err = svc.SubmitFrame(ctx, session.ID, []byte("frame"))
		require.NoError(t, err)
	}

	finish, err := svc.FinishLiveness(ctx, session.ID, terminalID, issuerFunc(func(e, s, tid string) (string, time.Time, error) {
		assert.Equal(t, session.EmployeeID.String(), e)
		assert.Equal(t, session.ID.String(), s)
		assert.Equal(t, terminalID.String(), tid)
		return "signed-token", time.Now().Add(60 * time.Second), nil
	}))
	require.NoError(t, err)
	assert.True(t, finish.Passed)
	assert.Equal(t, "signed-token", finish.LivenessToken)
}

func TestSubmitFrame_FaceMismatchFailsSession(t *testing.T) {
	svc, _, card, face, pose := setup(t, nil)
	ctx := context.Background()

	session, err := svc.StartLiveness(ctx, card.UID, uuid.New())
	require.NoError(t, err)

	var wrongEmbedding [domain.FaceEmbeddingDim]float32
	wrongEmbedding[10] = 5.0
	face.FixedDetection = oracle.Detection{Embedding: wrongEmbedding}
	pose.Answers = []oracle.PoseBlink{{Pose: domain.Pose{}, Blink: false}}

	_, err = svc.SubmitFrame(ctx, session.ID, []byte("f1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FACE_NOT_MATCH")
}

func TestSubmitFrame_RejectsMultipleFacesWithoutAdvancing(t *testing.T) {
	svc, _, card, face, _ := setup(t, nil)
	ctx := context.Background()

	session, err := svc.StartLiveness(ctx, card.UID, uuid.New())
	require.NoError(t, err)

	face.FixedErr = oracle.ErrMultipleFaces

	_, err = svc.SubmitFrame(ctx, session.ID, []byte("f1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MULTIPLE_FACES")
}

func TestSubmitFrame_ExpiredSessionTransitions(t *testing.T) {
	employee := &domain.Employee{ID: uuid.New(), Kind: domain.EmployeeWorker, Status: domain.EmployeeActive}
	card := &domain.Card{ID: uuid.New(), UID: "DEMO-2", EmployeeID: employee.ID, Status: domain.CardActive}
	tmpl := &domain.FaceTemplate{ID: uuid.New(), EmployeeID: employee.ID}

	sessions := newFakeSessions()
	svc := liveness.NewService(
		sessions, &fakeCards{card: card}, &fakeEmployees{employee: employee}, &fakeTemplates{tmpl: tmpl},
		&oracle.DeterministicFace{}, &oracle.DeterministicPose{},
		identity.NewMatcher(identity.DefaultThreshold), 1*time.Millisecond, nil,
	)

	ctx := context.Background()
	session, err := svc.StartLiveness(ctx, card.UID, uuid.New())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = svc.SubmitFrame(ctx, session.ID, []byte("f1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIVENESS_EXPIRED")

	stored, _ := sessions.GetByIDForUpdate(ctx, session.ID)
	assert.Equal(t, domain.LivenessExpired, stored.Status)
}
