package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/domain"
)

type LivenessSessionModel struct {
	DB DBTX
}

func (m LivenessSessionModel) Create(ctx context.Context, s *domain.LivenessSession) error {
	cmds := encodeCommands(s.Commands)
	query := `
		INSERT INTO liveness_sessions (employee_id, card_id, terminal_id, status, commands, current_index, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	return m.DB.QueryRowContext(ctx, query,
		s.EmployeeID, s.CardID, s.TerminalID, s.Status, cmds, s.CurrentIndex, s.ExpiresAt,
	).Scan(&s.ID, &s.CreatedAt)
}

func (m LivenessSessionModel) GetByID(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error) {
	return scanSession(m.DB.QueryRowContext(ctx, selectSessionQuery, id))
}

// GetByIDForUpdate locks the session row; used both by SubmitFrame (to
// serialize concurrent frame submissions) and by Pay (lock order
// position 1).
func (m LivenessSessionModel) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error) {
	return scanSession(m.DB.QueryRowContext(ctx, selectSessionQuery+" FOR UPDATE", id))
}

const selectSessionQuery = `
	SELECT id, employee_id, card_id, terminal_id, status, commands, current_index,
	       anchor_pose, baseline_pose, blink_seen, min_face_distance, fail_reason_code,
	       created_at, expires_at, last_seen_at, used_at
	FROM liveness_sessions WHERE id = $1`

func scanSession(row *sql.Row) (*domain.LivenessSession, error) {
	var s domain.LivenessSession
	var cmdsRaw string
	var anchor, baseline sql.NullString
	var minDist sql.NullFloat64
	var failReason sql.NullString
	var lastSeen, usedAt sql.NullTime

	err := row.Scan(
		&s.ID, &s.EmployeeID, &s.CardID, &s.TerminalID, &s.Status, &cmdsRaw, &s.CurrentIndex,
		&anchor, &baseline, &s.BlinkSeen, &minDist, &failReason,
		&s.CreatedAt, &s.ExpiresAt, &lastSeen, &usedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Commands = decodeCommands(cmdsRaw)
	if anchor.Valid {
		s.AnchorPose = decodePose(anchor.String)
	}
	if baseline.Valid {
		s.BaselinePose = decodePose(baseline.String)
	}
	if minDist.Valid {
		d := minDist.Float64
		s.MinFaceDistance = &d
	}
	if failReason.Valid {
		s.FailReasonCode = failReason.String
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		s.LastSeenAt = &t
	}
	if usedAt.Valid {
		t := usedAt.Time
		s.UsedAt = &t
	}
	return &s, nil
}

// Save persists the mutable fields of a session after a frame is processed
// or a terminal transition occurs. Callers pass the full session; this is
// a whole-row update, not a sparse patch.
func (m LivenessSessionModel) Save(ctx context.Context, s *domain.LivenessSession) error {
	query := `
		UPDATE liveness_sessions SET
			status = $1, current_index = $2, anchor_pose = $3, baseline_pose = $4,
			blink_seen = $5, min_face_distance = $6, fail_reason_code = $7,
			last_seen_at = $8, used_at = $9
		WHERE id = $10`
	_, err := m.DB.ExecContext(ctx, query,
		s.Status, s.CurrentIndex, encodePose(s.AnchorPose), encodePose(s.BaselinePose),
		s.BlinkSeen, s.MinFaceDistance, nullString(s.FailReasonCode),
		s.LastSeenAt, s.UsedAt, s.ID,
	)
	return err
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func encodeCommands(cmds []domain.CommandType) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func decodeCommands(raw string) []domain.CommandType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	cmds := make([]domain.CommandType, len(parts))
	for i, p := range parts {
		cmds[i] = domain.CommandType(p)
	}
	return cmds
}

func encodePose(p *domain.Pose) any {
	if p == nil {
		return nil
	}
	b, _ := json.Marshal(p)
	return string(b)
}

func decodePose(raw string) *domain.Pose {
	var p domain.Pose
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	return &p
}
