// Package domain holds the plain entity types of the canteen authorization
// system. No behavior lives here — only shape.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type EmployeeKind string

const (
	EmployeeWorker EmployeeKind = "worker"
	EmployeeStaff  EmployeeKind = "staff"
)

type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeeBlocked    EmployeeStatus = "blocked"
	EmployeeTerminated EmployeeStatus = "terminated"
)

type Employee struct {
	ID                uuid.UUID
	PersonnelNumber   *string
	FullName          string
	Kind              EmployeeKind
	Status            EmployeeStatus
	MonthlyLimitCents int
	PhotoJPEG         []byte
	NotifyChatID      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (e *Employee) IsActive() bool { return e.Status == EmployeeActive }

type CardStatus string

const (
	CardActive  CardStatus = "active"
	CardBlocked CardStatus = "blocked"
	CardLost    CardStatus = "lost"
)

type Card struct {
	ID         uuid.UUID
	UID        string
	EmployeeID uuid.UUID
	Status     CardStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *Card) IsActive() bool { return c.Status == CardActive }

const FaceEmbeddingDim = 128

type FaceTemplate struct {
	ID           uuid.UUID
	EmployeeID   uuid.UUID
	Embedding    [FaceEmbeddingDim]float32
	Active       bool
	ModelLabel   string
	QualityScore float64
	CreatedAt    time.Time
}

type TerminalStatus string

const (
	TerminalActive  TerminalStatus = "active"
	TerminalBlocked TerminalStatus = "blocked"
)

// Terminal is an authenticated cashier device. CanteenID records which
// canteen a terminal belongs to; this deployment doesn't route between
// canteens, and transactions reference the terminal by id rather than
// copying CanteenID.
type Terminal struct {
	ID           uuid.UUID
	CanteenID    string
	DisplayName  string
	Status       TerminalStatus
	APITokenHash string // hex sha256
	CreatedAt    time.Time
}

func (t *Terminal) IsActive() bool { return t.Status == TerminalActive }

type LivenessStatus string

const (
	LivenessInProgress LivenessStatus = "in_progress"
	LivenessPassed     LivenessStatus = "passed"
	LivenessFailed     LivenessStatus = "failed"
	LivenessExpired    LivenessStatus = "expired"
	LivenessUsed       LivenessStatus = "used"
)

type CommandType string

const (
	CmdTurnLeft  CommandType = "TURN_LEFT"
	CmdTurnRight CommandType = "TURN_RIGHT"
	CmdTilt      CommandType = "TILT"
)

type Pose struct {
	Yaw, Pitch, Roll float64
}

type LivenessSession struct {
	ID              uuid.UUID
	EmployeeID      uuid.UUID
	CardID          uuid.UUID
	TerminalID      uuid.UUID
	Status          LivenessStatus
	Commands        []CommandType
	CurrentIndex    int
	AnchorPose      *Pose
	BaselinePose    *Pose
	BlinkSeen       bool
	MinFaceDistance *float64
	FailReasonCode  string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastSeenAt      *time.Time
	UsedAt          *time.Time
}

func (s *LivenessSession) CurrentCommand() (CommandType, bool) {
	if s.CurrentIndex >= len(s.Commands) {
		return "", false
	}
	return s.Commands[s.CurrentIndex], true
}

type DailySubsidyBalance struct {
	EmployeeID uuid.UUID
	Date       time.Time // truncated to day
	UsedCents  int
}

type MonthlyBalance struct {
	EmployeeID uuid.UUID
	Year       int
	Month      int
	LimitCents int
	UsedCents  int
}

type TransactionStatus string

const (
	TxApproved TransactionStatus = "approved"
	TxDeclined TransactionStatus = "declined"
)

type Transaction struct {
	ID                uuid.UUID
	Timestamp         time.Time
	TerminalID        uuid.UUID
	EmployeeID        uuid.UUID
	CardUID           string
	AmountCents       int
	SubsidySpentCents int
	MonthlySpentCents int
	Status            TransactionStatus
	DeclineCode       string
	DeclineMessage    string
	LivenessSessionID *uuid.UUID
}

// EmployeeAbsence is an inclusive [From, To] date range during which the
// employee is not considered "working" for subsidy-eligibility purposes.
type EmployeeAbsence struct {
	EmployeeID uuid.UUID
	From       time.Time
	To         time.Time
}
