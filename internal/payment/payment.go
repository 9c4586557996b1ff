// Package payment implements the Payment Authorizer: the one place in
// the system that moves money. A single database transaction locks
// session, card, employee, daily balance, and monthly balance in that
// order, computes the subsidy/personal split, and records the outcome as
// a Transaction row.
//
// Built around a BeginTx/defer tx.Rollback()/tx.Commit() transaction
// shape and a locked-fetch-inside-tx pattern, applied to the
// session -> card -> employee -> daily -> monthly lock order needed to
// avoid deadlocking concurrent terminals acting on the same card.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/apierr"
	"github.com/technosupport/canteen-authz/internal/data"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/tokens"
)

const (
	DefaultDailySubsidyLimitCents = 10_000
	DefaultMaxMealCents           = 100_000
	DefaultMaxReceiptCents        = 50_000
)

// CalendarOracle is the Calendar Oracle surface consumed by Pay.
type CalendarOracle interface {
	CompanyWorkday(date time.Time) bool
	EmployeeWorking(ctx context.Context, employeeID uuid.UUID, date time.Time) (bool, error)
}

// TokenVerifier is the Token Service surface consumed by Pay.
type TokenVerifier interface {
	Verify(tokenString string) (*tokens.Claims, error)
}

type Auditor interface {
	Record(ctx context.Context, action string, employeeID *uuid.UUID, result, reasonCode string)
}

type Service struct {
	db       *sql.DB
	tokenMgr TokenVerifier
	calendar CalendarOracle
	auditor  Auditor

	loc                    *time.Location
	dailySubsidyLimitCents int
	maxMealCents           int
	maxReceiptCents        int

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

func NewService(db *sql.DB, tokenMgr TokenVerifier, calendarOracle CalendarOracle, auditor Auditor, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:                     db,
		tokenMgr:               tokenMgr,
		calendar:               calendarOracle,
		auditor:                auditor,
		loc:                    loc,
		dailySubsidyLimitCents: DefaultDailySubsidyLimitCents,
		maxMealCents:           DefaultMaxMealCents,
		maxReceiptCents:        DefaultMaxReceiptCents,
		now:                    func() time.Time { return time.Now().UTC() },
	}
}

// SetLimits overrides the daily subsidy, per-meal and per-receipt limits
// away from the package defaults, letting cmd/server apply the
// SUBSIDY_DAILY_CENTS / MAX_MEAL_CENTS / MAX_RECEIPT_CENTS config.
func (s *Service) SetLimits(dailySubsidyCents, maxMealCents, maxReceiptCents int) {
	s.dailySubsidyLimitCents = dailySubsidyCents
	s.maxMealCents = maxMealCents
	s.maxReceiptCents = maxReceiptCents
}

// Result mirrors POST /api/pay's response shape.
type Result struct {
	Status                domain.TransactionStatus
	AmountCents           int
	SubsidySpentCents     int
	MonthlySpentCents     int
	SubsidyTodayLeftCents int
	MonthlyLeftCents      int
	DeclineCode           string
	DeclineMessage        string
}

// Pay runs the full authorization pipeline.
func (s *Service) Pay(ctx context.Context, callerTerminalID uuid.UUID, cardUID string, amountCents int, livenessToken string) (*Result, error) {
	if amountCents <= 0 {
		return nil, apierr.FromCode("BAD_AMOUNT", "amount must be positive")
	}
	if amountCents > s.maxMealCents {
		return nil, apierr.FromCode("MAX_MEAL_1000_EXCEEDED", "amount exceeds per-meal limit")
	}
	if amountCents > s.maxReceiptCents {
		return nil, apierr.FromCode("MAX_RECEIPT_500_EXCEEDED", "amount exceeds per-receipt limit")
	}
	if cardUID == "" {
		return nil, apierr.FromCode("BAD_REQUEST", "card_uid is required")
	}

	claims, err := s.tokenMgr.Verify(livenessToken)
	if err != nil {
		if errors.Is(err, tokens.ErrExpiredToken) {
			return nil, apierr.FromCode("LIVENESS_TOKEN_EXPIRED", "liveness token expired")
		}
		return nil, apierr.FromCode("LIVENESS_TOKEN_INVALID", "liveness token invalid")
	}
	if claims.TerminalID != callerTerminalID.String() {
		return nil, apierr.FromCode("LIVENESS_TOKEN_TERMINAL_MISMATCH", "token was not issued to this terminal")
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, apierr.FromCode("LIVENESS_TOKEN_INVALID", "liveness token invalid")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sessions := data.LivenessSessionModel{DB: tx}
	cards := data.CardModel{DB: tx}
	employees := data.EmployeeModel{DB: tx}
	balances := data.BalanceModel{DB: tx}
	transactions := data.TransactionModel{DB: tx}

	// Lock position 1: session.
	session, err := sessions.GetByIDForUpdate(ctx, sessionID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, apierr.FromCode("LIVENESS_NOT_FOUND", "liveness session not found")
	}
	if err != nil {
		return nil, err
	}
	if session.TerminalID != callerTerminalID {
		return nil, apierr.FromCode("LIVENESS_TOKEN_TERMINAL_MISMATCH", "token was not issued to this terminal")
	}
	if session.Status == domain.LivenessUsed || session.UsedAt != nil {
		return nil, apierr.FromCode("LIVENESS_ALREADY_USED", "liveness session already consumed")
	}
	if session.Status != domain.LivenessPassed {
		return nil, apierr.FromCode("LIVENESS_FAILED", "liveness session did not pass")
	}

	// Every rejection from here on happens after the token was accepted: it
	// is recorded as a declined transaction referencing the session, and the
	// session is left in `passed` so the cashier can retry within the
	// token's remaining TTL.
	declineAfterToken := func(code, message string) (*Result, error) {
		txn := &domain.Transaction{
			TerminalID:        callerTerminalID,
			EmployeeID:        session.EmployeeID,
			CardUID:           cardUID,
			AmountCents:       amountCents,
			Status:            domain.TxDeclined,
			DeclineCode:       code,
			DeclineMessage:    message,
			LivenessSessionID: &session.ID,
		}
		if insertErr := transactions.Insert(ctx, txn); insertErr != nil {
			return nil, insertErr
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, commitErr
		}
		if s.auditor != nil {
			s.auditor.Record(ctx, "payment.declined", &session.EmployeeID, "failure", code)
		}
		return &Result{Status: domain.TxDeclined, DeclineCode: code, DeclineMessage: message}, nil
	}

	// Lock position 2: card.
	card, err := cards.GetByUIDForUpdate(ctx, cardUID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return declineAfterToken("CARD_NOT_FOUND", "card not found")
	}
	if err != nil {
		return nil, err
	}
	if !card.IsActive() {
		return declineAfterToken("CARD_BLOCKED", "card is blocked")
	}
	if card.EmployeeID != session.EmployeeID {
		return declineAfterToken("CARD_NOT_FOUND", "card does not match liveness session")
	}

	// Lock position 3: employee.
	employee, err := employees.GetByIDForUpdate(ctx, card.EmployeeID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return declineAfterToken("EMPLOYEE_BLOCKED", "employee not found")
	}
	if err != nil {
		return nil, err
	}
	if !employee.IsActive() {
		return declineAfterToken("EMPLOYEE_BLOCKED", "employee is blocked")
	}

	today := s.now().In(s.loc)
	year, month, _ := today.Date()

	// Lock position 4: daily subsidy balance.
	daily, err := balances.GetOrCreateDailyForUpdate(ctx, employee.ID, today)
	if err != nil {
		return nil, err
	}

	// Lock position 5: monthly balance.
	monthly, err := balances.GetOrCreateMonthlyForUpdate(ctx, employee.ID, year, int(month), employee.MonthlyLimitCents)
	if err != nil {
		return nil, err
	}

	eligible := employee.Kind == domain.EmployeeWorker && s.calendar.CompanyWorkday(today)
	if eligible {
		working, err := s.calendar.EmployeeWorking(ctx, employee.ID, today)
		if err != nil {
			return nil, err
		}
		eligible = working
	}

	subsidyAvailable := 0
	if eligible {
		subsidyAvailable = max0(s.dailySubsidyLimitCents - daily.UsedCents)
	}
	subsidySpent := minInt(subsidyAvailable, amountCents)
	personalSpent := amountCents - subsidySpent

	monthlyAvailable := max0(monthly.LimitCents - monthly.UsedCents)
	if personalSpent > monthlyAvailable {
		return declineAfterToken("INSUFFICIENT_MONTHLY_LIMIT", "insufficient monthly personal allowance")
	}

	daily.UsedCents += subsidySpent
	monthly.UsedCents += personalSpent
	if err := balances.SaveDaily(ctx, daily); err != nil {
		return nil, err
	}
	if err := balances.SaveMonthly(ctx, monthly); err != nil {
		return nil, err
	}

	now := s.now()
	session.Status = domain.LivenessUsed
	session.UsedAt = &now
	if err := sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		TerminalID:        callerTerminalID,
		EmployeeID:        employee.ID,
		CardUID:           cardUID,
		AmountCents:       amountCents,
		SubsidySpentCents: subsidySpent,
		MonthlySpentCents: personalSpent,
		Status:            domain.TxApproved,
		LivenessSessionID: &session.ID,
	}
	if err := transactions.Insert(ctx, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, "payment.approved", &employee.ID, "success", "")
	}

	subsidyTodayLeft := 0
	if eligible {
		subsidyTodayLeft = max0(s.dailySubsidyLimitCents - daily.UsedCents)
	}

	return &Result{
		Status:                domain.TxApproved,
		AmountCents:           amountCents,
		SubsidySpentCents:     subsidySpent,
		MonthlySpentCents:     personalSpent,
		SubsidyTodayLeftCents: subsidyTodayLeft,
		MonthlyLeftCents:      max0(monthly.LimitCents - monthly.UsedCents),
	}, nil
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
