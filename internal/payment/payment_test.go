package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/payment"
	"github.com/technosupport/canteen-authz/internal/tokens"
)

type fakeCalendar struct {
	workday bool
	working bool
}

func (f fakeCalendar) CompanyWorkday(time.Time) bool { return f.workday }
func (f fakeCalendar) EmployeeWorking(context.Context, uuid.UUID, time.Time) (bool, error) {
	return f.working, nil
}

func newService(t *testing.T, calendar payment.CalendarOracle) (*payment.Service, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	tokenMgr := tokens.NewManager("test-secret", 60*time.Second)
	svc := payment.NewService(db, tokenMgr, calendar, nil, time.UTC)
	return svc, mock, func() { db.Close() }
}

func sessionRow(id, employeeID, terminalID uuid.UUID) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "employee_id", "card_id", "terminal_id", "status", "commands", "current_index",
		"anchor_pose", "baseline_pose", "blink_seen", "min_face_distance", "fail_reason_code",
		"created_at", "expires_at", "last_seen_at", "used_at",
	}).AddRow(
		id, employeeID, uuid.New(), terminalID, domain.LivenessPassed, "TURN_LEFT,TILT", 2,
		nil, nil, true, 0.3, nil,
		now, now.Add(25*time.Second), now, nil,
	)
}

// S1: worker, workday, eligible subsidy — amount split across subsidy and
// personal allowance, session consumed, approved transaction recorded.
func TestPay_ApprovesAndSplitsSubsidy(t *testing.T) {
	svc, mock, closeDB := newService(t, fakeCalendar{workday: true, working: true})
	defer closeDB()

	employeeID := uuid.New()
	terminalID := uuid.New()
	cardID := uuid.New()
	sessionID := uuid.New()

	tokenMgr := tokens.NewManager("test-secret", 60*time.Second)
	tok, _, err := tokenMgr.Issue(employeeID.String(), sessionID.String(), terminalID.String())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM liveness_sessions").WithArgs(sessionID).
		WillReturnRows(sessionRow(sessionID, employeeID, terminalID))
	mock.ExpectQuery("FROM cards").WithArgs("DEMO-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "employee_id", "status", "created_at", "updated_at"}).
			AddRow(cardID, "DEMO-1", employeeID, domain.CardActive, time.Now(), time.Now()))
	mock.ExpectQuery("FROM employees").WithArgs(employeeID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "personnel_number", "full_name", "kind", "status", "monthly_limit_cents",
			"photo", "notify_chat_id", "created_at", "updated_at",
		}).AddRow(employeeID, nil, "Worker One", domain.EmployeeWorker, domain.EmployeeActive, 200000, nil, nil, time.Now(), time.Now()))
	mock.ExpectQuery("FROM daily_subsidy_balances").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "date", "used_cents"}).AddRow(employeeID, time.Now(), 0))
	mock.ExpectQuery("FROM monthly_balances").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "year", "month", "limit_cents", "used_cents"}).
			AddRow(employeeID, 2025, 3, 200000, 0))
	mock.ExpectExec("UPDATE daily_subsidy_balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE monthly_balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE liveness_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now()))
	mock.ExpectCommit()

	result, err := svc.Pay(context.Background(), terminalID, "DEMO-1", 15000, tok)
	require.NoError(t, err)
	assert.Equal(t, domain.TxApproved, result.Status)
	assert.Equal(t, 10000, result.SubsidySpentCents)
	assert.Equal(t, 5000, result.MonthlySpentCents)
	assert.Equal(t, 0, result.SubsidyTodayLeftCents)
	assert.Equal(t, 195000, result.MonthlyLeftCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// S2: staff get no subsidy even on a workday — the full amount comes out
// of the monthly personal allowance.
func TestPay_StaffGetsNoSubsidy(t *testing.T) {
	svc, mock, closeDB := newService(t, fakeCalendar{workday: true, working: true})
	defer closeDB()

	employeeID := uuid.New()
	terminalID := uuid.New()
	cardID := uuid.New()
	sessionID := uuid.New()

	tokenMgr := tokens.NewManager("test-secret", 60*time.Second)
	tok, _, err := tokenMgr.Issue(employeeID.String(), sessionID.String(), terminalID.String())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM liveness_sessions").WithArgs(sessionID).
		WillReturnRows(sessionRow(sessionID, employeeID, terminalID))
	mock.ExpectQuery("FROM cards").WithArgs("DEMO-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "employee_id", "status", "created_at", "updated_at"}).
			AddRow(cardID, "DEMO-1", employeeID, domain.CardActive, time.Now(), time.Now()))
	mock.ExpectQuery("FROM employees").WithArgs(employeeID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "personnel_number", "full_name", "kind", "status", "monthly_limit_cents",
			"photo", "notify_chat_id", "created_at", "updated_at",
		}).AddRow(employeeID, nil, "Staff One", domain.EmployeeStaff, domain.EmployeeActive, 200000, nil, nil, time.Now(), time.Now()))
	mock.ExpectQuery("FROM daily_subsidy_balances").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "date", "used_cents"}).AddRow(employeeID, time.Now(), 0))
	mock.ExpectQuery("FROM monthly_balances").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "year", "month", "limit_cents", "used_cents"}).
			AddRow(employeeID, 2025, 3, 200000, 0))
	mock.ExpectExec("UPDATE daily_subsidy_balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE monthly_balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE liveness_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now()))
	mock.ExpectCommit()

	result, err := svc.Pay(context.Background(), terminalID, "DEMO-1", 8000, tok)
	require.NoError(t, err)
	assert.Equal(t, domain.TxApproved, result.Status)
	assert.Equal(t, 0, result.SubsidySpentCents)
	assert.Equal(t, 8000, result.MonthlySpentCents)
	assert.Equal(t, 0, result.SubsidyTodayLeftCents)
	assert.Equal(t, 192000, result.MonthlyLeftCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// S3: a worker on a company holiday gets no subsidy; EmployeeWorking is
// never consulted once CompanyWorkday already says no.
func TestPay_WorkerOnHolidayGetsNoSubsidy(t *testing.T) {
	svc, mock, closeDB := newService(t, fakeCalendar{workday: false, working: true})
	defer closeDB()

	employeeID := uuid.New()
	terminalID := uuid.New()
	cardID := uuid.New()
	sessionID := uuid.New()

	tokenMgr := tokens.NewManager("test-secret", 60*time.Second)
	tok, _, err := tokenMgr.Issue(employeeID.String(), sessionID.String(), terminalID.String())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM liveness_sessions").WithArgs(sessionID).
		WillReturnRows(sessionRow(sessionID, employeeID, terminalID))
	mock.ExpectQuery("FROM cards").WithArgs("DEMO-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "employee_id", "status", "created_at", "updated_at"}).
			AddRow(cardID, "DEMO-1", employeeID, domain.CardActive, time.Now(), time.Now()))
	mock.ExpectQuery("FROM employees").WithArgs(employeeID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "personnel_number", "full_name", "kind", "status", "monthly_limit_cents",
			"photo", "notify_chat_id", "created_at", "updated_at",
		}).AddRow(employeeID, nil, "Worker One", domain.EmployeeWorker, domain.EmployeeActive, 200000, nil, nil, time.Now(), time.Now()))
	mock.ExpectQuery("FROM daily_subsidy_balances").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "date", "used_cents"}).AddRow(employeeID, time.Now(), 0))
	mock.ExpectQuery("FROM monthly_balances").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "year", "month", "limit_cents", "used_cents"}).
			AddRow(employeeID, 2025, 1, 200000, 0))
	mock.ExpectExec("UPDATE daily_subsidy_balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE monthly_balances").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE liveness_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now()))
	mock.ExpectCommit()

	result, err := svc.Pay(context.Background(), terminalID, "DEMO-1", 8000, tok)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SubsidySpentCents)
	assert.Equal(t, 8000, result.MonthlySpentCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A decline after the token was accepted records a declined transaction
// referencing the session, commits, and does NOT consume the session —
// no UPDATE liveness_sessions is ever issued.
func TestPay_InsufficientMonthlyRecordsDeclineWithoutConsumingToken(t *testing.T) {
	svc, mock, closeDB := newService(t, fakeCalendar{workday: true, working: true})
	defer closeDB()

	employeeID := uuid.New()
	terminalID := uuid.New()
	cardID := uuid.New()
	sessionID := uuid.New()

	tokenMgr := tokens.NewManager("test-secret", 60*time.Second)
	tok, _, err := tokenMgr.Issue(employeeID.String(), sessionID.String(), terminalID.String())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM liveness_sessions").WithArgs(sessionID).
		WillReturnRows(sessionRow(sessionID, employeeID, terminalID))
	mock.ExpectQuery("FROM cards").WithArgs("DEMO-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "employee_id", "status", "created_at", "updated_at"}).
			AddRow(cardID, "DEMO-1", employeeID, domain.CardActive, time.Now(), time.Now()))
	mock.ExpectQuery("FROM employees").WithArgs(employeeID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "personnel_number", "full_name", "kind", "status", "monthly_limit_cents",
			"photo", "notify_chat_id", "created_at", "updated_at",
		}).AddRow(employeeID, nil, "Worker One", domain.EmployeeWorker, domain.EmployeeActive, 1000, nil, nil, time.Now(), time.Now()))
	mock.ExpectQuery("FROM daily_subsidy_balances").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "date", "used_cents"}).AddRow(employeeID, time.Now(), 10000))
	mock.ExpectQuery("FROM monthly_balances").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "year", "month", "limit_cents", "used_cents"}).
			AddRow(employeeID, 2025, 3, 1000, 0))
	mock.ExpectQuery("INSERT INTO transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now()))
	mock.ExpectCommit()

	result, err := svc.Pay(context.Background(), terminalID, "DEMO-1", 15000, tok)
	require.NoError(t, err)
	assert.Equal(t, domain.TxDeclined, result.Status)
	assert.Equal(t, "INSUFFICIENT_MONTHLY_LIMIT", result.DeclineCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// S5: amount above the per-receipt cap is rejected before any locking, and
// never reaches the database.
func TestPay_RejectsAmountAboveReceiptCap(t *testing.T) {
	svc, mock, closeDB := newService(t, fakeCalendar{workday: true, working: true})
	defer closeDB()

	tokenMgr := tokens.NewManager("test-secret", 60*time.Second)
	tok, _, _ := tokenMgr.Issue(uuid.New().String(), uuid.New().String(), uuid.New().String())

	_, err := svc.Pay(context.Background(), uuid.New(), "DEMO-1", 60000, tok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_RECEIPT_500_EXCEEDED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// S4: a session already consumed is rejected without a new transaction.
func TestPay_RejectsAlreadyUsedSession(t *testing.T) {
	svc, mock, closeDB := newService(t, fakeCalendar{workday: true, working: true})
	defer closeDB()

	employeeID := uuid.New()
	terminalID := uuid.New()
	sessionID := uuid.New()

	tokenMgr := tokens.NewManager("test-secret", 60*time.Second)
	tok, _, _ := tokenMgr.Issue(employeeID.String(), sessionID.String(), terminalID.String())

	now := time.Now().UTC()
	usedRow := sqlmock.NewRows([]string{
		"id", "employee_id", "card_id", "terminal_id", "status", "commands", "current_index",
		"anchor_pose", "baseline_pose", "blink_seen", "min_face_distance", "fail_reason_code",
		"created_at", "expires_at", "last_seen_at", "used_at",
	}).AddRow(
		sessionID, employeeID, uuid.New(), terminalID, domain.LivenessUsed, "TURN_LEFT,TILT", 2,
		nil, nil, true, 0.3, nil,
		now, now.Add(25*time.Second), now, now,
	)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM liveness_sessions").WithArgs(sessionID).WillReturnRows(usedRow)
	mock.ExpectRollback()

	_, err := svc.Pay(context.Background(), terminalID, "DEMO-1", 15000, tok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIVENESS_ALREADY_USED")
	assert.NoError(t, mock.ExpectationsWereMet())
}
