package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/domain"
)

type BalanceModel struct {
	DB DBTX
}

// dateOnly normalizes t to its calendar date in t's own location, as a
// UTC midnight value matching a Postgres date column. Truncating the
// instant in UTC instead would shift late-evening local times onto the
// previous subsidy day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GetOrCreateDailyForUpdate locks the daily subsidy balance row for
// (employee, date), creating it with used=0 if absent.
func (m BalanceModel) GetOrCreateDailyForUpdate(ctx context.Context, employeeID uuid.UUID, date time.Time) (*domain.DailySubsidyBalance, error) {
	day := dateOnly(date)

	var b domain.DailySubsidyBalance
	row := m.DB.QueryRowContext(ctx,
		`SELECT employee_id, date, used_cents FROM daily_subsidy_balances WHERE employee_id = $1 AND date = $2 FOR UPDATE`,
		employeeID, day,
	)
	err := row.Scan(&b.EmployeeID, &b.Date, &b.UsedCents)
	if err == nil {
		return &b, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	_, err = m.DB.ExecContext(ctx,
		`INSERT INTO daily_subsidy_balances (employee_id, date, used_cents) VALUES ($1, $2, 0)
		 ON CONFLICT (employee_id, date) DO NOTHING`,
		employeeID, day,
	)
	if err != nil {
		return nil, err
	}

	row = m.DB.QueryRowContext(ctx,
		`SELECT employee_id, date, used_cents FROM daily_subsidy_balances WHERE employee_id = $1 AND date = $2 FOR UPDATE`,
		employeeID, day,
	)
	if err := row.Scan(&b.EmployeeID, &b.Date, &b.UsedCents); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetDaily is a non-locking read of today's subsidy usage, for
// informational endpoints (e.g. employee_info) that must not block the
// payment transaction. Returns a zero-used balance if no row exists yet.
func (m BalanceModel) GetDaily(ctx context.Context, employeeID uuid.UUID, date time.Time) (*domain.DailySubsidyBalance, error) {
	day := dateOnly(date)
	b := &domain.DailySubsidyBalance{EmployeeID: employeeID, Date: day}
	row := m.DB.QueryRowContext(ctx,
		`SELECT used_cents FROM daily_subsidy_balances WHERE employee_id = $1 AND date = $2`,
		employeeID, day,
	)
	err := row.Scan(&b.UsedCents)
	if err == nil || err == sql.ErrNoRows {
		return b, nil
	}
	return nil, err
}

func (m BalanceModel) SaveDaily(ctx context.Context, b *domain.DailySubsidyBalance) error {
	_, err := m.DB.ExecContext(ctx,
		`UPDATE daily_subsidy_balances SET used_cents = $1 WHERE employee_id = $2 AND date = $3`,
		b.UsedCents, b.EmployeeID, b.Date,
	)
	return err
}

// GetOrCreateMonthlyForUpdate locks the monthly balance row for
// (employee, year, month), creating it with the employee's current
// monthly_limit_cents snapshotted if absent. The snapshot is never
// refreshed mid-month by this method.
func (m BalanceModel) GetOrCreateMonthlyForUpdate(ctx context.Context, employeeID uuid.UUID, year, month int, limitCentsIfNew int) (*domain.MonthlyBalance, error) {
	var b domain.MonthlyBalance
	row := m.DB.QueryRowContext(ctx,
		`SELECT employee_id, year, month, limit_cents, used_cents FROM monthly_balances WHERE employee_id = $1 AND year = $2 AND month = $3 FOR UPDATE`,
		employeeID, year, month,
	)
	err := row.Scan(&b.EmployeeID, &b.Year, &b.Month, &b.LimitCents, &b.UsedCents)
	if err == nil {
		return &b, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	_, err = m.DB.ExecContext(ctx,
		`INSERT INTO monthly_balances (employee_id, year, month, limit_cents, used_cents) VALUES ($1, $2, $3, $4, 0)
		 ON CONFLICT (employee_id, year, month) DO NOTHING`,
		employeeID, year, month, limitCentsIfNew,
	)
	if err != nil {
		return nil, err
	}

	row = m.DB.QueryRowContext(ctx,
		`SELECT employee_id, year, month, limit_cents, used_cents FROM monthly_balances WHERE employee_id = $1 AND year = $2 AND month = $3 FOR UPDATE`,
		employeeID, year, month,
	)
	if err := row.Scan(&b.EmployeeID, &b.Year, &b.Month, &b.LimitCents, &b.UsedCents); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetMonthly is a non-locking read of this month's personal-allowance
// usage. limitCentsIfAbsent is used as the displayed limit when no row
// exists yet (mirrors the snapshot GetOrCreateMonthlyForUpdate would take).
func (m BalanceModel) GetMonthly(ctx context.Context, employeeID uuid.UUID, year, month, limitCentsIfAbsent int) (*domain.MonthlyBalance, error) {
	b := &domain.MonthlyBalance{EmployeeID: employeeID, Year: year, Month: month, LimitCents: limitCentsIfAbsent}
	row := m.DB.QueryRowContext(ctx,
		`SELECT limit_cents, used_cents FROM monthly_balances WHERE employee_id = $1 AND year = $2 AND month = $3`,
		employeeID, year, month,
	)
	err := row.Scan(&b.LimitCents, &b.UsedCents)
	if err == nil || err == sql.ErrNoRows {
		return b, nil
	}
	return nil, err
}

func (m BalanceModel) SaveMonthly(ctx context.Context, b *domain.MonthlyBalance) error {
	_, err := m.DB.ExecContext(ctx,
		`UPDATE monthly_balances SET used_cents = $1 WHERE employee_id = $2 AND year = $3 AND month = $4`,
		b.UsedCents, b.EmployeeID, b.Year, b.Month,
	)
	return err
}
