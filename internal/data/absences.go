package data

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AbsenceModel struct {
	DB DBTX
}

// IsAbsent reports whether the employee has an absence range covering
// date (inclusive [date_from, date_to]).
func (m AbsenceModel) IsAbsent(ctx context.Context, employeeID uuid.UUID, date time.Time) (bool, error) {
	day := dateOnly(date)
	var count int
	err := m.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM employee_absences WHERE employee_id = $1 AND date_from <= $2 AND date_to >= $2`,
		employeeID, day,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
