package data

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/domain"
)

type EmployeeModel struct {
	DB DBTX
}

func (m EmployeeModel) GetByID(ctx context.Context, id uuid.UUID) (*domain.Employee, error) {
	query := `
		SELECT id, personnel_number, full_name, kind, status, monthly_limit_cents,
		       photo, notify_chat_id, created_at, updated_at
		FROM employees WHERE id = $1`
	return scanEmployee(m.DB.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate locks the employee row; used inside the payment transaction.
func (m EmployeeModel) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Employee, error) {
	query := `
		SELECT id, personnel_number, full_name, kind, status, monthly_limit_cents,
		       photo, notify_chat_id, created_at, updated_at
		FROM employees WHERE id = $1 FOR UPDATE`
	return scanEmployee(m.DB.QueryRowContext(ctx, query, id))
}

func scanEmployee(row *sql.Row) (*domain.Employee, error) {
	var e domain.Employee
	var personnel sql.NullString
	var chatID sql.NullString
	err := row.Scan(
		&e.ID, &personnel, &e.FullName, &e.Kind, &e.Status, &e.MonthlyLimitCents,
		&e.PhotoJPEG, &chatID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if personnel.Valid {
		e.PersonnelNumber = &personnel.String
	}
	if chatID.Valid {
		e.NotifyChatID = &chatID.String
	}
	return &e, nil
}

func (m EmployeeModel) Create(ctx context.Context, e *domain.Employee) error {
	query := `
		INSERT INTO employees (personnel_number, full_name, kind, status, monthly_limit_cents, photo, notify_chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return m.DB.QueryRowContext(ctx, query,
		e.PersonnelNumber, e.FullName, e.Kind, e.Status, e.MonthlyLimitCents, e.PhotoJPEG, e.NotifyChatID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}
