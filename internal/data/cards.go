package data

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/domain"
)

type CardModel struct {
	DB DBTX
}

func (m CardModel) GetByUID(ctx context.Context, uid string) (*domain.Card, error) {
	query := `SELECT id, uid, employee_id, status, created_at, updated_at FROM cards WHERE uid = $1`
	return scanCard(m.DB.QueryRowContext(ctx, query, uid))
}

// GetByUIDForUpdate locks the card row; used inside the payment transaction
// (lock order: session -> card -> employee -> daily -> monthly).
func (m CardModel) GetByUIDForUpdate(ctx context.Context, uid string) (*domain.Card, error) {
	query := `SELECT id, uid, employee_id, status, created_at, updated_at FROM cards WHERE uid = $1 FOR UPDATE`
	return scanCard(m.DB.QueryRowContext(ctx, query, uid))
}

func scanCard(row *sql.Row) (*domain.Card, error) {
	var c domain.Card
	err := row.Scan(&c.ID, &c.UID, &c.EmployeeID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (m CardModel) Create(ctx context.Context, c *domain.Card) error {
	query := `
		INSERT INTO cards (uid, employee_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	return m.DB.QueryRowContext(ctx, query, c.UID, c.EmployeeID, c.Status).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}
