package data

import (
	"context"

	"github.com/technosupport/canteen-authz/internal/domain"
)

type TransactionModel struct {
	DB DBTX
}

func (m TransactionModel) Insert(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			terminal_id, employee_id, card_uid, amount_cents, subsidy_spent_cents,
			monthly_spent_cents, status, decline_code, decline_message, liveness_session_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`
	return m.DB.QueryRowContext(ctx, query,
		t.TerminalID, t.EmployeeID, t.CardUID, t.AmountCents, t.SubsidySpentCents,
		t.MonthlySpentCents, t.Status, nullString(t.DeclineCode), nullString(t.DeclineMessage), t.LivenessSessionID,
	).Scan(&t.ID, &t.Timestamp)
}
