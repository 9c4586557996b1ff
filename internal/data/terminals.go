package data

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/domain"
)

type TerminalModel struct {
	DB DBTX
}

func (m TerminalModel) GetByID(ctx context.Context, id uuid.UUID) (*domain.Terminal, error) {
	query := `SELECT id, canteen_id, display_name, status, api_token_hash, created_at FROM terminals WHERE id = $1`
	var t domain.Terminal
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.CanteenID, &t.DisplayName, &t.Status, &t.APITokenHash, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByTokenHash looks up the terminal whose stored api_token_hash matches
// the caller-supplied hash. internal/middleware computes sha256(token);
// the match itself is this query's plain equality on api_token_hash.
func (m TerminalModel) GetByTokenHash(ctx context.Context, hash string) (*domain.Terminal, error) {
	query := `SELECT id, canteen_id, display_name, status, api_token_hash, created_at FROM terminals WHERE api_token_hash = $1`
	var t domain.Terminal
	err := m.DB.QueryRowContext(ctx, query, hash).Scan(
		&t.ID, &t.CanteenID, &t.DisplayName, &t.Status, &t.APITokenHash, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
