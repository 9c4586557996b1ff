package data

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/domain"
)

type FaceTemplateModel struct {
	DB DBTX
}

// GetActiveByEmployee fetches the single active template, if any.
func (m FaceTemplateModel) GetActiveByEmployee(ctx context.Context, employeeID uuid.UUID) (*domain.FaceTemplate, error) {
	query := `
		SELECT id, employee_id, embedding, active, model_label, quality_score, created_at
		FROM face_templates WHERE employee_id = $1 AND active = true`
	return scanFaceTemplate(m.DB.QueryRowContext(ctx, query, employeeID))
}

func scanFaceTemplate(row *sql.Row) (*domain.FaceTemplate, error) {
	var f domain.FaceTemplate
	var raw []byte
	err := row.Scan(&f.ID, &f.EmployeeID, &raw, &f.Active, &f.ModelLabel, &f.QualityScore, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	vec, err := decodeEmbedding(raw)
	if err != nil {
		return nil, err
	}
	f.Embedding = vec
	return &f, nil
}

func decodeEmbedding(raw []byte) ([domain.FaceEmbeddingDim]float32, error) {
	var vec [domain.FaceEmbeddingDim]float32
	if len(raw) != domain.FaceEmbeddingDim*4 {
		return vec, fmt.Errorf("face embedding has wrong byte length: %d", len(raw))
	}
	for i := 0; i < domain.FaceEmbeddingDim; i++ {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

func encodeEmbedding(vec [domain.FaceEmbeddingDim]float32) []byte {
	raw := make([]byte, domain.FaceEmbeddingDim*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		raw[i*4] = byte(bits)
		raw[i*4+1] = byte(bits >> 8)
		raw[i*4+2] = byte(bits >> 16)
		raw[i*4+3] = byte(bits >> 24)
	}
	return raw
}

// StoreActive inserts a new active template, deactivating any previous
// one for the employee atomically: at most one active template per
// employee at a time. Runs inside a transaction it owns if db is
// *sql.DB, or joins the caller's transaction if db is *sql.Tx.
func (m FaceTemplateModel) StoreActive(ctx context.Context, f *domain.FaceTemplate) error {
	if db, ok := m.DB.(*sql.DB); ok {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := storeActiveTemplate(ctx, tx, f); err != nil {
			return err
		}
		return tx.Commit()
	}
	return storeActiveTemplate(ctx, m.DB, f)
}

func storeActiveTemplate(ctx context.Context, db DBTX, f *domain.FaceTemplate) error {
	if _, err := db.ExecContext(ctx, `UPDATE face_templates SET active = false WHERE employee_id = $1 AND active = true`, f.EmployeeID); err != nil {
		return err
	}
	raw := encodeEmbedding(f.Embedding)
	query := `
		INSERT INTO face_templates (employee_id, embedding, active, model_label, quality_score)
		VALUES ($1, $2, true, $3, $4)
		RETURNING id, created_at`
	return db.QueryRowContext(ctx, query, f.EmployeeID, raw, f.ModelLabel, f.QualityScore).
		Scan(&f.ID, &f.CreatedAt)
}
