// Command seed populates a development database with one terminal, one
// worker employee with an active face template, and one card, so the
// HTTP API can be exercised end to end without a real enrollment flow.
//
// Built around a fixed-uuid upsert pattern: re-running this command is
// safe, it upserts by a well-known id rather than inserting duplicates.
package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"log"
	"math"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

var (
	terminalID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	employeeID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	cardID     = uuid.MustParse("00000000-0000-0000-0000-000000000003")
)

const (
	devTerminalToken = "dev-terminal-token"
	devCardUID       = "04A1B2C3D4E5F6"
	faceEmbeddingDim = 128
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("seed: DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("seed: open failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	tokenSum := sha256.Sum256([]byte(devTerminalToken))
	tokenHash := hex.EncodeToString(tokenSum[:])

	if _, err := db.ExecContext(ctx, `
		INSERT INTO terminals (id, canteen_id, display_name, status, api_token_hash)
		VALUES ($1, 'canteen-1', 'Dev Register', 'active', $2)
		ON CONFLICT (id) DO UPDATE SET api_token_hash = EXCLUDED.api_token_hash
	`, terminalID, tokenHash); err != nil {
		log.Fatalf("seed: upsert terminal failed: %v", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO employees (id, personnel_number, full_name, kind, status, monthly_limit_cents)
		VALUES ($1, 'EMP-0001', 'Anna Ivanovna Sidorova', 'worker', 'active', 300000)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name
	`, employeeID); err != nil {
		log.Fatalf("seed: upsert employee failed: %v", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO cards (id, uid, employee_id, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (id) DO UPDATE SET uid = EXCLUDED.uid
	`, cardID, devCardUID, employeeID); err != nil {
		log.Fatalf("seed: upsert card failed: %v", err)
	}

	embedding := deterministicEmbedding()
	if _, err := db.ExecContext(ctx, `UPDATE face_templates SET active = false WHERE employee_id = $1 AND active = true`, employeeID); err != nil {
		log.Fatalf("seed: deactivate old template failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO face_templates (employee_id, embedding, active, model_label, quality_score)
		VALUES ($1, $2, true, 'face-embed-128-v1', 1.0)
	`, employeeID, embedding); err != nil {
		log.Fatalf("seed: insert face template failed: %v", err)
	}

	log.Printf("seed: done. terminal_id=%s card_uid=%s terminal_token=%s", terminalID, devCardUID, devTerminalToken)
}

// deterministicEmbedding produces a fixed, reproducible 128-float vector so
// a deterministic test oracle can be configured to return a matching
// embedding for this employee.
func deterministicEmbedding() []byte {
	raw := make([]byte, faceEmbeddingDim*4)
	for i := 0; i < faceEmbeddingDim; i++ {
		v := float32(math.Sin(float64(i)))
		bits := math.Float32bits(v)
		raw[i*4] = byte(bits)
		raw[i*4+1] = byte(bits >> 8)
		raw[i*4+2] = byte(bits >> 16)
		raw[i*4+3] = byte(bits >> 24)
	}
	return raw
}
