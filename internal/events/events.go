// Package events publishes domain events for the liveness and payment
// pipelines (liveness.passed, liveness.failed, payment.approved,
// payment.declined) so out-of-pipeline consumers — notably the Telegram
// notification relay in internal/notify — can react without sitting on
// the authorization path's critical section.
//
// Built around a retry-with-backoff publish loop over a typed domain
// Event envelope.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type Type string

const (
	TypeLivenessPassed   Type = "liveness.passed"
	TypeLivenessFailed   Type = "liveness.failed"
	TypePaymentApproved  Type = "payment.approved"
	TypePaymentDeclined  Type = "payment.declined"
)

// Event is the envelope published to NATS for every authorization outcome.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       Type           `json:"type"`
	EmployeeID uuid.UUID      `json:"employee_id"`
	TerminalID uuid.UUID      `json:"terminal_id,omitempty"`
	ReasonCode string         `json:"reason_code,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

const Subject = "canteen.events"

type Publisher struct {
	conn       *nats.Conn
	maxRetries int
}

func NewPublisher(conn *nats.Conn, maxRetries int) *Publisher {
	return &Publisher{conn: conn, maxRetries: maxRetries}
}

// Publish sends evt to the canteen events subject, retrying with linear
// backoff. Callers treat a publish failure as non-fatal to the
// authorization result: publishing is best-effort.
func (p *Publisher) Publish(evt Event) error {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var pubErr error
	for i := 0; i <= p.maxRetries; i++ {
		pubErr = p.conn.Publish(Subject, data)
		if pubErr == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, pubErr)
}
