package events

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// actionTypes maps the action strings internal/liveness, internal/enroll
// and internal/payment record through their small Auditor interfaces onto
// the Type this package publishes. An action with no entry is dropped
// silently — not every audited action is event-worthy.
var actionTypes = map[string]Type{
	"liveness.passed":   TypeLivenessPassed,
	"liveness.failed":   TypeLivenessFailed,
	"payment.approved":  TypePaymentApproved,
	"payment.declined":  TypePaymentDeclined,
}

// Auditor adapts Publisher to the Record(ctx, action, employeeID, result,
// reasonCode) shape internal/liveness.Auditor, internal/enroll.Auditor and
// internal/payment.Auditor each declare independently, so one publisher
// backs every caller without those packages importing internal/events.
type Auditor struct {
	publisher *Publisher
}

func NewAuditor(publisher *Publisher) *Auditor {
	return &Auditor{publisher: publisher}
}

// Record implements the Auditor interface shared by liveness, enroll and
// payment. Publish failures are logged, never returned: audit events are
// best-effort and must not affect the authorization result. Safe to call
// with a nil publisher (NATS unreachable at startup) — events are dropped.
func (a *Auditor) Record(ctx context.Context, action string, employeeID *uuid.UUID, result, reasonCode string) {
	if a == nil || a.publisher == nil {
		return
	}
	typ, ok := actionTypes[action]
	if !ok {
		return
	}

	evt := Event{Type: typ, ReasonCode: reasonCode}
	if employeeID != nil {
		evt.EmployeeID = *employeeID
	}
	evt.Payload = map[string]any{"action": action, "result": result}

	if err := a.publisher.Publish(evt); err != nil {
		log.Printf("events: publish %s failed: %v", action, err)
	}
}
