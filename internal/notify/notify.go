// Package notify sends fire-and-forget cashier notifications for approved
// payments. It subscribes to internal/events and never influences the
// authorization result: a failed or slow Telegram call is logged and
// dropped.
//
// Built on stdlib net/http with a 3s client timeout: a single outbound
// webhook POST doesn't warrant a third-party HTTP client.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/technosupport/canteen-authz/internal/events"
)

const requestTimeout = 3 * time.Second

// Relay posts a payment-approved notification to Telegram. An empty
// bot token disables sending entirely.
type Relay struct {
	botToken string
	client   *http.Client
}

func NewRelay(botToken string) *Relay {
	return &Relay{botToken: botToken, client: &http.Client{Timeout: requestTimeout}}
}

type paymentPayload struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// NotifyPayment sends the approved-payment message to chatID. Errors are
// logged, never returned as fatal.
func (r *Relay) NotifyPayment(ctx context.Context, chatID string, evt events.Event) {
	if r.botToken == "" || chatID == "" {
		return
	}

	amount, _ := evt.Payload["amount_cents"].(float64)
	subsidySpent, _ := evt.Payload["subsidy_spent_cents"].(float64)
	monthlySpent, _ := evt.Payload["monthly_spent_cents"].(float64)
	subsidyLeft, _ := evt.Payload["subsidy_today_left_cents"].(float64)
	monthlyLeft, _ := evt.Payload["monthly_left_cents"].(float64)

	text := fmt.Sprintf(
		"Оплата питания: %.2f руб\nДотация: -%.2f руб\nИз лимита: -%.2f руб\nОстаток дотации сегодня: %.2f руб\nОстаток месячного лимита: %.2f руб",
		amount/100, subsidySpent/100, monthlySpent/100, subsidyLeft/100, monthlyLeft/100,
	)

	body, err := json.Marshal(paymentPayload{ChatID: chatID, Text: text})
	if err != nil {
		log.Printf("notify: marshal failed: %v", err)
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", r.botToken)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: build request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("notify: telegram post failed: %v", err)
		return
	}
	defer resp.Body.Close()
}
