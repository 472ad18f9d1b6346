// Package events delivers order lifecycle notifications to external
// services.
//
// Businesses, agents and clients can register webhook URLs to receive
// notifications about order status changes, settlements and ledger
// activity. Payloads are signed with a per-subscription HMAC secret.
package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yamb-labs/sokoni/internal/circuitbreaker"
	"github.com/yamb-labs/sokoni/internal/logging"
	"github.com/yamb-labs/sokoni/internal/retry"
	"github.com/yamb-labs/sokoni/internal/security"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventOrderCreated          EventType = "order.created"
	EventOrderStatusChanged    EventType = "order.status.changed"
	EventOrderCompleted        EventType = "order.completed"
	EventOrderCancelled        EventType = "order.cancelled"
	EventOrderFailed           EventType = "order.failed"
	EventTransactionRegistered EventType = "ledger.transaction.registered"
)

// maxConsecutiveFailures disables a subscription that keeps failing.
const maxConsecutiveFailures = 10

// Event represents a webhook event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription represents a webhook subscription
type Subscription struct {
	ID                  string      `json:"id"`
	UserID              string      `json:"userId"`
	URL                 string      `json:"url"`
	Secret              string      `json:"-"` // used for HMAC signing
	Events              []EventType `json:"events"`
	Active              bool        `json:"active"`
	CreatedAt           time.Time   `json:"createdAt"`
	LastSuccess         *time.Time  `json:"lastSuccess,omitempty"`
	LastError           string      `json:"lastError,omitempty"`
	ConsecutiveFailures int         `json:"-"`
}

// Store persists webhook subscriptions
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByUser(ctx context.Context, userID string) ([]*Subscription, error)
	GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher sends webhook events
type Dispatcher struct {
	store        Store
	client       *http.Client
	urlValidator func(string) error
	breaker      *circuitbreaker.Breaker // per-endpoint, skips delivery while open
}

// NewDispatcher creates a new webhook dispatcher
func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		urlValidator: security.ValidateEndpointURL,
		breaker:      circuitbreaker.New(5, 30*time.Second),
	}
}

// Dispatch sends an event to all active subscribers of its type.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	subs, err := d.store.GetByEvent(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("failed to get subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		// Send async to avoid blocking the caller.
		go d.send(ctx, sub, event)
	}
	return nil
}

// DispatchToUser sends an event to one user's subscriptions.
func (d *Dispatcher) DispatchToUser(ctx context.Context, userID string, event *Event) error {
	subs, err := d.store.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		for _, et := range sub.Events {
			if et == event.Type {
				go d.send(ctx, sub, event)
				break
			}
		}
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	if err := d.urlValidator(sub.URL); err != nil {
		d.updateError(ctx, sub, "unsafe webhook URL: "+err.Error())
		return
	}

	if !d.breaker.Allow(sub.URL) {
		// Endpoint is tripped; count the skipped delivery against the
		// subscription so dead endpoints still get disabled.
		d.updateError(ctx, sub, "endpoint circuit open")
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		return
	}

	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Sokoni-Event", string(event.Type))
		req.Header.Set("X-Sokoni-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))
		if sub.Secret != "" {
			req.Header.Set("X-Sokoni-Signature", d.sign(payload, sub.Secret))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	})

	if err != nil {
		d.breaker.RecordFailure(sub.URL)
		d.updateError(ctx, sub, err.Error())
		return
	}
	d.breaker.RecordSuccess(sub.URL)
	d.updateSuccess(ctx, sub)
}

func (d *Dispatcher) sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	sub.ConsecutiveFailures = 0
	if err := d.store.Update(ctx, sub); err != nil {
		logging.L(ctx).Warn("failed to record webhook success", "subscription_id", sub.ID, "error", err)
	}
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	sub.ConsecutiveFailures++
	if sub.ConsecutiveFailures >= maxConsecutiveFailures {
		sub.Active = false
		logging.L(ctx).Warn("webhook subscription disabled after repeated failures",
			"subscription_id", sub.ID, "url", sub.URL, "failures", sub.ConsecutiveFailures)
	}
	if err := d.store.Update(ctx, sub); err != nil {
		logging.L(ctx).Warn("failed to record webhook failure", "subscription_id", sub.ID, "error", err)
	}
}
