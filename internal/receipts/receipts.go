// Package receipts provides cryptographic receipt signing for settled orders.
//
// Every order that reaches completion (or gets refunded) produces a signed
// receipt that clients and businesses can independently verify.
package receipts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrReceiptNotFound = errors.New("receipts: not found")
	ErrSigningDisabled = errors.New("receipts: signing disabled (no HMAC secret configured)")
)

// Receipt statuses mirror the order outcome they document.
const (
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
)

// Receipt is a cryptographically signed proof that an order settled.
type Receipt struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"orderId"`
	ClientID    string    `json:"clientId"`
	BusinessID  string    `json:"businessId"`
	Amount      int64     `json:"amount"`      // total charged, in minor units
	Currency    string    `json:"currency"`    // ISO 4217 code
	Status      string    `json:"status"`      // "completed" or "refunded"
	PayloadHash string    `json:"payloadHash"` // SHA-256 of canonical payload
	Signature   string    `json:"signature"`   // HMAC-SHA256 signature
	IssuedAt    time.Time `json:"issuedAt"`    // when the receipt was signed
	ExpiresAt   time.Time `json:"expiresAt"`   // when the signature expires
	CreatedAt   time.Time `json:"createdAt"`
}

// IssueRequest is the input for creating a receipt.
type IssueRequest struct {
	OrderID    string
	ClientID   string
	BusinessID string
	Amount     int64
	Currency   string
	Status     string
}

// VerifyRequest is the input for verifying a receipt signature.
type VerifyRequest struct {
	ReceiptID string `json:"receiptId" binding:"required"`
}

// VerifyResponse is the result of receipt verification.
type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	ReceiptID string `json:"receiptId"`
	Expired   bool   `json:"expired,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Store persists receipt data.
type Store interface {
	Create(ctx context.Context, receipt *Receipt) error
	Get(ctx context.Context, id string) (*Receipt, error)
	GetByOrder(ctx context.Context, orderID string) ([]*Receipt, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]*Receipt, error)
}

// receiptPayload is the canonical struct signed by HMAC.
// Field order must be deterministic (JSON marshalling of struct is by field order).
type receiptPayload struct {
	Amount     int64  `json:"amount"`
	BusinessID string `json:"businessId"`
	ClientID   string `json:"clientId"`
	Currency   string `json:"currency"`
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
}
