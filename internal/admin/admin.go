// Package admin provides admin-only endpoints for resolving stuck financial states.
package admin

// ForceRefundRequest is the body for an admin-initiated refund.
type ForceRefundRequest struct {
	Reason string `json:"reason"`
}
