package receipts

import (
	"context"
	"testing"
	"time"
)

const (
	testClient   = "client-1"
	testBusiness = "biz-1"
	testSecret   = "test-hmac-secret-for-receipts"
)

func newTestService() *Service {
	return NewService(NewMemoryStore(), NewSigner(testSecret))
}

func issueTestReceipt(t *testing.T, svc *Service, orderID, status string) {
	t.Helper()
	err := svc.IssueReceipt(context.Background(), IssueRequest{
		OrderID:    orderID,
		ClientID:   testClient,
		BusinessID: testBusiness,
		Amount:     12000,
		Currency:   "XAF",
		Status:     status,
	})
	if err != nil {
		t.Fatalf("IssueReceipt failed: %v", err)
	}
}

func TestIssueReceipt_Success(t *testing.T) {
	svc := newTestService()
	issueTestReceipt(t, svc, "ord_123", StatusCompleted)

	// Verify receipt was persisted
	receipts, err := svc.ListByClient(context.Background(), testClient, 10)
	if err != nil {
		t.Fatalf("ListByClient failed: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}

	r := receipts[0]
	if r.OrderID != "ord_123" {
		t.Errorf("expected order ord_123, got %s", r.OrderID)
	}
	if r.ClientID != testClient {
		t.Errorf("expected client %s, got %s", testClient, r.ClientID)
	}
	if r.Amount != 12000 {
		t.Errorf("expected amount 12000, got %d", r.Amount)
	}
	if r.Currency != "XAF" {
		t.Errorf("expected currency XAF, got %s", r.Currency)
	}
	if r.Signature == "" {
		t.Error("expected non-empty signature")
	}
	if r.PayloadHash == "" {
		t.Error("expected non-empty payload hash")
	}
	if r.IssuedAt.IsZero() {
		t.Error("expected non-zero issuedAt")
	}
	if r.ExpiresAt.IsZero() {
		t.Error("expected non-zero expiresAt")
	}
	// Should expire ~30 days from now
	expectedExpiry := time.Now().Add(30 * 24 * time.Hour)
	if r.ExpiresAt.Before(expectedExpiry.Add(-time.Minute)) {
		t.Errorf("expiresAt too early: %v", r.ExpiresAt)
	}
}

func TestIssueReceipt_NilSigner(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil) // no signer

	err := svc.IssueReceipt(context.Background(), IssueRequest{
		OrderID:    "ord_123",
		ClientID:   testClient,
		BusinessID: testBusiness,
		Amount:     5000,
		Currency:   "XAF",
		Status:     StatusCompleted,
	})
	if err != nil {
		t.Fatalf("expected nil error for nil signer, got %v", err)
	}

	// No receipt should be stored
	receipts, _ := svc.ListByClient(context.Background(), testClient, 10)
	if len(receipts) != 0 {
		t.Errorf("expected 0 receipts with nil signer, got %d", len(receipts))
	}
}

func TestIssueReceipt_NilService(t *testing.T) {
	var svc *Service
	err := svc.IssueReceipt(context.Background(), IssueRequest{
		OrderID:    "ord_123",
		ClientID:   testClient,
		BusinessID: testBusiness,
		Amount:     5000,
		Currency:   "XAF",
		Status:     StatusCompleted,
	})
	if err != nil {
		t.Fatalf("expected nil error for nil service, got %v", err)
	}
}

func TestVerify_Valid(t *testing.T) {
	svc := newTestService()
	issueTestReceipt(t, svc, "ord_abc", StatusCompleted)

	receipts, _ := svc.ListByClient(context.Background(), testClient, 10)
	if len(receipts) == 0 {
		t.Fatal("no receipts found")
	}

	resp, err := svc.Verify(context.Background(), receipts[0].ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !resp.Valid {
		t.Errorf("expected valid receipt, got invalid: %s", resp.Error)
	}
	if resp.Expired {
		t.Error("expected not expired")
	}
}

func TestVerify_InvalidSignature(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, NewSigner(testSecret))

	issueTestReceipt(t, svc, "ord_tamper", StatusCompleted)

	receipts, _ := svc.ListByClient(context.Background(), testClient, 10)
	if len(receipts) == 0 {
		t.Fatal("no receipts found")
	}

	// Tamper with the signature in the store
	r := receipts[0]
	r.Signature = "deadbeef"
	store.mu.Lock()
	store.receipts[r.ID] = r
	store.mu.Unlock()

	resp, err := svc.Verify(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Valid {
		t.Error("expected invalid for tampered signature")
	}
}

func TestVerify_NotFound(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Verify(context.Background(), "nonexistent_id")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Valid {
		t.Error("expected invalid for not-found receipt")
	}
	if resp.Error != ErrReceiptNotFound.Error() {
		t.Errorf("expected not_found error, got %s", resp.Error)
	}
}

func TestVerify_SigningDisabled(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)

	resp, err := svc.Verify(context.Background(), "any_id")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Valid {
		t.Error("expected invalid when signing disabled")
	}
	if resp.Error != ErrSigningDisabled.Error() {
		t.Errorf("expected signing_disabled error, got %s", resp.Error)
	}
}

func TestGetByOrder(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Completed, then later refunded: two receipts for the same order.
	issueTestReceipt(t, svc, "ord_shared", StatusCompleted)
	issueTestReceipt(t, svc, "ord_shared", StatusRefunded)
	issueTestReceipt(t, svc, "ord_other", StatusCompleted)

	receipts, err := svc.GetByOrder(ctx, "ord_shared")
	if err != nil {
		t.Fatalf("GetByOrder failed: %v", err)
	}
	if len(receipts) != 2 {
		t.Errorf("expected 2 receipts for shared order, got %d", len(receipts))
	}
}

func TestListByClient_Limit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		issueTestReceipt(t, svc, "ord_n", StatusCompleted)
	}

	receipts, err := svc.ListByClient(ctx, testClient, 3)
	if err != nil {
		t.Fatalf("ListByClient failed: %v", err)
	}
	if len(receipts) != 3 {
		t.Errorf("expected 3 receipts (limited), got %d", len(receipts))
	}
}

func TestSigner_SignAndVerify(t *testing.T) {
	s := NewSigner(testSecret)

	payload := map[string]string{"key": "value"}
	sig, issuedAt, expiresAt, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if sig == "" || issuedAt == "" || expiresAt == "" {
		t.Fatal("expected non-empty signature, issuedAt, expiresAt")
	}

	if !s.Verify(payload, sig) {
		t.Error("expected Verify to return true for valid signature")
	}

	if s.Verify(payload, "wrong_signature") {
		t.Error("expected Verify to return false for wrong signature")
	}

	// Tampered payload
	if s.Verify(map[string]string{"key": "tampered"}, sig) {
		t.Error("expected Verify to return false for tampered payload")
	}
}

func TestSigner_Nil(t *testing.T) {
	s := NewSigner("")
	if s != nil {
		t.Error("expected nil signer for empty secret")
	}

	sig, _, _, err := s.Sign(map[string]string{"key": "value"})
	if err != nil {
		t.Errorf("expected nil error for nil signer, got %v", err)
	}
	if sig != "" {
		t.Error("expected empty signature for nil signer")
	}

	if s.Verify(map[string]string{"key": "value"}, "anything") {
		t.Error("expected Verify to return false for nil signer")
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService()

	_, err := svc.Get(context.Background(), "nonexistent")
	if err != ErrReceiptNotFound {
		t.Errorf("expected ErrReceiptNotFound, got %v", err)
	}
}
