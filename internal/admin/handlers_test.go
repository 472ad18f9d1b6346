package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yamb-labs/sokoni/internal/order"
	"github.com/yamb-labs/sokoni/internal/reconciliation"
)

type mockOrderService struct {
	orders    map[string]*order.Order
	refundErr error

	refundedID     string
	refundedActor  order.Actor
	refundedReason string
}

func (m *mockOrderService) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderService) Refund(_ context.Context, orderID string, actor order.Actor, reason string) (*order.Order, error) {
	if m.refundErr != nil {
		return nil, m.refundErr
	}
	m.refundedID = orderID
	m.refundedActor = actor
	m.refundedReason = reason
	o := *m.orders[orderID]
	o.Status = order.StatusRefunded
	return &o, nil
}

type mockReconciler struct {
	report *reconciliation.Report
	err    error
}

func (m *mockReconciler) RunAll(_ context.Context) (*reconciliation.Report, error) {
	return m.report, m.err
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/"))
	return r
}

func TestForceRefund_UsesBusinessActor(t *testing.T) {
	orders := &mockOrderService{orders: map[string]*order.Order{
		"ord_1": {ID: "ord_1", BusinessID: "biz-1", Status: order.StatusDelivered},
	}}
	router := newTestRouter(NewHandler().WithOrderService(orders))

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/refund",
		strings.NewReader(`{"reason":"chargeback"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if orders.refundedActor.Type != order.ActorBusiness || orders.refundedActor.UserID != "biz-1" {
		t.Errorf("expected business actor biz-1, got %+v", orders.refundedActor)
	}
	if orders.refundedReason != "chargeback" {
		t.Errorf("expected reason passed through, got %q", orders.refundedReason)
	}
}

func TestForceRefund_DefaultReason(t *testing.T) {
	orders := &mockOrderService{orders: map[string]*order.Order{
		"ord_1": {ID: "ord_1", BusinessID: "biz-1", Status: order.StatusDelivered},
	}}
	router := newTestRouter(NewHandler().WithOrderService(orders))

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/refund", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if orders.refundedReason != "admin force refund" {
		t.Errorf("expected default reason, got %q", orders.refundedReason)
	}
}

func TestForceRefund_NotFound(t *testing.T) {
	router := newTestRouter(NewHandler().WithOrderService(&mockOrderService{orders: map[string]*order.Order{}}))

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_missing/refund", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestForceRefund_InvalidTransition(t *testing.T) {
	orders := &mockOrderService{
		orders:    map[string]*order.Order{"ord_1": {ID: "ord_1", BusinessID: "biz-1", Status: order.StatusPending}},
		refundErr: order.ErrInvalidTransition,
	}
	router := newTestRouter(NewHandler().WithOrderService(orders))

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/refund", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestForceRefund_NotConfigured(t *testing.T) {
	router := newTestRouter(NewHandler())

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/refund", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestListStuckHolds(t *testing.T) {
	report := &reconciliation.Report{
		RanAt: time.Now().UTC(),
		OrphanedHolds: []reconciliation.OrphanedHold{
			{HoldID: "hold_1", OrderID: "ord_1", OrderStatus: "complete", Amount: 5000, Currency: "XAF"},
			{HoldID: "hold_2", OrderID: "ord_2", OrderStatus: "cancelled", Amount: 2000, Currency: "XAF"},
		},
	}
	router := newTestRouter(NewHandler().WithReconciler(&mockReconciler{report: report}))

	req := httptest.NewRequest(http.MethodGet, "/admin/holds/stuck?limit=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("expected limit applied, got count=%d", body.Count)
	}
}

func TestTriggerReconciliation(t *testing.T) {
	report := &reconciliation.Report{RanAt: time.Now().UTC()}
	router := newTestRouter(NewHandler().WithReconciler(&mockReconciler{report: report}))

	req := httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Healthy bool `json:"healthy"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !body.Healthy {
		t.Error("expected healthy report")
	}
}

func TestTriggerReconciliation_Failure(t *testing.T) {
	router := newTestRouter(NewHandler().WithReconciler(&mockReconciler{err: errors.New("db down")}))

	req := httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
