package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yamb-labs/sokoni/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		Env:                 "development",
		LogLevel:            "error",
		DefaultCountry:      "GA",
		DefaultCurrency:     "XAF",
		AgentHoldInternal:   0,
		AgentHoldVerified:   80,
		AgentHoldUnverified: 100,
		AdminSecret:         "test-admin-secret",
		RateLimitRPS:        1000,
	}
}

// newTestServer creates a server backed by in-memory stores
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestOrderRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	orderRoutes := map[string]bool{
		"POST:/v1/orders":             false,
		"GET:/v1/orders":              false,
		"GET:/v1/orders/:id":          false,
		"GET:/v1/orders/:id/history":  false,
		"POST:/v1/orders/:id/confirm": false,
		"POST:/v1/orders/:id/claim":   false,
		"POST:/v1/orders/:id/deliver": false,
		"POST:/v1/orders/:id/cancel":  false,
	}

	for _, route := range routes {
		key := route.Method + ":" + route.Path
		if _, ok := orderRoutes[key]; ok {
			orderRoutes[key] = true
		}
	}

	for route, found := range orderRoutes {
		if !found {
			t.Errorf("Order route %s not registered", route)
		}
	}
}

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"POST:/v1/delivery-fees/quote",
		"GET:/v1/failed-deliveries",
		"GET:/v1/receipts/:id",
		"POST:/v1/payments/stripe/webhook",
		"POST:/v1/admin/reconcile",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Admin auth tests
// ---------------------------------------------------------------------------

func TestAdminRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/reconcile", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without secret, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/admin/reconcile", nil)
	req.Header.Set("X-Admin-Secret", "test-admin-secret")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with secret, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.AdminSecret = ""
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/reconcile", nil)
	req.Header.Set("X-Admin-Secret", "anything")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when admin not configured, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Feed page test
// ---------------------------------------------------------------------------

func TestFeedPage(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/feed", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for feed page, got %d", w.Code)
	}

	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Error("Expected HTML content type")
	}
}

// ---------------------------------------------------------------------------
// Order creation through the full stack
// ---------------------------------------------------------------------------

func TestCreateOrderThroughRouter(t *testing.T) {
	s := newTestServer(t)

	body := `{
		"clientId": "client-1",
		"businessId": "biz-1",
		"subtotal": 6000,
		"deliverySpeed": "normal",
		"deliveryCountry": "GA",
		"businessLocation": {"lat": 0.3901, "lng": 9.4544},
		"deliveryLocation": {"lat": 0.4162, "lng": 9.4673}
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Order struct {
			ID          string `json:"id"`
			OrderNumber string `json:"orderNumber"`
			Status      string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Order.ID == "" {
		t.Error("Expected order id in response")
	}
	if !strings.HasPrefix(resp.Order.OrderNumber, "SKN-") {
		t.Errorf("Expected SKN- order number, got %q", resp.Order.OrderNumber)
	}
	if resp.Order.Status != "pending_payment" {
		t.Errorf("Expected pending_payment status, got %q", resp.Order.Status)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
