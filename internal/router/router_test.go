package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiwari-pos/ordering/internal/config"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/pricing"
	"github.com/kiwari-pos/ordering/internal/realtime"
	"github.com/kiwari-pos/ordering/internal/router"
	"github.com/kiwari-pos/ordering/internal/service"
	"github.com/kiwari-pos/ordering/internal/store"
	"github.com/kiwari-pos/ordering/internal/ws"
	"github.com/shopspring/decimal"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := store.NewMemory()
	for _, f := range []order.Food{
		{ID: "food-a", Name: "Nasi Lemak", Price: decimal.RequireFromString("12.99"), Available: true},
		{ID: "food-b", Name: "Teh Tarik", Price: decimal.RequireFromString("8.99"), Available: true},
	} {
		if _, err := mem.CreateFood(ctx, f); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	cfg := &config.Config{JWTSecret: "test-secret", CORSOrigins: []string{"http://localhost:5173"}}
	r := router.New(cfg, router.Deps{
		Orders:  service.NewOrderService(mem, mem, nil, pricing.DefaultPolicy()),
		Catalog: mem,
		Users:   store.NewMemoryUsers(),
		Hub:     hub,
		Broker:  realtime.NewBroker(mem, mem),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body interface{}, token string) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
}

func TestRegisterThenCheckout(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv.URL+"/auth/register", map[string]string{
		"email": "aina@example.com", "password": "s3cret-pass", "full_name": "Aina",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: got %d", resp.StatusCode)
	}
	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}

	resp = post(t, srv.URL+"/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"food_id": "food-a", "quantity": 2},
			{"food_id": "food-b", "quantity": 1},
		},
		"delivery_address": map[string]string{
			"street": "1 Jalan Ampang", "city": "Kuala Lumpur", "state": "WP",
			"postal_code": "50450", "country": "MY",
		},
		"contact_number": "+60123456789",
		"payment_method": "qr_code",
		"expected_total": "40.76",
	}, tokens.AccessToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: got %d", resp.StatusCode)
	}

	var o order.Order
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if o.Status != order.StatusPending || o.PaymentConfirmed {
		t.Errorf("qr order: got status %s confirmed=%v", o.Status, o.PaymentConfirmed)
	}
	if !o.GrandTotal.Equal(decimal.RequireFromString("40.76")) {
		t.Errorf("grand total: got %s, want 40.76", o.GrandTotal)
	}
}

func TestOrdersRequireToken(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/orders")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestGuestCheckoutThenPayWithToken(t *testing.T) {
	srv := newServer(t)

	resp := post(t, srv.URL+"/orders", map[string]interface{}{
		"guest_info": map[string]string{"full_name": "Aina", "email": "aina@example.com", "phone_number": "+60111"},
		"items":      []map[string]interface{}{{"food_id": "food-a", "quantity": 1}},
		"delivery_address": map[string]string{
			"street": "1 Jalan Ampang", "city": "Kuala Lumpur", "state": "WP",
			"postal_code": "50450", "country": "MY",
		},
		"contact_number": "+60123456789",
		"payment_method": "qr_code",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: got %d", resp.StatusCode)
	}
	var created order.Order
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if created.GuestToken == "" {
		t.Fatal("guest checkout returned no guest_token")
	}

	withGuestToken := func(method, path, token string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(method, srv.URL+path, nil)
		req.Header.Set("X-Guest-Token", token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := withGuestToken(http.MethodPost, "/orders/"+created.ID+"/payment/confirm", "wrong"); resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong token: got %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	resp = withGuestToken(http.MethodPost, "/orders/"+created.ID+"/payment/confirm", created.GuestToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: got %d", resp.StatusCode)
	}

	resp = withGuestToken(http.MethodGet, "/orders/"+created.ID, created.GuestToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: got %d", resp.StatusCode)
	}
	var got order.Order
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if !got.PaymentConfirmed {
		t.Error("expected payment confirmed")
	}
	if got.GuestToken != "" {
		t.Error("token must only appear on the checkout response")
	}
}
