package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestProjectXGatewayLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/Auth/loginKey" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req["userName"] != "trader" || req["apiKey"] != "secret" {
			t.Errorf("unexpected credentials: %v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "tok-123"})
	}))
	defer srv.Close()

	gw := NewProjectXGateway(srv.URL, "trader", "secret", 5*time.Second, discardLogger())
	token, err := gw.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
}

func TestProjectXGatewayLoginFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "errorCode": 3, "errorMessage": "bad key"})
	}))
	defer srv.Close()

	gw := NewProjectXGateway(srv.URL, "trader", "wrong", 5*time.Second, discardLogger())
	if _, err := gw.Login(context.Background()); err == nil {
		t.Fatal("Login should fail when the venue reports failure")
	}
}

func TestProjectXGatewayPlaceOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/Order/place" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var req OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Type != 1 || req.LimitPrice == nil || *req.LimitPrice != 19000.25 {
			t.Errorf("unexpected order payload: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "orderId": 555})
	}))
	defer srv.Close()

	gw := NewProjectXGateway(srv.URL, "trader", "secret", 5*time.Second, discardLogger())
	price := 19000.25
	id, err := gw.PlaceOrder(context.Background(), "tok", OrderRequest{
		AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Type: 1, Side: 0, Size: 2, LimitPrice: &price,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != 555 {
		t.Errorf("order id = %d, want 555", id)
	}
}

func TestProjectXGatewayMissingOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// success flag set but no order id — must be treated as failure
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	gw := NewProjectXGateway(srv.URL, "trader", "secret", 5*time.Second, discardLogger())
	if _, err := gw.PlaceOrder(context.Background(), "tok", OrderRequest{}); err == nil {
		t.Fatal("PlaceOrder should fail when the venue omits the order id")
	}
}

func TestProjectXGatewayHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := NewProjectXGateway(srv.URL, "trader", "secret", 5*time.Second, discardLogger())
	if _, err := gw.SearchOpenOrders(context.Background(), "tok", 1); err == nil {
		t.Fatal("SearchOpenOrders should surface non-2xx status as an error")
	}
}

func TestTokenManagerCachesValidToken(t *testing.T) {
	sim := NewSimulator()
	tm := NewTokenManager(sim, discardLogger())

	tok1, err := tm.Token(context.Background(), false)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	tok2, err := tm.Token(context.Background(), false)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok1 != tok2 {
		t.Error("expected cached token to be reused")
	}
	if sim.Calls("login") != 1 {
		t.Errorf("login calls = %d, want 1", sim.Calls("login"))
	}
	if sim.Calls("validate") != 1 {
		t.Errorf("validate calls = %d, want 1 (probe on second Token)", sim.Calls("validate"))
	}
}

func TestTokenManagerRefreshOnInvalid(t *testing.T) {
	sim := NewSimulator()
	tm := NewTokenManager(sim, discardLogger())

	if _, err := tm.Token(context.Background(), false); err != nil {
		t.Fatalf("Token: %v", err)
	}

	// Make the probe fail; the manager must log in again.
	sim.FailValidate = true
	if _, err := tm.Token(context.Background(), false); err != nil {
		t.Fatalf("Token after invalidation: %v", err)
	}
	if sim.Calls("login") != 2 {
		t.Errorf("login calls = %d, want 2", sim.Calls("login"))
	}
}

func TestTokenManagerForceRefresh(t *testing.T) {
	sim := NewSimulator()
	tm := NewTokenManager(sim, discardLogger())

	if _, err := tm.Token(context.Background(), false); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := tm.Token(context.Background(), true); err != nil {
		t.Fatalf("Token force: %v", err)
	}
	if sim.Calls("login") != 2 {
		t.Errorf("login calls = %d, want 2 with force refresh", sim.Calls("login"))
	}
	if sim.Calls("validate") != 0 {
		t.Errorf("validate calls = %d, want 0 with force refresh", sim.Calls("validate"))
	}
}

func TestTokenManagerLoginFailure(t *testing.T) {
	sim := NewSimulator()
	sim.FailLogin = true
	tm := NewTokenManager(sim, discardLogger())

	if _, err := tm.Token(context.Background(), false); err == nil {
		t.Fatal("Token should fail when login fails")
	}
}

func TestSimulatorOrderLifecycle(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	price := 100.0
	id, err := sim.PlaceOrder(ctx, SimToken, OrderRequest{AccountID: 1001, ContractID: "CON.F.US.MYM.U25", Type: 1, Side: 0, Size: 1, LimitPrice: &price})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	open, err := sim.SearchOpenOrders(ctx, SimToken, 1001)
	if err != nil {
		t.Fatalf("SearchOpenOrders: %v", err)
	}
	if len(open) != 1 || open[0].ID != id {
		t.Fatalf("open orders = %+v, want the placed order", open)
	}

	if err := sim.CancelOrder(ctx, SimToken, 1001, id); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if ids := sim.OpenIDs(); len(ids) != 0 {
		t.Errorf("open ids after cancel = %v", ids)
	}
	if got := sim.CancelledIDs(); len(got) != 1 || got[0] != id {
		t.Errorf("cancelled ids = %v", got)
	}
}
