package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Compile-time interface check.
var _ Gateway = (*ProjectXGateway)(nil)

// ProjectXGateway implements Gateway against a ProjectX-protocol venue
// (TopstepX and compatible). Every call is a JSON POST; authenticated calls
// carry a bearer token. Calls are bounded by the client timeout and are never
// retried here — a timeout surfaces as an ordinary call failure.
type ProjectXGateway struct {
	baseURL    string
	username   string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewProjectXGateway creates a gateway for the given venue endpoint.
func NewProjectXGateway(baseURL, username, apiKey string, timeout time.Duration, log *slog.Logger) *ProjectXGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProjectXGateway{
		baseURL:    baseURL,
		username:   username,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// envelope is the venue's common response wrapper.
type envelope struct {
	Success      bool   `json:"success"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (e envelope) err(op string) error {
	if e.ErrorMessage != "" {
		return fmt.Errorf("%s: venue error %d: %s", op, e.ErrorCode, e.ErrorMessage)
	}
	return fmt.Errorf("%s: venue reported failure (code %d)", op, e.ErrorCode)
}

// post sends a JSON POST to path and decodes the response into out. A non-2xx
// status or a decode failure is an error; venue-level success flags are left
// to the caller.
func (g *ProjectXGateway) post(ctx context.Context, token, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calling %s: status %d: %s", path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Login exchanges the configured credentials for a bearer token.
func (g *ProjectXGateway) Login(ctx context.Context) (string, error) {
	payload := map[string]string{"userName": g.username, "apiKey": g.apiKey}
	var resp struct {
		envelope
		Token string `json:"token"`
	}
	if err := g.post(ctx, "", "/api/Auth/loginKey", payload, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.Token == "" {
		return "", resp.err("login")
	}
	return resp.Token, nil
}

// ValidateToken probes the token with the venue's validate endpoint.
func (g *ProjectXGateway) ValidateToken(ctx context.Context, token string) error {
	var resp envelope
	if err := g.post(ctx, token, "/api/Auth/validate", struct{}{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.err("validate token")
	}
	return nil
}

// PlaceOrder submits one order and returns the venue-assigned order id.
func (g *ProjectXGateway) PlaceOrder(ctx context.Context, token string, req OrderRequest) (int64, error) {
	var resp struct {
		envelope
		OrderID int64 `json:"orderId"`
	}
	if err := g.post(ctx, token, "/api/Order/place", req, &resp); err != nil {
		return 0, err
	}
	if !resp.Success || resp.OrderID == 0 {
		return 0, resp.err("place order")
	}
	g.log.Debug("order placed", "orderID", resp.OrderID, "contractID", req.ContractID, "type", req.Type, "side", req.Side, "size", req.Size)
	return resp.OrderID, nil
}

// CancelOrder requests cancellation of an open order.
func (g *ProjectXGateway) CancelOrder(ctx context.Context, token string, accountID, orderID int64) error {
	payload := map[string]int64{"accountId": accountID, "orderId": orderID}
	var resp envelope
	if err := g.post(ctx, token, "/api/Order/cancel", payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.err(fmt.Sprintf("cancel order %d", orderID))
	}
	return nil
}

// SearchOpenOrders returns the open-order snapshot for an account.
func (g *ProjectXGateway) SearchOpenOrders(ctx context.Context, token string, accountID int64) ([]OpenOrder, error) {
	payload := map[string]int64{"accountId": accountID}
	var resp struct {
		envelope
		Orders []OpenOrder `json:"orders"`
	}
	if err := g.post(ctx, token, "/api/Order/searchOpen", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.err("search open orders")
	}
	return resp.Orders, nil
}

// SearchAccounts returns the active accounts visible to the credentials.
func (g *ProjectXGateway) SearchAccounts(ctx context.Context, token string) ([]Account, error) {
	payload := map[string]bool{"onlyActiveAccounts": true}
	var resp struct {
		envelope
		Accounts []Account `json:"accounts"`
	}
	if err := g.post(ctx, token, "/api/Account/search", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.err("search accounts")
	}
	return resp.Accounts, nil
}

// AvailableContracts returns the venue's contract catalog.
func (g *ProjectXGateway) AvailableContracts(ctx context.Context, token string) ([]RawContract, error) {
	payload := map[string]bool{"live": false}
	var resp struct {
		envelope
		Contracts []RawContract `json:"contracts"`
	}
	if err := g.post(ctx, token, "/api/Contract/available", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.err("available contracts")
	}
	return resp.Contracts, nil
}
