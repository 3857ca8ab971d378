// Package bracket is a small HTTP client for the bracket order service. It is
// the programmatic counterpart of the REST API and is what the operator CLI
// uses.
package bracket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running bracket order service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the service at baseURL, e.g.
// "http://localhost:5000".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("bracket service: %s (%s, HTTP %d)", e.Message, e.Kind, e.Status)
	}
	return fmt.Sprintf("bracket service: %s (HTTP %d)", e.Message, e.Status)
}

// PlaceParams describes a bracket to place. Quantity 0 lets the service size
// the order from account risk. StopEntry selects a stop-market entry instead
// of a limit entry.
type PlaceParams struct {
	Symbol     string
	Entry      float64
	TakeProfit float64
	StopLoss   float64
	Quantity   int
	CustomTag  string
	StopEntry  bool
}

// Result is a fully placed bracket as reported by the service.
type Result struct {
	EntryOrderID      int64   `json:"entryOrderId"`
	TakeProfitOrderID int64   `json:"takeProfitOrderId"`
	StopLossOrderID   int64   `json:"stopLossOrderId"`
	Symbol            string  `json:"symbol"`
	ContractID        string  `json:"contractId"`
	Side              string  `json:"side"`
	Quantity          int     `json:"quantity"`
	EntryPrice        float64 `json:"entryPrice"`
	TakeProfitPrice   float64 `json:"takeProfitPrice"`
	StopLossPrice     float64 `json:"stopLossPrice"`
	TickSize          float64 `json:"tickSize"`
	TickValue         float64 `json:"tickValue"`
	Balance           float64 `json:"balance"`
	MaximumLoss       float64 `json:"maximumLoss"`
	RiskBudget        float64 `json:"riskBudget"`
}

// Balance is the live account snapshot.
type Balance struct {
	AccountID   int64   `json:"accountId"`
	Balance     float64 `json:"balance"`
	MaximumLoss float64 `json:"maximumLoss"`
}

// Contract is one tradeable instrument known to the service.
type Contract struct {
	Symbol        string  `json:"symbol"`
	ContractID    string  `json:"contractId"`
	ProductID     string  `json:"productId"`
	Name          string  `json:"name"`
	TickSize      float64 `json:"tickSize"`
	TickValue     float64 `json:"tickValue"`
	PointValue    float64 `json:"pointValue"`
	DecimalPlaces int     `json:"decimalPlaces"`
}

// Placement is one historical placement from the service journal.
type Placement struct {
	EntryOrderID      int64     `json:"entryOrderId"`
	TakeProfitOrderID int64     `json:"takeProfitOrderId"`
	StopLossOrderID   int64     `json:"stopLossOrderId"`
	Symbol            string    `json:"symbol"`
	ContractID        string    `json:"contractId"`
	Side              string    `json:"side"`
	Quantity          int       `json:"quantity"`
	EntryPrice        float64   `json:"entryPrice"`
	TakeProfitPrice   float64   `json:"takeProfitPrice"`
	StopLossPrice     float64   `json:"stopLossPrice"`
	RiskBudget        float64   `json:"riskBudget"`
	PlacedAt          time.Time `json:"placedAt"`
}

// PlaceBracket places a bracket order and returns the three order ids.
func (c *Client) PlaceBracket(ctx context.Context, p PlaceParams) (Result, error) {
	path := "/place-oco"
	if p.StopEntry {
		path = "/place-oco-stop"
	}
	body := map[string]any{
		"symbol":   p.Symbol,
		"op":       p.Entry,
		"tp":       p.TakeProfit,
		"sl":       p.StopLoss,
		"quantity": p.Quantity,
	}
	if p.CustomTag != "" {
		body["customTag"] = p.CustomTag
	}
	var res Result
	err := c.do(ctx, http.MethodPost, path, body, &res)
	return res, err
}

// GetBalance reads the live account snapshot.
func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	var b Balance
	err := c.do(ctx, http.MethodGet, "/api/balance", nil, &b)
	return b, err
}

// ListContracts lists every contract in the service catalog.
func (c *Client) ListContracts(ctx context.Context) ([]Contract, error) {
	var resp struct {
		Contracts []Contract `json:"contracts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/contracts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Contracts, nil
}

// History returns up to limit recent placements, newest first. limit 0 uses
// the service default.
func (c *Client) History(ctx context.Context, limit int) ([]Placement, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Placements []Placement `json:"placements"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Placements, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if decErr := json.NewDecoder(resp.Body).Decode(&apiErr); decErr != nil || apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Kind: apiErr.Kind, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
