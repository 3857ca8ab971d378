// Package broker defines the Gateway interface to the trading venue and
// provides the real HTTPS implementation, an in-memory simulator for tests,
// and the token manager that owns authentication state.
package broker

import (
	"context"
)

// OrderRequest is a single order submission to the venue.
type OrderRequest struct {
	AccountID     int64    `json:"accountId"`
	ContractID    string   `json:"contractId"`
	Type          int      `json:"type"` // 1=Limit, 4=Stop
	Side          int      `json:"side"` // 0=Buy, 1=Sell
	Size          int      `json:"size"`
	LimitPrice    *float64 `json:"limitPrice,omitempty"`
	StopPrice     *float64 `json:"stopPrice,omitempty"`
	CustomTag     string   `json:"customTag,omitempty"`
	LinkedOrderID *int64   `json:"linkedOrderId,omitempty"`
}

// OpenOrder is one entry in the venue's open-order snapshot. Only the id is
// load-bearing for OCO reconciliation; the rest is informational.
type OpenOrder struct {
	ID         int64   `json:"id"`
	ContractID string  `json:"contractId"`
	Type       int     `json:"type"`
	Side       int     `json:"side"`
	Size       int     `json:"size"`
	LimitPrice float64 `json:"limitPrice"`
	StopPrice  float64 `json:"stopPrice"`
}

// Account is a venue trading account.
type Account struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Balance     float64 `json:"balance"`
	MaximumLoss float64 `json:"maximumLoss"`
	Active      bool    `json:"active"`
}

// RawContract is a venue catalog entry before canonicalization.
type RawContract struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	ProductID     string  `json:"productId"`
	TickSize      float64 `json:"tickSize"`
	TickValue     float64 `json:"tickValue"`
	PointValue    float64 `json:"pointValue"`
	ExchangeFee   float64 `json:"exchangeFee"`
	RegulatoryFee float64 `json:"regulatoryFee"`
	DecimalPlaces int     `json:"decimalPlaces"`
	Active        bool    `json:"activeContract"`
}

// Gateway abstracts the venue API. All calls are synchronous request/response;
// the bearer token is obtained separately from the TokenManager and passed per
// call. Implementations must not retry internally.
type Gateway interface {
	// Login exchanges credentials for a bearer token.
	Login(ctx context.Context) (string, error)

	// ValidateToken cheaply probes whether a cached token is still accepted.
	ValidateToken(ctx context.Context, token string) error

	// PlaceOrder submits one order and returns the venue-assigned order id.
	PlaceOrder(ctx context.Context, token string, req OrderRequest) (int64, error)

	// CancelOrder requests cancellation of an open order.
	CancelOrder(ctx context.Context, token string, accountID, orderID int64) error

	// SearchOpenOrders returns the current open-order snapshot for an account.
	SearchOpenOrders(ctx context.Context, token string, accountID int64) ([]OpenOrder, error)

	// SearchAccounts returns the active accounts visible to the credentials.
	SearchAccounts(ctx context.Context, token string) ([]Account, error)

	// AvailableContracts returns the venue's contract catalog.
	AvailableContracts(ctx context.Context, token string) ([]RawContract, error)
}
