// Package api exposes the bracket order service over HTTP: placement
// endpoints, account and contract lookups, placement history, and health.
package api

import "bracketd/internal/domain"

// placeRequest is the inbound JSON body for the placement endpoints. The
// short field names match what the trading front-end sends: op is the entry
// (order) price, tp and sl the protective prices.
type placeRequest struct {
	Symbol    string  `json:"symbol"`
	Entry     float64 `json:"op"`
	TP        float64 `json:"tp"`
	SL        float64 `json:"sl"`
	Quantity  int     `json:"quantity"`
	CustomTag string  `json:"customTag"`
}

func (r placeRequest) toDomain(kind domain.EntryKind, defaultSymbol string) domain.BracketRequest {
	symbol := r.Symbol
	if symbol == "" {
		symbol = defaultSymbol
	}
	return domain.BracketRequest{
		Symbol:          symbol,
		EntryKind:       kind,
		EntryPrice:      r.Entry,
		TakeProfitPrice: r.TP,
		StopLossPrice:   r.SL,
		Quantity:        r.Quantity,
		CustomTag:       r.CustomTag,
	}
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// balanceResponse reports the live account snapshot.
type balanceResponse struct {
	AccountID   int64   `json:"accountId"`
	Balance     float64 `json:"balance"`
	MaximumLoss float64 `json:"maximumLoss"`
}

// contractJSON is the JSON representation of one catalog entry.
type contractJSON struct {
	Symbol        string  `json:"symbol"`
	ContractID    string  `json:"contractId"`
	ProductID     string  `json:"productId"`
	Name          string  `json:"name,omitempty"`
	TickSize      float64 `json:"tickSize"`
	TickValue     float64 `json:"tickValue"`
	PointValue    float64 `json:"pointValue,omitempty"`
	DecimalPlaces int     `json:"decimalPlaces"`
}

func convertContract(s domain.ContractSpec) contractJSON {
	return contractJSON{
		Symbol:        s.Symbol,
		ContractID:    s.ContractID,
		ProductID:     s.ProductID,
		Name:          s.Name,
		TickSize:      s.TickSize,
		TickValue:     s.TickValue,
		PointValue:    s.PointValue,
		DecimalPlaces: s.DecimalPlaces,
	}
}

// contractsResponse lists the known contracts.
type contractsResponse struct {
	Contracts []contractJSON `json:"contracts"`
}

// healthResponse reports service liveness.
type healthResponse struct {
	Status    string `json:"status"`
	Contracts int    `json:"contracts"`
	Watched   int    `json:"watched"`
}
