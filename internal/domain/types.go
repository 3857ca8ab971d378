// Package domain defines the core types shared across the bracket order
// service: contract specifications, account snapshots, bracket requests,
// order legs, and bracket groups.
package domain

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side. Protective legs are always placed on the
// opposite side of the entry.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// VenueCode returns the integer side code the venue expects (0=buy, 1=sell).
func (s Side) VenueCode() int {
	if s == SideSell {
		return 1
	}
	return 0
}

// EntryKind selects how the bracket is entered.
type EntryKind string

const (
	EntryLimit      EntryKind = "limit"
	EntryStopMarket EntryKind = "stop"
)

// Venue order type codes.
const (
	OrderTypeLimit = 1
	OrderTypeStop  = 4
)

// LegRole identifies an order's role within a bracket group.
type LegRole string

const (
	LegEntry      LegRole = "entry"
	LegTakeProfit LegRole = "take_profit"
	LegStopLoss   LegRole = "stop_loss"
)

// ContractSpec describes a tradeable instrument. Immutable once built; the
// catalog swaps whole maps of these atomically.
type ContractSpec struct {
	Symbol        string  // canonical short symbol, e.g. "MNQ"
	ContractID    string  // venue contract identifier, e.g. "CON.F.US.MNQ.U25"
	ProductID     string  // venue product identifier, e.g. "F.US.MNQ"
	Name          string
	TickSize      float64 // minimum price increment, > 0
	TickValue     float64 // monetary value of one tick per contract, > 0
	PointValue    float64
	ExchangeFee   float64
	RegulatoryFee float64
	DecimalPlaces int
}

// AccountSnapshot is a point-in-time view of the trading account. It is read
// fresh for every sizing decision and never cached across requests.
type AccountSnapshot struct {
	AccountID   int64
	Balance     float64
	MaximumLoss float64
}

// BracketRequest is an inbound request to place a bracket order.
type BracketRequest struct {
	Symbol          string
	EntryKind       EntryKind
	EntryPrice      float64
	TakeProfitPrice float64
	StopLossPrice   float64
	Quantity        int // 0 means "risk-size it"
	CustomTag       string
}

// OrderLeg is one venue order within a bracket.
type OrderLeg struct {
	OrderID int64
	Role    LegRole
	Price   float64
}

// BracketGroup ties an entry order to its two protective legs. A group lives
// in the registry only while both protective legs are believed active; it is
// removed exactly once, by the reconciliation loop.
type BracketGroup struct {
	EntryOrderID      int64 // registry key; venue-unique
	TakeProfitOrderID int64
	StopLossOrderID   int64
	Symbol            string
	ContractID        string
	CreatedAt         time.Time
}

// ProtectiveLegIDs returns the two protective order ids.
func (g BracketGroup) ProtectiveLegIDs() [2]int64 {
	return [2]int64{g.TakeProfitOrderID, g.StopLossOrderID}
}

// BracketResult is returned to the caller after a bracket is fully placed.
type BracketResult struct {
	EntryOrderID      int64   `json:"entryOrderId"`
	TakeProfitOrderID int64   `json:"takeProfitOrderId"`
	StopLossOrderID   int64   `json:"stopLossOrderId"`
	Symbol            string  `json:"symbol"`
	ContractID        string  `json:"contractId"`
	Side              Side    `json:"side"`
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
