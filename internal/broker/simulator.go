package broker

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Compile-time interface check.
var _ Gateway = (*Simulator)(nil)

// SimToken is the bearer token the simulator hands out.
const SimToken = "sim-token"

// PlacedOrder pairs a submitted request with its assigned order id.
type PlacedOrder struct {
	ID  int64
	Req OrderRequest
}

// Simulator implements Gateway deterministically in memory. Tests use it to
// drive the sizing engine, placement workflow, and reconciliation loop without
// network access, and to inject failures at specific calls.
type Simulator struct {
	mu        sync.Mutex
	nextID    int64
	open      map[int64]OpenOrder
	placed    []PlacedOrder
	cancelled []int64
	calls     map[string]int

	// Fixtures served by the read endpoints.
	Accounts  []Account
	Contracts []RawContract

	// Failure injection. Zero values mean "never fail".
	FailLogin       bool
	FailValidate    bool
	FailPlaceAtCall int // 1-based PlaceOrder call index that fails
	FailCancelFor   map[int64]bool
	FailSearchOpen  bool
}

// NewSimulator creates a Simulator with one funded account and a small
// futures catalog covering micro and standard contracts.
func NewSimulator() *Simulator {
	return &Simulator{
		nextID: 1000,
		open:   make(map[int64]OpenOrder),
		calls:  make(map[string]int),
		Accounts: []Account{
			{ID: 1001, Name: "SIM-1001", Balance: 50000, MaximumLoss: 2000, Active: true},
		},
		Contracts: []RawContract{
			{ID: "CON.F.US.MNQ.U25", Name: "MNQU25", Description: "Micro E-mini Nasdaq-100", ProductID: "F.US.MNQ", TickSize: 0.25, TickValue: 0.5, PointValue: 2, DecimalPlaces: 2, Active: true},
			{ID: "CON.F.US.ENQ.U25", Name: "NQU25", Description: "E-mini Nasdaq-100", ProductID: "F.US.ENQ", TickSize: 0.25, TickValue: 5, PointValue: 20, DecimalPlaces: 2, Active: true},
			{ID: "CON.F.US.MES.U25", Name: "MESU25", Description: "Micro E-mini S&P 500", ProductID: "F.US.MES", TickSize: 0.25, TickValue: 1.25, PointValue: 5, DecimalPlaces: 2, Active: true},
			{ID: "CON.F.US.EP.U25", Name: "ESU25", Description: "E-mini S&P 500", ProductID: "F.US.EP", TickSize: 0.25, TickValue: 12.5, PointValue: 50, DecimalPlaces: 2, Active: true},
			{ID: "CON.F.US.MYM.U25", Name: "MYMU25", Description: "Micro E-mini Dow", ProductID: "F.US.MYM", TickSize: 1, TickValue: 0.5, PointValue: 0.5, DecimalPlaces: 0, Active: true},
			{ID: "CON.F.US.MGC.U25", Name: "MGCU25", Description: "Micro Gold", ProductID: "F.US.MGC", TickSize: 0.1, TickValue: 1, PointValue: 10, DecimalPlaces: 1, Active: true},
			{ID: "CON.F.US.GCE.U25", Name: "GCU25", Description: "Gold", ProductID: "F.US.GCE", TickSize: 0.1, TickValue: 10, PointValue: 100, DecimalPlaces: 1, Active: true},
			// Entries the catalog must skip.
			{ID: "CON.F.US.RTY.Z20", Name: "RTYZ20", Description: "Expired Russell", ProductID: "F.US.RTY", TickSize: 0.1, TickValue: 5, Active: false},
			{ID: "", Name: "BROKEN", Description: "Missing contract id", ProductID: "F.US.XX", TickSize: 0.25, TickValue: 1, Active: true},
		},
	}
}

func (s *Simulator) count(op string) {
	s.calls[op]++
}

// Calls returns how many times the named gateway operation has been invoked.
func (s *Simulator) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the total number of gateway invocations.
func (s *Simulator) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Login returns the simulator token.
func (s *Simulator) Login(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("login")
	if s.FailLogin {
		return "", errors.New("simulator: login disabled")
	}
	return SimToken, nil
}

// ValidateToken accepts only the simulator token.
func (s *Simulator) ValidateToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("validate")
	if s.FailValidate || token != SimToken {
		return errors.New("simulator: invalid token")
	}
	return nil
}

// PlaceOrder assigns the next order id and records the order as open.
func (s *Simulator) PlaceOrder(_ context.Context, token string, req OrderRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("place")
	if token != SimToken {
		return 0, errors.New("simulator: invalid token")
	}
	if s.FailPlaceAtCall > 0 && s.calls["place"] == s.FailPlaceAtCall {
		return 0, errors.New("simulator: order rejected")
	}

	s.nextID++
	id := s.nextID
	oo := OpenOrder{ID: id, ContractID: req.ContractID, Type: req.Type, Side: req.Side, Size: req.Size}
	if req.LimitPrice != nil {
		oo.LimitPrice = *req.LimitPrice
	}
	if req.StopPrice != nil {
		oo.StopPrice = *req.StopPrice
	}
	s.open[id] = oo
	s.placed = append(s.placed, PlacedOrder{ID: id, Req: req})
	return id, nil
}

// CancelOrder removes the order from the open set.
func (s *Simulator) CancelOrder(_ context.Context, token string, _ int64, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("cancel")
	if token != SimToken {
		return errors.New("simulator: invalid token")
	}
	if s.FailCancelFor[orderID] {
		return errors.New("simulator: cancel rejected")
	}
	delete(s.open, orderID)
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

// SearchOpenOrders returns the open orders sorted by id.
func (s *Simulator) SearchOpenOrders(_ context.Context, token string, _ int64) ([]OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("searchOpen")
	if token != SimToken {
		return nil, errors.New("simulator: invalid token")
	}
	if s.FailSearchOpen {
		return nil, errors.New("simulator: search unavailable")
	}
	orders := make([]OpenOrder, 0, len(s.open))
	for _, o := range s.open {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// SearchAccounts returns the fixture accounts.
func (s *Simulator) SearchAccounts(_ context.Context, token string) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("searchAccounts")
	if token != SimToken {
		return nil, errors.New("simulator: invalid token")
	}
	return append([]Account(nil), s.Accounts...), nil
}

// AvailableContracts returns the fixture catalog.
func (s *Simulator) AvailableContracts(_ context.Context, token string) ([]RawContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("contracts")
	if token != SimToken {
		return nil, errors.New("simulator: invalid token")
	}
	return append([]RawContract(nil), s.Contracts...), nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// MarkFilled removes an order from the open set without recording a cancel,
// simulating a fill (or an external cancellation) at the venue.
func (s *Simulator) MarkFilled(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, orderID)
}

// OpenIDs returns the ids of all currently open orders, sorted.
func (s *Simulator) OpenIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CancelledIDs returns the ids of all orders cancelled through the gateway.
func (s *Simulator) CancelledIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.cancelled...)
}

// PlacedOrders returns every order submission in placement order.
func (s *Simulator) PlacedOrders() []PlacedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlacedOrder(nil), s.placed...)
}
