package bracket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bracketd/internal/broker"
	"bracketd/internal/catalog"
	"bracketd/internal/domain"
	"bracketd/internal/sizing"
	"bracketd/internal/util"
)

const simAccountID = 1001

type fixture struct {
	sim        *broker.Simulator
	workflow   *Workflow
	reconciler *Reconciler
	registry   *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := broker.NewSimulator()
	log := slog.New(slog.DiscardHandler)
	auth := broker.NewTokenManager(sim, log)
	cat := catalog.New(sim, auth, log)
	require.NoError(t, cat.Refresh(context.Background()))

	engine := sizing.NewEngine(0.24, cat.Lookup)
	reg := NewRegistry()
	pacer := util.NewPacer(0)

	return &fixture{
		sim:        sim,
		workflow:   NewWorkflow(sim, auth, cat, engine, reg, pacer, nil, log, simAccountID),
		reconciler: NewReconciler(sim, auth, reg, nil, log, simAccountID, time.Millisecond),
		registry:   reg,
	}
}

func mnqRequest(quantity int) domain.BracketRequest {
	return domain.BracketRequest{
		Symbol:          "MNQ",
		EntryPrice:      18000,
		TakeProfitPrice: 18010,
		StopLossPrice:   17995,
		Quantity:        quantity,
	}
}

func TestPlaceBracketLifecycle(t *testing.T) {
	f := newFixture(t)

	res, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(2))
	require.NoError(t, err)

	assert.Equal(t, domain.SideBuy, res.Side)
	assert.Equal(t, 2, res.Quantity)
	assert.Equal(t, "CON.F.US.MNQ.U25", res.ContractID)
	assert.Equal(t, 50000.0, res.Balance)
	assert.NotZero(t, res.EntryOrderID)
	assert.NotZero(t, res.TakeProfitOrderID)
	assert.NotZero(t, res.StopLossOrderID)

	placed := f.sim.PlacedOrders()
	require.Len(t, placed, 3)

	entry := placed[0]
	assert.Equal(t, domain.OrderTypeLimit, entry.Req.Type)
	assert.Equal(t, 0, entry.Req.Side)
	require.NotNil(t, entry.Req.LimitPrice)
	assert.Equal(t, 18000.0, *entry.Req.LimitPrice)
	assert.Nil(t, entry.Req.LinkedOrderID)

	tp := placed[1]
	assert.Equal(t, domain.OrderTypeLimit, tp.Req.Type)
	assert.Equal(t, 1, tp.Req.Side)
	require.NotNil(t, tp.Req.LimitPrice)
	assert.Equal(t, 18010.0, *tp.Req.LimitPrice)
	require.NotNil(t, tp.Req.LinkedOrderID)
	assert.Equal(t, entry.ID, *tp.Req.LinkedOrderID)

	sl := placed[2]
	assert.Equal(t, domain.OrderTypeStop, sl.Req.Type)
	assert.Equal(t, 1, sl.Req.Side)
	require.NotNil(t, sl.Req.StopPrice)
	assert.Equal(t, 17995.0, *sl.Req.StopPrice)
	require.NotNil(t, sl.Req.LinkedOrderID)
	assert.Equal(t, entry.ID, *sl.Req.LinkedOrderID)

	require.Equal(t, 1, f.registry.Len())
	group := f.registry.Snapshot()[0]
	assert.Equal(t, res.EntryOrderID, group.EntryOrderID)
	assert.Equal(t, [2]int64{res.TakeProfitOrderID, res.StopLossOrderID}, group.ProtectiveLegIDs())
}

// stampedGateway records when each order submission reaches the venue.
type stampedGateway struct {
	broker.Gateway
	mu         sync.Mutex
	placeTimes []time.Time
}

func (g *stampedGateway) PlaceOrder(ctx context.Context, token string, req broker.OrderRequest) (int64, error) {
	g.mu.Lock()
	g.placeTimes = append(g.placeTimes, time.Now())
	g.mu.Unlock()
	return g.Gateway.PlaceOrder(ctx, token, req)
}

func TestPlaceBracketPacesProtectiveLegs(t *testing.T) {
	sim := broker.NewSimulator()
	gw := &stampedGateway{Gateway: sim}
	log := slog.New(slog.DiscardHandler)
	auth := broker.NewTokenManager(gw, log)
	cat := catalog.New(gw, auth, log)
	require.NoError(t, cat.Refresh(context.Background()))

	const delay = 60 * time.Millisecond
	wf := NewWorkflow(gw, auth, cat, sizing.NewEngine(0.24, cat.Lookup),
		NewRegistry(), util.NewPacer(delay), nil, log, simAccountID)

	_, err := wf.PlaceBracket(context.Background(), mnqRequest(1))
	require.NoError(t, err)

	require.Len(t, gw.placeTimes, 3)
	gap := gw.placeTimes[2].Sub(gw.placeTimes[1])
	assert.GreaterOrEqual(t, gap, delay,
		"stop-loss followed take-profit after %v, want at least %v", gap, delay)
}

func TestPlaceBracketStopEntry(t *testing.T) {
	f := newFixture(t)

	req := mnqRequest(1)
	req.EntryKind = domain.EntryStopMarket
	_, err := f.workflow.PlaceBracket(context.Background(), req)
	require.NoError(t, err)

	entry := f.sim.PlacedOrders()[0]
	assert.Equal(t, domain.OrderTypeStop, entry.Req.Type)
	assert.Nil(t, entry.Req.LimitPrice)
	require.NotNil(t, entry.Req.StopPrice)
	assert.Equal(t, 18000.0, *entry.Req.StopPrice)
}

func TestPlaceBracketRiskSizedWithPromotion(t *testing.T) {
	f := newFixture(t)

	// Risk-sized MNQ with the simulator's 50k account promotes to NQ and caps
	// at the per-order maximum.
	res, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(0))
	require.NoError(t, err)

	assert.Equal(t, "NQ", res.Symbol)
	assert.Equal(t, "CON.F.US.ENQ.U25", res.ContractID)
	assert.Equal(t, 3, res.Quantity)
}

func TestPlaceBracketValidation(t *testing.T) {
	f := newFixture(t)

	req := mnqRequest(1)
	req.Symbol = ""
	_, err := f.workflow.PlaceBracket(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.KindMissingField, domain.KindOf(err))

	req = mnqRequest(1)
	req.StopLossPrice = 0
	_, err = f.workflow.PlaceBracket(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.KindMissingField, domain.KindOf(err))

	assert.Empty(t, f.sim.PlacedOrders(), "invalid requests never reach the venue")
}

func TestPlaceBracketUnknownSymbol(t *testing.T) {
	f := newFixture(t)

	req := mnqRequest(1)
	req.Symbol = "ZB"
	_, err := f.workflow.PlaceBracket(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.KindUnknownSymbol, domain.KindOf(err))
}

func TestPlaceBracketEntryFailure(t *testing.T) {
	f := newFixture(t)
	f.sim.FailPlaceAtCall = 1

	_, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.Error(t, err)
	assert.Equal(t, domain.KindEntryOrderFailure, domain.KindOf(err))
	assert.Empty(t, f.sim.OpenIDs())
	assert.Equal(t, 0, f.registry.Len())
}

func TestPlaceBracketTakeProfitFailure(t *testing.T) {
	f := newFixture(t)
	f.sim.FailPlaceAtCall = 2

	_, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.Error(t, err)

	var perr *domain.ProtectiveOrderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.LegTakeProfit, perr.FailedLeg)
	assert.True(t, perr.EntryCancelled)
	assert.Zero(t, perr.TakeProfitOrderID)

	// The lone entry order was cleaned up; nothing is left on the book or
	// under OCO watch.
	assert.Contains(t, f.sim.CancelledIDs(), perr.EntryOrderID)
	assert.Empty(t, f.sim.OpenIDs())
	assert.Equal(t, 0, f.registry.Len())
}

func TestPlaceBracketStopLossFailure(t *testing.T) {
	f := newFixture(t)
	f.sim.FailPlaceAtCall = 3

	_, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.Error(t, err)

	var perr *domain.ProtectiveOrderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.LegStopLoss, perr.FailedLeg)
	assert.True(t, perr.EntryCancelled)
	assert.True(t, perr.SiblingCancelled)
	assert.NotZero(t, perr.TakeProfitOrderID)

	cancelled := f.sim.CancelledIDs()
	assert.Contains(t, cancelled, perr.EntryOrderID)
	assert.Contains(t, cancelled, perr.TakeProfitOrderID)
	assert.Empty(t, f.sim.OpenIDs())
	assert.Equal(t, 0, f.registry.Len())
}

func TestPlaceBracketCleanupFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.sim.FailPlaceAtCall = 2
	// The simulator assigns the entry order id 1001; refuse to cancel it.
	f.sim.FailCancelFor = map[int64]bool{1001: true}

	_, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.Error(t, err)

	var perr *domain.ProtectiveOrderError
	require.True(t, errors.As(err, &perr))
	assert.False(t, perr.EntryCancelled)
	assert.Contains(t, err.Error(), "entry NOT cancelled")
	assert.NotEmpty(t, f.sim.OpenIDs(), "the uncancellable entry is still live")
}

func TestAccountSnapshot(t *testing.T) {
	f := newFixture(t)

	acct, err := f.workflow.AccountSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(simAccountID), acct.AccountID)
	assert.Equal(t, 50000.0, acct.Balance)
	assert.Equal(t, 2000.0, acct.MaximumLoss)
}

func TestAccountSnapshotUnavailable(t *testing.T) {
	f := newFixture(t)
	f.sim.Accounts = nil

	_, err := f.workflow.AccountSnapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindAccountUnavailable, domain.KindOf(err))
}

func TestReconcilerIdleWithoutGroups(t *testing.T) {
	f := newFixture(t)

	before := f.sim.TotalCalls()
	require.NoError(t, f.reconciler.Cycle(context.Background()))
	assert.Equal(t, before, f.sim.TotalCalls(), "an empty registry must not touch the venue")
}

func TestReconcilerCancelsSurvivingSibling(t *testing.T) {
	f := newFixture(t)

	res, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.NoError(t, err)

	// Entry fills, then the take-profit fills: only the stop-loss survives.
	f.sim.MarkFilled(res.EntryOrderID)
	f.sim.MarkFilled(res.TakeProfitOrderID)

	require.NoError(t, f.reconciler.Cycle(context.Background()))

	assert.Contains(t, f.sim.CancelledIDs(), res.StopLossOrderID)
	assert.Empty(t, f.sim.OpenIDs())
	assert.Equal(t, 0, f.registry.Len())
}

func TestReconcilerLeavesIntactGroupsAlone(t *testing.T) {
	f := newFixture(t)

	res, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Cycle(context.Background()))

	// Both protective legs are still open, so nothing is cancelled.
	assert.Empty(t, f.sim.CancelledIDs())
	assert.Equal(t, 1, f.registry.Len())
	assert.Contains(t, f.sim.OpenIDs(), res.TakeProfitOrderID)
	assert.Contains(t, f.sim.OpenIDs(), res.StopLossOrderID)
}

func TestReconcilerSkipsCycleWhenSearchFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.NoError(t, err)

	f.sim.FailSearchOpen = true
	require.Error(t, f.reconciler.Cycle(context.Background()))

	// No cancel decisions were made on missing data.
	assert.Empty(t, f.sim.CancelledIDs())
	assert.Equal(t, 1, f.registry.Len())
}

func TestReconcilerSkipsCycleWhenAuthFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.NoError(t, err)

	f.sim.FailValidate = true
	f.sim.FailLogin = true
	require.Error(t, f.reconciler.Cycle(context.Background()))
	assert.Equal(t, 1, f.registry.Len())
}

func TestReconcilerRetiresGroupEvenWhenCancelFails(t *testing.T) {
	f := newFixture(t)

	res, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.NoError(t, err)

	f.sim.MarkFilled(res.TakeProfitOrderID)
	f.sim.FailCancelFor = map[int64]bool{res.StopLossOrderID: true}

	require.NoError(t, f.reconciler.Cycle(context.Background()))

	// One attempt was made; the group is retired regardless so it is never
	// acted on twice.
	assert.Equal(t, 0, f.registry.Len())
	assert.Contains(t, f.sim.OpenIDs(), res.StopLossOrderID)

	// A second pass with the empty registry is a pure no-op.
	before := f.sim.TotalCalls()
	require.NoError(t, f.reconciler.Cycle(context.Background()))
	assert.Equal(t, before, f.sim.TotalCalls())
}

func TestReconcilerHandlesMultipleGroups(t *testing.T) {
	f := newFixture(t)

	first, err := f.workflow.PlaceBracket(context.Background(), mnqRequest(1))
	require.NoError(t, err)
	second, err := f.workflow.PlaceBracket(context.Background(), domain.BracketRequest{
		Symbol: "MES", EntryPrice: 5000, TakeProfitPrice: 4990, StopLossPrice: 5005, Quantity: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 2, f.registry.Len())

	// Only the first group's stop-loss fires.
	f.sim.MarkFilled(first.EntryOrderID)
	f.sim.MarkFilled(first.StopLossOrderID)

	require.NoError(t, f.reconciler.Cycle(context.Background()))

	assert.Contains(t, f.sim.CancelledIDs(), first.TakeProfitOrderID)
	assert.NotContains(t, f.sim.CancelledIDs(), second.TakeProfitOrderID)
	assert.Equal(t, 1, f.registry.Len())
	assert.Equal(t, second.EntryOrderID, f.registry.Snapshot()[0].EntryOrderID)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.reconciler.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop on context cancel")
	}
}
