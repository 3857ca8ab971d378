package bracket

import (
	"context"
	"log/slog"
	"time"

	"bracketd/internal/broker"
	"bracketd/internal/catalog"
	"bracketd/internal/domain"
	"bracketd/internal/journal"
	"bracketd/internal/metrics"
	"bracketd/internal/sizing"
	"bracketd/internal/util"
)

// Workflow places bracket orders: entry first, then the two protective legs,
// with cleanup when a later step fails. On success the group is handed to the
// registry for OCO reconciliation.
type Workflow struct {
	gw        broker.Gateway
	auth      *broker.TokenManager
	catalog   *catalog.Catalog
	engine    *sizing.Engine
	registry  *Registry
	pacer     *util.Pacer
	journal   *journal.Journal
	log       *slog.Logger
	accountID int64
}

// NewWorkflow wires a Workflow. jnl may be nil to disable the audit journal.
// accountID 0 means "use the first active account", resolved per request.
func NewWorkflow(
	gw broker.Gateway,
	auth *broker.TokenManager,
	cat *catalog.Catalog,
	engine *sizing.Engine,
	registry *Registry,
	pacer *util.Pacer,
	jnl *journal.Journal,
	log *slog.Logger,
	accountID int64,
) *Workflow {
	return &Workflow{
		gw:        gw,
		auth:      auth,
		catalog:   cat,
		engine:    engine,
		registry:  registry,
		pacer:     pacer,
		journal:   jnl,
		log:       log,
		accountID: accountID,
	}
}

// AccountSnapshot reads a fresh view of the trading account. Snapshots are
// never cached: every sizing decision sees current balance and loss limit.
func (w *Workflow) AccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	token, err := w.auth.Token(ctx, false)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	return w.snapshot(ctx, token)
}

func (w *Workflow) snapshot(ctx context.Context, token string) (domain.AccountSnapshot, error) {
	accounts, err := w.gw.SearchAccounts(ctx, token)
	if err != nil {
		metrics.RecordGatewayError("searchAccounts")
		return domain.AccountSnapshot{}, domain.WrapError(domain.KindAccountUnavailable, err, "fetching accounts")
	}
	for _, a := range accounts {
		if w.accountID != 0 && a.ID != w.accountID {
			continue
		}
		if w.accountID == 0 && !a.Active {
			continue
		}
		return domain.AccountSnapshot{AccountID: a.ID, Balance: a.Balance, MaximumLoss: a.MaximumLoss}, nil
	}
	return domain.AccountSnapshot{}, domain.NewError(domain.KindAccountUnavailable,
		"no usable account (configured id %d, %d returned)", w.accountID, len(accounts))
}

// PlaceBracket executes the three-step placement: entry, take-profit, then
// stop-loss, pacing the two protective submissions apart. A failure after the
// entry exists triggers cleanup of every order placed so far; the returned
// ProtectiveOrderError records what cleanup achieved.
func (w *Workflow) PlaceBracket(ctx context.Context, req domain.BracketRequest) (domain.BracketResult, error) {
	if err := validate(req); err != nil {
		return domain.BracketResult{}, err
	}

	token, err := w.auth.Token(ctx, false)
	if err != nil {
		return domain.BracketResult{}, err
	}

	spec, err := w.catalog.Resolve(req.Symbol)
	if err != nil {
		return domain.BracketResult{}, err
	}

	acct, err := w.snapshot(ctx, token)
	if err != nil {
		return domain.BracketResult{}, err
	}

	sized, err := w.engine.Size(req, spec, acct)
	if err != nil {
		return domain.BracketResult{}, err
	}
	if sized.Promoted {
		w.log.Info("promoted to standard contract",
			"from", spec.Symbol, "to", sized.Spec.Symbol, "quantity", sized.Quantity)
	}

	entryType := domain.OrderTypeLimit
	entryPrice := &sized.Entry
	var entryStop *float64
	if req.EntryKind == domain.EntryStopMarket {
		entryType = domain.OrderTypeStop
		entryPrice = nil
		entryStop = &sized.Entry
	}

	entryID, err := w.gw.PlaceOrder(ctx, token, broker.OrderRequest{
		AccountID:  acct.AccountID,
		ContractID: sized.Spec.ContractID,
		Type:       entryType,
		Side:       sized.Side.VenueCode(),
		Size:       sized.Quantity,
		LimitPrice: entryPrice,
		StopPrice:  entryStop,
		CustomTag:  req.CustomTag,
	})
	if err != nil {
		metrics.RecordGatewayError("place")
		metrics.RecordPlacement(sized.Spec.Symbol, "entry_failed")
		return domain.BracketResult{}, domain.WrapError(domain.KindEntryOrderFailure, err,
			"placing %s entry for %s", req.EntryKind, sized.Spec.Symbol)
	}

	exitSide := sized.Side.Opposite().VenueCode()

	tpID, err := w.gw.PlaceOrder(ctx, token, broker.OrderRequest{
		AccountID:     acct.AccountID,
		ContractID:    sized.Spec.ContractID,
		Type:          domain.OrderTypeLimit,
		Side:          exitSide,
		Size:          sized.Quantity,
		LimitPrice:    &sized.TakeProfit,
		LinkedOrderID: &entryID,
	})
	if err != nil {
		metrics.RecordGatewayError("place")
		metrics.RecordPlacement(sized.Spec.Symbol, "take_profit_failed")
		perr := &domain.ProtectiveOrderError{
			EntryOrderID: entryID,
			FailedLeg:    domain.LegTakeProfit,
			Err:          err,
		}
		perr.EntryCancelled = w.cleanupCancel(ctx, token, acct.AccountID, entryID, "entry")
		return domain.BracketResult{}, perr
	}

	// The stop-loss must trail the take-profit by the pacing interval.
	w.pacer.Mark()

	if err := w.pacer.Wait(ctx); err != nil {
		// Shutdown between the protective legs: unwind everything.
		perr := &domain.ProtectiveOrderError{
			EntryOrderID:      entryID,
			TakeProfitOrderID: tpID,
			FailedLeg:         domain.LegStopLoss,
			Err:               err,
		}
		perr.SiblingCancelled = w.cleanupCancel(ctx, token, acct.AccountID, tpID, "take-profit")
		perr.EntryCancelled = w.cleanupCancel(ctx, token, acct.AccountID, entryID, "entry")
		return domain.BracketResult{}, perr
	}

	slID, err := w.gw.PlaceOrder(ctx, token, broker.OrderRequest{
		AccountID:     acct.AccountID,
		ContractID:    sized.Spec.ContractID,
		Type:          domain.OrderTypeStop,
		Side:          exitSide,
		Size:          sized.Quantity,
		StopPrice:     &sized.StopLoss,
		LinkedOrderID: &entryID,
	})
	if err != nil {
		metrics.RecordGatewayError("place")
		metrics.RecordPlacement(sized.Spec.Symbol, "stop_loss_failed")
		perr := &domain.ProtectiveOrderError{
			EntryOrderID:      entryID,
			TakeProfitOrderID: tpID,
			FailedLeg:         domain.LegStopLoss,
			Err:               err,
		}
		perr.SiblingCancelled = w.cleanupCancel(ctx, token, acct.AccountID, tpID, "take-profit")
		perr.EntryCancelled = w.cleanupCancel(ctx, token, acct.AccountID, entryID, "entry")
		return domain.BracketResult{}, perr
	}

	group := domain.BracketGroup{
		EntryOrderID:      entryID,
		TakeProfitOrderID: tpID,
		StopLossOrderID:   slID,
		Symbol:            sized.Spec.Symbol,
		ContractID:        sized.Spec.ContractID,
		CreatedAt:         time.Now(),
	}
	w.registry.Insert(group)

	result := domain.BracketResult{
		EntryOrderID:      entryID,
		TakeProfitOrderID: tpID,
		StopLossOrderID:   slID,
		Symbol:            sized.Spec.Symbol,
		ContractID:        sized.Spec.ContractID,
		Side:              sized.Side,
		Quantity:          sized.Quantity,
		EntryPrice:        sized.Entry,
		TakeProfitPrice:   sized.TakeProfit,
		StopLossPrice:     sized.StopLoss,
		TickSize:          sized.Spec.TickSize,
		TickValue:         sized.Spec.TickValue,
		Balance:           acct.Balance,
		MaximumLoss:       acct.MaximumLoss,
		RiskBudget:        sized.RiskBudget,
	}

	if err := w.journal.RecordPlacement(ctx, result); err != nil {
		w.log.Error("journal write failed", "entryOrderId", entryID, "error", err)
	}
	metrics.RecordPlacement(sized.Spec.Symbol, "ok")
	w.log.Info("bracket placed",
		"symbol", sized.Spec.Symbol,
		"side", sized.Side,
		"quantity", sized.Quantity,
		"entryOrderId", entryID,
		"takeProfitOrderId", tpID,
		"stopLossOrderId", slID)

	return result, nil
}

// cleanupCancel makes exactly one cancel attempt and reports whether it
// succeeded. Failures are logged, never retried; the order is left for manual
// intervention.
func (w *Workflow) cleanupCancel(ctx context.Context, token string, accountID, orderID int64, role string) bool {
	if err := w.gw.CancelOrder(ctx, token, accountID, orderID); err != nil {
		metrics.RecordGatewayError("cancel")
		w.log.Error("cleanup cancel failed, order may still be live",
			"role", role, "orderId", orderID, "error", err)
		return false
	}
	w.log.Info("cleanup cancelled order", "role", role, "orderId", orderID)
	return true
}

func validate(req domain.BracketRequest) error {
	switch {
	case req.Symbol == "":
		return domain.NewError(domain.KindMissingField, "symbol is required")
	case req.EntryPrice <= 0:
		return domain.NewError(domain.KindMissingField, "entry price is required")
	case req.TakeProfitPrice <= 0:
		return domain.NewError(domain.KindMissingField, "take-profit price is required")
	case req.StopLossPrice <= 0:
		return domain.NewError(domain.KindMissingField, "stop-loss price is required")
	case req.Quantity < 0:
		return domain.NewError(domain.KindMissingField, "quantity must not be negative")
	}
	return nil
}
