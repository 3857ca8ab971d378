package bracket

import (
	"context"
	"log/slog"
	"time"

	"bracketd/internal/broker"
	"bracketd/internal/journal"
	"bracketd/internal/metrics"
)

// Reconciler supplies the one-cancels-other behavior the venue does not. It
// polls the venue's open orders and, whenever a protective leg of a watched
// group has left the book, cancels the surviving sibling and retires the
// group.
type Reconciler struct {
	gw        broker.Gateway
	auth      *broker.TokenManager
	registry  *Registry
	journal   *journal.Journal
	log       *slog.Logger
	accountID int64
	interval  time.Duration
}

// NewReconciler wires a Reconciler. jnl may be nil.
func NewReconciler(
	gw broker.Gateway,
	auth *broker.TokenManager,
	registry *Registry,
	jnl *journal.Journal,
	log *slog.Logger,
	accountID int64,
	interval time.Duration,
) *Reconciler {
	return &Reconciler{
		gw:        gw,
		auth:      auth,
		registry:  registry,
		journal:   jnl,
		log:       log,
		accountID: accountID,
		interval:  interval,
	}
}

// Run polls until the context is cancelled. Cycle errors are logged and the
// loop keeps going; a failed poll must never kill OCO protection.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reconciler started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped", "watched", r.registry.Len())
			return ctx.Err()
		case <-ticker.C:
			if err := r.Cycle(ctx); err != nil {
				r.log.Warn("reconcile cycle skipped", "error", err)
			}
		}
	}
}

// Cycle performs one reconciliation pass. With nothing under watch it returns
// without touching the venue. A token or open-order lookup failure skips the
// whole cycle: no cancel decisions are made on stale or missing data.
func (r *Reconciler) Cycle(ctx context.Context) error {
	if r.registry.Len() == 0 {
		return nil
	}

	token, err := r.auth.Token(ctx, false)
	if err != nil {
		return err
	}

	open, err := r.gw.SearchOpenOrders(ctx, token, r.accountID)
	if err != nil {
		metrics.RecordGatewayError("searchOpen")
		return err
	}
	metrics.RecordCycle()

	openSet := make(map[int64]bool, len(open))
	for _, o := range open {
		openSet[o.ID] = true
	}

	for _, g := range r.registry.Snapshot() {
		legs := g.ProtectiveLegIDs()
		if openSet[legs[0]] && openSet[legs[1]] {
			continue
		}

		// One protective leg has filled or been cancelled. Cancel whatever is
		// still on the book, one attempt per leg, then retire the group so it
		// is never acted on twice.
		var cancelled []int64
		for _, legID := range legs {
			if !openSet[legID] {
				continue
			}
			if err := r.gw.CancelOrder(ctx, token, r.accountID, legID); err != nil {
				metrics.RecordGatewayError("cancel")
				metrics.RecordSiblingCancel(false)
				r.log.Error("sibling cancel failed, order may still be live",
					"entryOrderId", g.EntryOrderID, "orderId", legID, "error", err)
				continue
			}
			metrics.RecordSiblingCancel(true)
			cancelled = append(cancelled, legID)
			r.log.Info("cancelled OCO sibling",
				"entryOrderId", g.EntryOrderID, "orderId", legID, "symbol", g.Symbol)
		}

		r.registry.Remove(g.EntryOrderID)
		if err := r.journal.RecordRetirement(ctx, g.EntryOrderID, cancelled); err != nil {
			r.log.Error("journal write failed", "entryOrderId", g.EntryOrderID, "error", err)
		}
	}
	return nil
}
