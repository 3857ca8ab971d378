// Package sizing converts a raw bracket request into a tick-rounded,
// risk-capped order quantity and instrument selection. The engine is pure:
// given the same request, contract spec, and account snapshot it always
// produces the same result, with no I/O.
package sizing

import (
	"math"

	"bracketd/internal/catalog"
	"bracketd/internal/domain"
)

// Per-order quantity limits. smallAccountCap applies to standard-size
// contracts when the risk budget is thin; hardCap bounds every order.
const (
	smallAccountCap        = 2
	smallAccountTickValue  = 5.0
	smallAccountBudgetLine = 1500.0
	hardCap                = 3
	promotionThreshold     = 10
)

// SpecResolver looks up a contract spec by canonical symbol. The catalog
// satisfies this; tests supply a map-backed stub.
type SpecResolver func(symbol string) (domain.ContractSpec, bool)

// Result is a fully sized bracket: the (possibly promoted) contract, prices
// rounded to its tick grid, side, and quantity.
type Result struct {
	Spec       domain.ContractSpec
	Entry      float64
	TakeProfit float64
	StopLoss   float64
	Side       domain.Side
	Quantity   int
	StopTicks  float64
	RiskBudget float64
	Promoted   bool
}

// Engine sizes bracket orders from account risk capacity.
type Engine struct {
	riskFraction float64
	resolve      SpecResolver
}

// NewEngine creates an Engine. riskFraction is the fraction of
// (balance - maximumLoss) a single bracket may put at risk. resolve is used
// to look up the standard-size contract on promotion; it may be nil, which
// disables promotion.
func NewEngine(riskFraction float64, resolve SpecResolver) *Engine {
	return &Engine{riskFraction: riskFraction, resolve: resolve}
}

// RoundToTick rounds price to the nearest multiple of tick. Idempotent for
// any tick > 0.
func RoundToTick(price, tick float64) float64 {
	return math.Round(price/tick) * tick
}

// stopTicks returns the entry→stop distance in ticks, rounded to the nearest
// whole tick to absorb float error.
func stopTicks(entry, stop, tick float64) float64 {
	return math.Round(math.Abs(entry-stop) / tick)
}

// Size computes the final quantity and prices for a bracket request.
//
// The quantity comes from the risk budget when the request leaves it zero;
// an explicit requested quantity skips risk sizing but is still subject to
// the hard cap. Promotion from a micro to its standard-size contract happens
// only on the risk-sized path, when the micro quantity reaches the promotion
// threshold and a standard sibling is registered.
func (e *Engine) Size(req domain.BracketRequest, spec domain.ContractSpec, acct domain.AccountSnapshot) (Result, error) {
	entry := RoundToTick(req.EntryPrice, spec.TickSize)
	tp := RoundToTick(req.TakeProfitPrice, spec.TickSize)
	sl := RoundToTick(req.StopLossPrice, spec.TickSize)

	// A stop on the same tick as the entry would mean zero risk distance.
	// Bump the entry one tick away from the stop, toward the target.
	if entry == sl {
		if tp > entry {
			entry += spec.TickSize
		} else {
			entry -= spec.TickSize
		}
	}

	ticks := stopTicks(entry, sl, spec.TickSize)
	if ticks == 0 {
		return Result{}, domain.NewError(domain.KindInvalidStopDistance,
			"entry %v and stop %v are on the same tick", entry, sl)
	}

	riskBudget := (acct.Balance - acct.MaximumLoss) * e.riskFraction

	var quantity int
	promoted := false
	if req.Quantity > 0 {
		quantity = req.Quantity
	} else {
		quantity = int(math.Floor(riskBudget / (ticks * spec.TickValue)))

		// Thin budgets on standard-size contracts get clamped before the
		// promotion check.
		if quantity > smallAccountCap && spec.TickValue >= smallAccountTickValue && riskBudget < smallAccountBudgetLine {
			quantity = smallAccountCap
		}

		if quantity >= promotionThreshold && e.resolve != nil {
			if stdSymbol, ok := catalog.StandardFor(spec.Symbol); ok {
				if stdSpec, ok := e.resolve(stdSymbol); ok {
					spec = stdSpec
					promoted = true
					entry = RoundToTick(req.EntryPrice, spec.TickSize)
					tp = RoundToTick(req.TakeProfitPrice, spec.TickSize)
					sl = RoundToTick(req.StopLossPrice, spec.TickSize)
					if entry == sl {
						if tp > entry {
							entry += spec.TickSize
						} else {
							entry -= spec.TickSize
						}
					}
					ticks = stopTicks(entry, sl, spec.TickSize)
					if ticks == 0 {
						return Result{}, domain.NewError(domain.KindInvalidStopDistance,
							"entry %v and stop %v are on the same tick after promotion", entry, sl)
					}
					quantity = int(math.Floor(riskBudget / (ticks * spec.TickValue)))
				}
			}
		}
	}

	if quantity > hardCap {
		quantity = hardCap
	}
	if quantity <= 0 {
		return Result{}, domain.NewError(domain.KindZeroQuantity,
			"risk budget %.2f supports no contracts at %v ticks of %v risk", riskBudget, ticks, spec.TickValue)
	}

	// Side comes from price geometry, not from any signed-quantity
	// convention: a target above the entry means a long bracket.
	side := domain.SideSell
	if entry < tp {
		side = domain.SideBuy
	}

	return Result{
		Spec:       spec,
		Entry:      entry,
		TakeProfit: tp,
		StopLoss:   sl,
		Side:       side,
		Quantity:   quantity,
		StopTicks:  ticks,
		RiskBudget: riskBudget,
		Promoted:   promoted,
	}, nil
}
