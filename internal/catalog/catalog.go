// Package catalog builds and serves the symbol → contract specification
// mapping from the venue's contract list.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"bracketd/internal/broker"
	"bracketd/internal/domain"
)

// Catalog holds the current symbol → ContractSpec map. Refresh builds a new
// map wholesale and swaps it in atomically, so concurrent Resolve calls never
// observe a partially built catalog.
type Catalog struct {
	gw   broker.Gateway
	auth *broker.TokenManager
	log  *slog.Logger

	specs atomic.Value // map[string]domain.ContractSpec
}

// New creates an empty Catalog. Call Refresh before serving lookups.
func New(gw broker.Gateway, auth *broker.TokenManager, log *slog.Logger) *Catalog {
	c := &Catalog{gw: gw, auth: auth, log: log}
	c.specs.Store(map[string]domain.ContractSpec{})
	return c
}

// Refresh fetches the venue contract list and rebuilds the symbol map.
// Disabled entries and entries missing a contract or product id are skipped,
// not fatal. The new map replaces the old one in a single atomic store.
func (c *Catalog) Refresh(ctx context.Context) error {
	token, err := c.auth.Token(ctx, false)
	if err != nil {
		return domain.WrapError(domain.KindCatalogUnavailable, err, "refreshing contract catalog")
	}

	raw, err := c.gw.AvailableContracts(ctx, token)
	if err != nil {
		return domain.WrapError(domain.KindCatalogUnavailable, err, "fetching contract list")
	}

	specs := make(map[string]domain.ContractSpec, len(raw))
	skipped := 0
	for _, rc := range raw {
		if !rc.Active || rc.ID == "" || rc.ProductID == "" {
			skipped++
			continue
		}
		symbol := CanonicalSymbol(rc.ProductID)
		if symbol == "" || rc.TickSize <= 0 || rc.TickValue <= 0 {
			skipped++
			continue
		}
		specs[symbol] = domain.ContractSpec{
			Symbol:        symbol,
			ContractID:    rc.ID,
			ProductID:     rc.ProductID,
			Name:          rc.Name,
			TickSize:      rc.TickSize,
			TickValue:     rc.TickValue,
			PointValue:    rc.PointValue,
			ExchangeFee:   rc.ExchangeFee,
			RegulatoryFee: rc.RegulatoryFee,
			DecimalPlaces: rc.DecimalPlaces,
		}
	}

	c.specs.Store(specs)
	c.log.Info("contract catalog refreshed", "contracts", len(specs), "skipped", skipped)
	return nil
}

// Resolve returns the contract spec for a canonical symbol.
func (c *Catalog) Resolve(symbol string) (domain.ContractSpec, error) {
	specs := c.specs.Load().(map[string]domain.ContractSpec)
	spec, ok := specs[symbol]
	if !ok {
		return domain.ContractSpec{}, domain.NewError(domain.KindUnknownSymbol, "no contract for symbol %q", symbol)
	}
	return spec, nil
}

// Lookup is Resolve without the error, for use as a sizing resolver.
func (c *Catalog) Lookup(symbol string) (domain.ContractSpec, bool) {
	specs := c.specs.Load().(map[string]domain.ContractSpec)
	spec, ok := specs[symbol]
	return spec, ok
}

// All returns every known contract spec, sorted by symbol.
func (c *Catalog) All() []domain.ContractSpec {
	specs := c.specs.Load().(map[string]domain.ContractSpec)
	out := make([]domain.ContractSpec, 0, len(specs))
	for _, spec := range specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of known contracts.
func (c *Catalog) Len() int {
	return len(c.specs.Load().(map[string]domain.ContractSpec))
}
