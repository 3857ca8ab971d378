// Package journal persists an audit trail of bracket placements and
// retirements to a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bracketd/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS placements (
	entry_order_id       INTEGER PRIMARY KEY,
	take_profit_order_id INTEGER NOT NULL,
	stop_loss_order_id   INTEGER NOT NULL,
	symbol               TEXT    NOT NULL,
	contract_id          TEXT    NOT NULL,
	side                 TEXT    NOT NULL,
	quantity             INTEGER NOT NULL,
	entry_price          REAL    NOT NULL,
	take_profit_price    REAL    NOT NULL,
	stop_loss_price      REAL    NOT NULL,
	risk_budget          REAL    NOT NULL,
	placed_at            TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS retirements (
	entry_order_id      INTEGER NOT NULL,
	cancelled_order_ids TEXT    NOT NULL,
	retired_at          TEXT    NOT NULL
);
`

// Journal is an append-only record of bracket activity. A nil *Journal is a
// valid no-op journal, so callers never have to guard their writes.
type Journal struct {
	db *sql.DB
}

// PlacementRecord is one row of the placements table.
type PlacementRecord struct {
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

// Open opens (creating if necessary) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	// SQLite allows one writer; funnel everything through a single conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// RecordPlacement writes one fully placed bracket.
func (j *Journal) RecordPlacement(ctx context.Context, res domain.BracketResult) error {
	if j == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO placements (
			entry_order_id, take_profit_order_id, stop_loss_order_id,
			symbol, contract_id, side, quantity,
			entry_price, take_profit_price, stop_loss_price,
			risk_budget, placed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.EntryOrderID, res.TakeProfitOrderID, res.StopLossOrderID,
		res.Symbol, res.ContractID, string(res.Side), res.Quantity,
		res.EntryPrice, res.TakeProfitPrice, res.StopLossPrice,
		res.RiskBudget, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording placement %d: %w", res.EntryOrderID, err)
	}
	return nil
}

// RecordRetirement writes one bracket retirement with the sibling order ids
// that were cancelled during it.
func (j *Journal) RecordRetirement(ctx context.Context, entryOrderID int64, cancelled []int64) error {
	if j == nil {
		return nil
	}
	ids := make([]string, len(cancelled))
	for i, id := range cancelled {
		ids[i] = strconv.FormatInt(id, 10)
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO retirements (entry_order_id, cancelled_order_ids, retired_at)
		VALUES (?, ?, ?)`,
		entryOrderID, strings.Join(ids, ","), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording retirement %d: %w", entryOrderID, err)
	}
	return nil
}

// RecentPlacements returns up to limit placements, newest first.
func (j *Journal) RecentPlacements(ctx context.Context, limit int) ([]PlacementRecord, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT entry_order_id, take_profit_order_id, stop_loss_order_id,
		       symbol, contract_id, side, quantity,
		       entry_price, take_profit_price, stop_loss_price,
		       risk_budget, placed_at
		FROM placements ORDER BY placed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying placements: %w", err)
	}
	defer rows.Close()

	var out []PlacementRecord
	for rows.Next() {
		var rec PlacementRecord
		var placedAt string
		if err := rows.Scan(
			&rec.EntryOrderID, &rec.TakeProfitOrderID, &rec.StopLossOrderID,
			&rec.Symbol, &rec.ContractID, &rec.Side, &rec.Quantity,
			&rec.EntryPrice, &rec.TakeProfitPrice, &rec.StopLossPrice,
			&rec.RiskBudget, &placedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning placement row: %w", err)
		}
		rec.PlacedAt, _ = time.Parse(time.RFC3339Nano, placedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
