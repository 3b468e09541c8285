package runstate

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendCostEntry records one committed spend entry. Entries are
// append-only; nothing in the codebase updates or deletes them.
func (s *Store) AppendCostEntry(ctx context.Context, entry *CostEntry) error {
	now := time.Now().UTC()
	entry.CreatedAt = now
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO cost_entries (provider, task_id, amount, created_at) VALUES (?, ?, ?, ?)`,
		entry.Provider,
		nullableString(entry.TaskID),
		entry.Amount,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert cost entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// CostEntries returns all committed entries in insertion order.
func (s *Store) CostEntries(ctx context.Context) ([]CostEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, provider, task_id, amount, created_at FROM cost_entries ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query cost entries: %w", err)
	}
	defer rows.Close()

	var entries []CostEntry
	for rows.Next() {
		var (
			entry      CostEntry
			taskID     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.Provider, &taskID, &entry.Amount, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan cost entry: %w", err)
		}
		entry.TaskID = taskID.String
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CostTotals returns the committed total and the per-provider breakdown.
func (s *Store) CostTotals(ctx context.Context) (float64, map[string]float64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT provider, COALESCE(SUM(amount), 0) FROM cost_entries GROUP BY provider`,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("query cost totals: %w", err)
	}
	defer rows.Close()

	total := 0.0
	byProvider := make(map[string]float64)
	for rows.Next() {
		var (
			provider string
			amount   float64
		)
		if err := rows.Scan(&provider, &amount); err != nil {
			return 0, nil, fmt.Errorf("scan cost total: %w", err)
		}
		byProvider[provider] = amount
		total += amount
	}
	return total, byProvider, rows.Err()
}
