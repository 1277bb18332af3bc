package accession

import (
	"context"
	"fmt"
)

// RowIDStore hands out numeric primary keys for bulk-written tables. The engine assigns row ids
// itself so features can reference each other before anything is written.
type RowIDStore interface {
	LastRowID(ctx context.Context, table string) (int64, error)
	AdvanceRowID(ctx context.Context, table string, last int64) error
}

// RowIDs is a per-table sequential id counter seeded from the store.
type RowIDs struct {
	table string
	start int64
	next  int64
}

func OpenRowIDs(ctx context.Context, store RowIDStore, table string) (*RowIDs, error) {
	last, err := store.LastRowID(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read last %s id: %w", table, err)
	}
	return &RowIDs{table: table, start: last + 1, next: last + 1}, nil
}

func (r *RowIDs) Next() int64 {
	id := r.next
	r.next++
	return id
}

// Used reports whether any id was handed out.
func (r *RowIDs) Used() bool {
	return r.next > r.start
}

// Flush moves the store's sequence past the ids handed out, if any.
func (r *RowIDs) Flush(ctx context.Context, store RowIDStore) error {
	if !r.Used() {
		return nil
	}
	if err := store.AdvanceRowID(ctx, r.table, r.next-1); err != nil {
		return fmt.Errorf("advance %s id: %w", r.table, err)
	}
	return nil
}
