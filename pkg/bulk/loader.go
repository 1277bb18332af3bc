package bulk

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Batch accumulates encoded rows for one table. Rows are held in memory until the phase runs.
type Batch struct {
	Table   string
	Columns []string
	buf     strings.Builder
	rows    int
}

func NewBatch(table string, columns ...string) *Batch {
	return &Batch{Table: table, Columns: columns}
}

// Add appends a row. It panics when the field count does not match the column list, which is
// always a programming error.
func (b *Batch) Add(fields ...*string) {
	if len(fields) != len(b.Columns) {
		panic(fmt.Sprintf("bulk: %s row has %d fields, want %d", b.Table, len(fields), len(b.Columns)))
	}
	b.buf.WriteString(EncodeRow(fields))
	b.buf.WriteByte('\n')
	b.rows++
}

func (b *Batch) Len() int { return b.rows }

// Size is the encoded size in bytes.
func (b *Batch) Size() int { return b.buf.Len() }

// Reader returns the encoded rows, one per line.
func (b *Batch) Reader() io.Reader {
	return strings.NewReader(b.buf.String())
}

// Phase is a group of batches committed in one transaction, in order.
type Phase struct {
	Name    string
	Batches []*Batch
}

func (p Phase) rows() int {
	n := 0
	for _, b := range p.Batches {
		n += b.Len()
	}
	return n
}

// Tx is one bulk-write transaction on the store.
type Tx interface {
	CopyFrom(ctx context.Context, table string, columns []string, r io.Reader) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Beginner interface {
	BeginBulk(ctx context.Context) (Tx, error)
}

// BulkWriteError reports the phase and table that failed. Committed lists the phases that were
// already committed and stay visible.
type BulkWriteError struct {
	Phase     string
	Table     string
	Committed []string
	Err       error
}

func (e *BulkWriteError) Error() string {
	msg := fmt.Sprintf("bulk write phase %q", e.Phase)
	if e.Table != "" {
		msg += fmt.Sprintf(" table %q", e.Table)
	}
	msg += ": " + e.Err.Error()
	if len(e.Committed) > 0 {
		msg += fmt.Sprintf(" (already committed: %s)", strings.Join(e.Committed, ", "))
	}
	return msg
}

func (e *BulkWriteError) Unwrap() error {
	return e.Err
}

// Report summarizes a Run.
type Report struct {
	Committed []string
	Rows      map[string]int64
}

// AnyCommitted reports whether at least one phase reached the store.
func (r *Report) AnyCommitted() bool {
	return len(r.Committed) > 0
}

func (r *Report) TotalRows() int64 {
	var n int64
	for _, v := range r.Rows {
		n += v
	}
	return n
}

type Loader struct {
	db Beginner
}

func NewLoader(db Beginner) *Loader {
	return &Loader{db: db}
}

// Run commits phases in order, each in its own transaction. On failure the failing phase is
// rolled back and a *BulkWriteError is returned; earlier phases are not undone. The report is
// returned in both cases.
func (l *Loader) Run(ctx context.Context, phases ...Phase) (*Report, error) {
	report := &Report{Rows: make(map[string]int64)}
	for _, phase := range phases {
		if phase.rows() == 0 {
			logger.Debug("Skipping empty bulk phase", zap.String("phase", phase.Name))
			continue
		}
		if err := l.runPhase(ctx, phase, report); err != nil {
			return report, err
		}
		report.Committed = append(report.Committed, phase.Name)
	}
	return report, nil
}

func (l *Loader) runPhase(ctx context.Context, phase Phase, report *Report) error {
	start := time.Now()
	fail := func(table string, err error) error {
		return &BulkWriteError{
			Phase:     phase.Name,
			Table:     table,
			Committed: append([]string(nil), report.Committed...),
			Err:       err,
		}
	}

	tx, err := l.db.BeginBulk(ctx)
	if err != nil {
		return fail("", fmt.Errorf("begin: %w", err))
	}

	rows := make(map[string]int64, len(phase.Batches))
	for _, b := range phase.Batches {
		if b.Len() == 0 {
			continue
		}
		n, err := tx.CopyFrom(ctx, b.Table, b.Columns, b.Reader())
		if err == nil && n != int64(b.Len()) {
			err = fmt.Errorf("copied %d rows, want %d", n, b.Len())
		}
		if err != nil {
			err = multierr.Append(err, tx.Rollback(ctx))
			logger.Error("Bulk phase failed", zap.String("phase", phase.Name), zap.String("table", b.Table), zap.Error(err))
			return fail(b.Table, err)
		}
		rows[b.Table] += n
		logger.Debug("Copied batch",
			zap.String("phase", phase.Name),
			zap.String("table", b.Table),
			zap.String("rows", humanize.Comma(n)),
			zap.String("size", humanize.Bytes(uint64(b.Size()))),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Bulk phase commit failed", zap.String("phase", phase.Name), zap.Error(err))
		return fail("", fmt.Errorf("commit: %w", err))
	}

	var total int64
	for table, n := range rows {
		report.Rows[table] += n
		total += n
	}
	logger.Info("Bulk phase committed",
		zap.String("phase", phase.Name),
		zap.String("rows", humanize.Comma(total)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
