package bulk

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRow(t *testing.T) {
	tests := []struct {
		name   string
		fields []*string
		want   string
	}{
		{"plain", []*string{Str("a"), Str("b")}, "a\tb"},
		{"null", []*string{Int(7), nil, Str("")}, "7\t\\N\t"},
		{"escapes", []*string{Str("tab\there"), Str("line\nbreak"), Str(`back\slash`)}, `tab\there` + "\t" + `line\nbreak` + "\t" + `back\\slash`},
		{"literal null marker", []*string{Str(`\N`)}, `\\N`},
		{"optional", []*string{OptStr(""), OptInt(0), OptInt(3), Bool(true)}, "\\N\t\\N\t3\ttrue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeRow(tt.fields)
			assert.Equal(t, tt.want, got)

			back, err := DecodeRow(got)
			require.NoError(t, err)
			assert.Equal(t, tt.fields, back)
		})
	}
}

func TestDecodeRowRejectsBadEscape(t *testing.T) {
	for _, line := range []string{`abc\`, `a\qb`} {
		_, err := DecodeRow(line)
		assert.ErrorIs(t, err, ErrBadEscape, line)
	}
}

func TestFloat(t *testing.T) {
	assert.Equal(t, "0.001", *Float(0.001))
	assert.Equal(t, "-1.5", *Float(-1.5))
	assert.Equal(t, "5e-324", *Float(5e-324))
}

func TestBatchAddPanicsOnWidth(t *testing.T) {
	b := NewBatch("t", "a", "b")
	assert.Panics(t, func() { b.Add(Str("only one")) })
}

// fakeDB records committed rows per table and can fail on a chosen table.
type fakeDB struct {
	committed map[string][]string
	failOn    string
	begun     int
	rollbacks int
}

type fakeTx struct {
	db      *fakeDB
	pending map[string][]string
}

func (d *fakeDB) BeginBulk(context.Context) (Tx, error) {
	d.begun++
	return &fakeTx{db: d, pending: map[string][]string{}}, nil
}

func (tx *fakeTx) CopyFrom(_ context.Context, table string, _ []string, r io.Reader) (int64, error) {
	if table == tx.db.failOn {
		return 0, errors.New("constraint violation")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	tx.pending[table] = append(tx.pending[table], lines...)
	return int64(len(lines)), nil
}

func (tx *fakeTx) Commit(context.Context) error {
	for table, rows := range tx.pending {
		tx.db.committed[table] = append(tx.db.committed[table], rows...)
	}
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.db.rollbacks++
	tx.pending = nil
	return nil
}

func elementPhases() []Phase {
	features := NewBatch("features", "id", "name")
	features.Add(Int(1), Str("chr1:1-2"))
	features.Add(Int(2), Str("chr1:3-4"))
	facets := NewBatch("feature_facets", "feature_id", "facet_id")
	facets.Add(Int(1), Int(10))
	assocs := NewBatch("feature_assocs", "from_id", "to_id")
	assocs.Add(Int(1), Int(2))

	return []Phase{
		{Name: "features", Batches: []*Batch{features}},
		{Name: "facets", Batches: []*Batch{facets}},
		{Name: "associations", Batches: []*Batch{assocs}},
	}
}

func TestLoaderCommitsInOrder(t *testing.T) {
	db := &fakeDB{committed: map[string][]string{}}
	report, err := NewLoader(db).Run(context.Background(), elementPhases()...)
	require.NoError(t, err)

	assert.Equal(t, []string{"features", "facets", "associations"}, report.Committed)
	assert.Equal(t, int64(4), report.TotalRows())
	assert.Equal(t, 3, db.begun)
	assert.Equal(t, []string{"1\tchr1:1-2", "2\tchr1:3-4"}, db.committed["features"])
}

func TestLoaderPartialCommit(t *testing.T) {
	db := &fakeDB{committed: map[string][]string{}, failOn: "feature_assocs"}
	report, err := NewLoader(db).Run(context.Background(), elementPhases()...)

	var berr *BulkWriteError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "associations", berr.Phase)
	assert.Equal(t, "feature_assocs", berr.Table)
	assert.Equal(t, []string{"features", "facets"}, berr.Committed)
	assert.Contains(t, err.Error(), "constraint violation")

	assert.True(t, report.AnyCommitted())
	assert.Len(t, db.committed["features"], 2, "earlier phases stay committed")
	assert.Empty(t, db.committed["feature_assocs"])
	assert.Equal(t, 1, db.rollbacks)
}

func TestLoaderSkipsEmptyPhases(t *testing.T) {
	db := &fakeDB{committed: map[string][]string{}}
	empty := Phase{Name: "empty", Batches: []*Batch{NewBatch("x", "a")}}
	report, err := NewLoader(db).Run(context.Background(), empty)
	require.NoError(t, err)
	assert.False(t, report.AnyCommitted())
	assert.Equal(t, 0, db.begun)
}
