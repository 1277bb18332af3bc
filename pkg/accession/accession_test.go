package accession

import (
	"context"
	"errors"
	"testing"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCounters is an in-memory CounterStore with the same compare-and-swap contract as the
// SQL stores.
type memCounters struct {
	values     map[Type]uint64
	provenance []Provenance
}

func newMemCounters() *memCounters {
	return &memCounters{values: map[Type]uint64{}}
}

func (m *memCounters) ReadCounters(context.Context) (map[Type]uint64, error) {
	out := make(map[Type]uint64, len(m.values))
	for t, v := range m.values {
		out[t] = v
	}
	return out, nil
}

func (m *memCounters) WriteCounters(_ context.Context, prev, next map[Type]uint64, p Provenance) error {
	for t := range next {
		if m.values[t] != prev[t] {
			return ErrCounterConflict
		}
	}
	for t, v := range next {
		m.values[t] = v
	}
	m.provenance = append(m.provenance, p)
	return nil
}

func (m *memCounters) WriteProvenance(_ context.Context, p Provenance) error {
	m.provenance = append(m.provenance, p)
	return nil
}

func TestFormatAndParse(t *testing.T) {
	tests := []struct {
		typ  Type
		n    uint64
		want string
	}{
		{Experiment, 1, "DCPEXPR00000001"},
		{CCRE, 0x2A, "DCPCCRE000000002A"},
		{RegulatoryEffectObs, 0xABCDEF, "DCPREO0000ABCDEF"},
		{Analysis, 255, "DCPAN000000FF"},
		{CellLine, 16, "DCPCL00000010"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := Format(tt.typ, tt.n)
			assert.Equal(t, tt.want, got)

			typ, n, err := Parse(got)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.n, n)
		})
	}
}

func TestFormatWidthLimit(t *testing.T) {
	assert.Equal(t, uint64(0xFFFFFFFF), Max(Experiment))
	assert.Equal(t, uint64(0xFFFFFFFFFF), Max(CCRE))

	got := Format(Experiment, Max(Experiment))
	assert.Equal(t, "DCPEXPRFFFFFFFF", got)
	_, n, err := Parse(got)
	require.NoError(t, err)
	assert.Equal(t, Max(Experiment), n)

	assert.Panics(t, func() { Format(Experiment, Max(Experiment)+1) })
	assert.Panics(t, func() { Format(CCRE, Max(CCRE)+1) })
	assert.NotPanics(t, func() { Format(CCRE, Max(Experiment)+1) })
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "XYZEXPR00000001", "DCPEXPR0001", "DCPNOPE00000001", "DCPEXPR0000000G"} {
		if _, _, err := Parse(id); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformed", id, err)
		}
	}
}

func TestForFeature(t *testing.T) {
	typ, err := ForFeature(model.FeatureCCRE)
	require.NoError(t, err)
	assert.Equal(t, CCRE, typ)

	_, err = ForFeature(model.FeatureType("Enhancer"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestSessionMonotonicAcrossSessions(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()

	var last uint64
	for session := 0; session < 3; session++ {
		s, err := Open(ctx, store, "run", "test load")
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			_, n, err := Parse(s.Allocate(CCRE))
			require.NoError(t, err)
			if n <= last {
				t.Fatalf("session %d: issued %d after %d", session, n, last)
			}
			last = n
		}
		require.NoError(t, s.Close(ctx, true))
	}

	assert.Equal(t, uint64(16), store.values[CCRE])
	assert.Len(t, store.provenance, 3)
}

func TestSessionAbandonLeavesCounters(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()
	store.values[Experiment] = 10

	s, err := Open(ctx, store, "run-1", "failed load")
	require.NoError(t, err)
	assert.Equal(t, "DCPEXPR0000000A", s.Allocate(Experiment))
	require.NoError(t, s.Close(ctx, false))

	assert.Equal(t, uint64(10), store.values[Experiment])
	require.Len(t, store.provenance, 1)
	assert.Equal(t, OutcomeAbandoned, store.provenance[0].Outcome)
	assert.Equal(t, Range{First: 10, Last: 10}, store.provenance[0].Issued[Experiment])

	// the next session reissues the same value because nothing was kept
	s2, err := Open(ctx, store, "run-2", "retry")
	require.NoError(t, err)
	assert.Equal(t, "DCPEXPR0000000A", s2.Allocate(Experiment))
}

func TestSessionCloseOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()

	s, err := Open(ctx, store, "run", "close twice")
	require.NoError(t, err)
	s.Allocate(Gene)
	require.NoError(t, s.Close(ctx, true))
	require.NoError(t, s.Close(ctx, true))

	assert.Len(t, store.provenance, 1)
	assert.Panics(t, func() { s.Allocate(Gene) })
}

func TestSessionConflict(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()

	a, err := Open(ctx, store, "a", "first")
	require.NoError(t, err)
	b, err := Open(ctx, store, "b", "second")
	require.NoError(t, err)

	a.Allocate(GRNA)
	b.Allocate(GRNA)

	require.NoError(t, a.Close(ctx, true))
	assert.ErrorIs(t, b.Close(ctx, true), ErrCounterConflict)
}

func TestSessionCount(t *testing.T) {
	s, err := Open(context.Background(), newMemCounters(), "run", "count")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		s.Allocate(DHS)
	}
	assert.Equal(t, uint64(4), s.Count(DHS))
	assert.Equal(t, uint64(0), s.Count(GRNA))
}

type memRowIDs struct {
	last     map[string]int64
	advanced map[string]int64
}

func (m *memRowIDs) LastRowID(_ context.Context, table string) (int64, error) {
	return m.last[table], nil
}

func (m *memRowIDs) AdvanceRowID(_ context.Context, table string, last int64) error {
	m.advanced[table] = last
	return nil
}

func TestRowIDs(t *testing.T) {
	ctx := context.Background()
	store := &memRowIDs{last: map[string]int64{"features": 41}, advanced: map[string]int64{}}

	ids, err := OpenRowIDs(ctx, store, "features")
	require.NoError(t, err)
	require.NoError(t, ids.Flush(ctx, store))
	assert.Empty(t, store.advanced, "unused counter should not touch the store")

	assert.Equal(t, int64(42), ids.Next())
	assert.Equal(t, int64(43), ids.Next())
	require.NoError(t, ids.Flush(ctx, store))
	assert.Equal(t, int64(43), store.advanced["features"])
}
