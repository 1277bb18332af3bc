package accession

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"go.uber.org/zap"
)

// ErrCounterConflict is returned when the persisted counters moved since the session read them.
var ErrCounterConflict = errors.New("accession counters changed by another session")

var ErrSessionClosed = errors.New("accession session already closed")

// Range is the span of values a session issued for one type, inclusive.
type Range struct {
	First uint64 `json:"first"`
	Last  uint64 `json:"last"`
}

// Provenance is written next to every counter flush.
type Provenance struct {
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Outcome   string         `json:"outcome"`
	Issued    map[Type]Range `json:"issued"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	OutcomeCommitted = "committed"
	OutcomeAbandoned = "abandoned"
)

// CounterStore persists the next value to issue for each accession type. WriteCounters must
// be atomic and must only apply when the stored values still equal prev (compare-and-swap),
// returning ErrCounterConflict otherwise.
type CounterStore interface {
	ReadCounters(ctx context.Context) (map[Type]uint64, error)
	WriteCounters(ctx context.Context, prev, next map[Type]uint64, p Provenance) error
	WriteProvenance(ctx context.Context, p Provenance) error
}

// Session buffers allocations in memory and flushes them once, on Close.
type Session struct {
	store   CounterStore
	runID   string
	message string
	prev    map[Type]uint64
	next    map[Type]uint64
	issued  map[Type]Range
	closed  bool
}

// Open reads the persisted counters and starts an allocation session. message records who or
// what triggered the allocations.
func Open(ctx context.Context, store CounterStore, runID, message string) (*Session, error) {
	prev, err := store.ReadCounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("read accession counters: %w", err)
	}
	next := make(map[Type]uint64, len(prev))
	for t, v := range prev {
		next[t] = v
	}
	return &Session{
		store:   store,
		runID:   runID,
		message: message,
		prev:    prev,
		next:    next,
		issued:  make(map[Type]Range),
	}, nil
}

// Allocate returns the current value for t formatted as an accession id and advances the
// session-local counter. Counters start at 1.
func (s *Session) Allocate(t Type) string {
	if s.closed {
		panic(ErrSessionClosed)
	}
	n := s.next[t]
	if n == 0 {
		n = 1
	}
	s.next[t] = n + 1

	r, ok := s.issued[t]
	if !ok {
		r.First = n
	}
	r.Last = n
	s.issued[t] = r
	return Format(t, n)
}

// Issued returns the ranges handed out so far.
func (s *Session) Issued() map[Type]Range {
	out := make(map[Type]Range, len(s.issued))
	for t, r := range s.issued {
		out[t] = r
	}
	return out
}

// Count is the number of ids issued for t in this session.
func (s *Session) Count(t Type) uint64 {
	r, ok := s.issued[t]
	if !ok {
		return 0
	}
	return r.Last - r.First + 1
}

// Close flushes the session. With keep the new counter values are written (compare-and-swap
// against the values read at Open); without it the counters are left untouched. The provenance
// record is written either way. Calling Close again does nothing.
func (s *Session) Close(ctx context.Context, keep bool) error {
	if s.closed {
		return nil
	}
	s.closed = true

	p := Provenance{
		RunID:     s.runID,
		Message:   s.message,
		Issued:    s.Issued(),
		CreatedAt: time.Now().UTC(),
	}

	if !keep || len(s.issued) == 0 {
		p.Outcome = OutcomeAbandoned
		if keep {
			p.Outcome = OutcomeCommitted
		}
		if err := s.store.WriteProvenance(ctx, p); err != nil {
			return fmt.Errorf("write accession provenance: %w", err)
		}
		logger.Debug("Accession session closed without counter changes",
			zap.String("run_id", s.runID), zap.String("outcome", p.Outcome))
		return nil
	}

	p.Outcome = OutcomeCommitted
	if err := s.store.WriteCounters(ctx, s.prev, s.changed(), p); err != nil {
		return fmt.Errorf("write accession counters: %w", err)
	}

	for _, t := range sortedTypes(s.issued) {
		r := s.issued[t]
		logger.Info("Accession ids issued",
			zap.String("run_id", s.runID),
			zap.String("type", string(t)),
			zap.String("first", Format(t, r.First)),
			zap.String("last", Format(t, r.Last)),
		)
	}
	return nil
}

// changed returns only the counters this session advanced.
func (s *Session) changed() map[Type]uint64 {
	out := make(map[Type]uint64, len(s.issued))
	for t := range s.issued {
		out[t] = s.next[t]
	}
	return out
}

func sortedTypes(m map[Type]Range) []Type {
	types := make([]Type, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
