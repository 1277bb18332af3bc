package loader

import (
	"context"
	"errors"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/accession"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/bulk"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Kind string

const (
	KindExperiment Kind = "experiment"
	KindAnalysis   Kind = "analysis"
)

// State is a step of a load. Both flows walk the same states; analysis loads skip ASSOCIATE.
type State string

const (
	StateStart          State = "START"
	StateParse          State = "PARSE"
	StateAllocateIDs    State = "ALLOCATE_IDS"
	StateAssociate      State = "ASSOCIATE"
	StateBulkWrite      State = "BULK_WRITE"
	StateCommitMetadata State = "COMMIT_METADATA"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// run tracks one load from START to DONE or FAILED.
type run struct {
	l       *Loader
	record  model.LoadRecord
	state   State
	started time.Time
	log     *zap.Logger

	session *accession.Session
	rowIDs  []*accession.RowIDs
	report  *bulk.Report
}

func (l *Loader) start(ctx context.Context, kind Kind) (*run, error) {
	now := time.Now().UTC()
	r := &run{
		l: l,
		record: model.LoadRecord{
			RunID:     uuid.NewString(),
			Kind:      string(kind),
			State:     string(StateStart),
			StartedAt: now,
		},
		state:   StateStart,
		started: now,
	}
	r.log = logger.L().With(zap.String("run_id", r.record.RunID), zap.String("kind", string(kind)))
	r.log.Info("Load started")
	if err := l.store.RecordLoad(ctx, &r.record); err != nil {
		return nil, &LoadError{RunID: r.record.RunID, Kind: kind, State: StateStart, Err: err}
	}
	return r, nil
}

func (r *run) enter(s State) {
	r.log.Info("Load state", zap.String("from", string(r.state)), zap.String("to", string(s)))
	r.state = s
}

func (r *run) openSession(ctx context.Context, message string) error {
	s, err := accession.Open(ctx, r.l.store, r.record.RunID, message)
	if err != nil {
		return err
	}
	r.session = s
	return nil
}

func (r *run) openRowIDs(ctx context.Context, table string) (*accession.RowIDs, error) {
	ids, err := accession.OpenRowIDs(ctx, r.l.store, table)
	if err != nil {
		return nil, err
	}
	r.rowIDs = append(r.rowIDs, ids)
	return ids, nil
}

// writePhases runs the bulk phases and keeps the report for finish.
func (r *run) writePhases(ctx context.Context, phases ...bulk.Phase) error {
	report, err := bulk.NewLoader(r.l.store).Run(ctx, phases...)
	r.report = report
	if report != nil {
		for table, n := range report.Rows {
			r.l.metrics.rows.WithLabelValues(table).Add(float64(n))
		}
	}
	return err
}

// finish closes the accession session and row-id counters, then records the terminal state.
// Ids are kept when the load succeeded or when any bulk phase committed rows that use them.
func (r *run) finish(ctx context.Context, loadErr error) error {
	keep := loadErr == nil || (r.report != nil && r.report.AnyCommitted())

	var closeErr error
	if r.session != nil {
		issued := r.session.Issued()
		if err := r.session.Close(ctx, keep); err != nil {
			closeErr = multierr.Append(closeErr, err)
		} else if keep {
			for t, rg := range issued {
				r.l.metrics.accessions.WithLabelValues(string(t)).Add(float64(rg.Last - rg.First + 1))
			}
		}
	}
	if keep {
		for _, ids := range r.rowIDs {
			closeErr = multierr.Append(closeErr, ids.Flush(ctx, r.l.store))
		}
	}

	failedIn := r.state
	err := multierr.Append(loadErr, closeErr)
	kind := Kind(r.record.Kind)
	r.record.FinishedAt = time.Now().UTC()
	if err != nil {
		r.enter(StateFailed)
		r.record.State = string(StateFailed)
		r.record.Error = err.Error()
		r.log.Error("Load failed", zap.String("state", string(failedIn)), zap.Bool("ids_kept", keep), zap.Error(err))
	} else {
		r.enter(StateDone)
		r.record.State = string(StateDone)
		r.log.Info("Load finished", zap.Duration("took", r.record.FinishedAt.Sub(r.started)))
	}

	r.l.metrics.loads.WithLabelValues(r.record.Kind, r.record.State).Inc()
	r.l.metrics.duration.WithLabelValues(r.record.Kind).Observe(r.record.FinishedAt.Sub(r.started).Seconds())

	// recording uses a fresh context so a cancelled load still leaves its terminal state behind
	recErr := r.l.store.RecordLoad(context.WithoutCancel(ctx), &r.record)
	if err == nil {
		if recErr != nil {
			return &LoadError{RunID: r.record.RunID, Kind: kind, State: StateDone, Err: recErr}
		}
		return nil
	}
	if recErr != nil {
		r.log.Error("Could not record failed load", zap.Error(recErr))
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{RunID: r.record.RunID, Kind: kind, State: failedIn, Err: err}
}
