package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/accession"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/bulk"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/db"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/tabular"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// LoadAnalysis loads the observations named by the manifest's analysis section against the
// features of an already loaded experiment.
func (l *Loader) LoadAnalysis(ctx context.Context, m *Manifest) (*Result, error) {
	if err := m.Validate(KindAnalysis); err != nil {
		return nil, err
	}
	r, err := l.start(ctx, KindAnalysis)
	if err != nil {
		return nil, err
	}
	res, err := l.loadAnalysis(ctx, r, m)
	if err := r.finish(ctx, err); err != nil {
		return nil, err
	}
	res.RunID = r.record.RunID
	return res, nil
}

// observation is an ObservationRow resolved against the store.
type observation struct {
	id        int64
	accession string
	row       *model.ObservationRow
	sources   []int64
	targets   []int64
}

func (l *Loader) loadAnalysis(ctx context.Context, r *run, m *Manifest) (*Result, error) {
	am := m.Analysis
	exp, err := l.store.Experiment(ctx, am.Experiment)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: analysis.experiment %s has not been loaded", ErrInvalidManifest, am.Experiment)
	}
	if err != nil {
		return nil, err
	}

	r.enter(StateParse)
	vocab, err := l.store.FacetVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	file := m.Resolve(am.Observations)
	rows, err := l.parseObservations(ctx, file, tabular.ObservationOptions{
		Vocabulary: vocab,
		Delimiter:  tabular.DelimiterFor(file),
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("Parsed observations", zap.String("file", file), zap.String("rows", humanize.Comma(int64(len(rows)))))

	threshold := am.threshold()
	for _, row := range rows {
		deriveDirection(row, vocab, threshold)
	}

	r.enter(StateAllocateIDs)
	if err := r.openSession(ctx, fmt.Sprintf("analysis %q of %s from %s", am.Name, exp.AccessionID, file)); err != nil {
		return nil, err
	}
	ids, err := r.openRowIDs(ctx, db.Observation.Name)
	if err != nil {
		return nil, err
	}
	analysisAcc := r.session.Allocate(accession.Analysis)
	r.record.AccessionID = analysisAcc

	lk := newLookups(l.store, exp.GenomeAssembly)
	obs := make([]*observation, 0, len(rows))
	for _, row := range rows {
		o := &observation{row: row}
		for _, src := range row.Sources {
			found, err := lk.featuresAt(ctx, row.Line, exp.AccessionID, src)
			if err != nil {
				return nil, err
			}
			o.sources = appendUnique(o.sources, found...)
		}
		for _, ensID := range row.Targets {
			g, err := lk.gene(ctx, row.Line, ensID)
			if err != nil {
				return nil, err
			}
			o.targets = appendUnique(o.targets, g.ID)
		}
		o.id = ids.Next()
		o.accession = r.session.Allocate(accession.RegulatoryEffectObs)
		obs = append(obs, o)
	}

	r.enter(StateBulkWrite)
	if err := r.writePhases(ctx, observationPhases(obs, analysisAcc, exp.AccessionID)...); err != nil {
		return nil, err
	}

	r.enter(StateCommitMetadata)
	if err := l.store.SaveAnalysis(ctx, &model.Analysis{
		AccessionID:         analysisAcc,
		ExperimentAccession: exp.AccessionID,
		Name:                am.Name,
		Description:         am.Description,
		GenomeAssembly:      exp.GenomeAssembly,
		PValThreshold:       threshold,
		SourceFile:          file,
		CreatedAt:           time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	return &Result{
		Kind:         KindAnalysis,
		AccessionID:  analysisAcc,
		Rows:         r.report.Rows,
		Observations: len(obs),
	}, nil
}

func (l *Loader) parseObservations(ctx context.Context, file string, opts tabular.ObservationOptions) ([]*model.ObservationRow, error) {
	rc, err := l.open(ctx, file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	or, err := tabular.NewObservationReader(rc, opts)
	if err != nil {
		return nil, err
	}
	return or.ReadAll()
}

// Direction classifies an observation from its significance and effect size. The adjusted
// p-value is used when present, the raw one otherwise.
func Direction(numeric map[model.NumericFacet]float64, threshold float64) string {
	p, ok := numeric[model.Significance]
	if !ok {
		p, ok = numeric[model.RawPValue]
	}
	if !ok || p > threshold {
		return model.DirectionNonSig
	}
	switch effect := numeric[model.EffectSize]; {
	case effect > 0:
		return model.DirectionEnriched
	case effect < 0:
		return model.DirectionDepleted
	}
	return model.DirectionNonSig
}

// deriveDirection tags rows that carry no Direction facet, when the vocabulary defines one.
func deriveDirection(row *model.ObservationRow, vocab model.FacetVocabulary, threshold float64) {
	if !vocab.HasFacet(model.DirectionFacet) {
		return
	}
	for _, fv := range row.Facets {
		if fv.Facet == model.DirectionFacet {
			return
		}
	}
	if fv, ok := vocab.Lookup(model.DirectionFacet, Direction(row.Numeric, threshold)); ok {
		row.Facets = append(row.Facets, fv)
	}
}

// observationPhases builds the four observation phases: observations, facets, sources, targets.
func observationPhases(obs []*observation, analysisAcc, experimentAcc string) []bulk.Phase {
	rows := db.NewObservationBatch()
	facets := db.NewObservationFacetBatch()
	sources := db.NewObservationSourceBatch()
	targets := db.NewObservationTargetBatch()
	for _, o := range obs {
		rows.Add(db.ObservationFields(o.id, o.accession, analysisAcc, experimentAcc, o.row.Numeric)...)
		var facetIDs []int64
		for _, fv := range o.row.Facets {
			facetIDs = appendUnique(facetIDs, fv.ID)
		}
		for _, id := range facetIDs {
			facets.Add(bulk.Int(o.id), bulk.Int(id))
		}
		for _, id := range o.sources {
			sources.Add(bulk.Int(o.id), bulk.Int(id))
		}
		for _, id := range o.targets {
			targets.Add(bulk.Int(o.id), bulk.Int(id))
		}
	}
	return []bulk.Phase{
		{Name: "observations", Batches: []*bulk.Batch{rows}},
		{Name: "observation facets", Batches: []*bulk.Batch{facets}},
		{Name: "observation sources", Batches: []*bulk.Batch{sources}},
		{Name: "observation targets", Batches: []*bulk.Batch{targets}},
	}
}

func appendUnique(ids []int64, more ...int64) []int64 {
next:
	for _, id := range more {
		for _, have := range ids {
			if have == id {
				continue next
			}
		}
		ids = append(ids, id)
	}
	return ids
}
