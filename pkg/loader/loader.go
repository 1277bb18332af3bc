// Package loader runs experiment and analysis loads: parse, allocate ids, associate, bulk
// write and commit metadata, recording every step of the run.
package loader

import (
	"context"
	"fmt"
	"io"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/db"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/source"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Loader runs one load at a time against store. It is not safe for concurrent use.
type Loader struct {
	store   db.Store
	opener  *source.Opener
	metrics *Metrics
}

func New(store db.Store, opener *source.Opener, metrics *Metrics) *Loader {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Loader{store: store, opener: opener, metrics: metrics}
}

// Result summarizes a finished load.
type Result struct {
	RunID       string
	Kind        Kind
	AccessionID string
	Rows        map[string]int64
	// Experiment loads only.
	Features int
	Pseudo   int
	// Analysis loads only.
	Observations int
}

// Run loads the manifest at location as the given kind.
func (l *Loader) Run(ctx context.Context, kind Kind, location string) (*Result, error) {
	m, err := LoadManifest(ctx, l.opener, location)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindExperiment:
		return l.LoadExperiment(ctx, m)
	case KindAnalysis:
		return l.LoadAnalysis(ctx, m)
	}
	return nil, fmt.Errorf("%w: unknown load kind %q", ErrInvalidManifest, kind)
}

func (l *Loader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	rc, err := l.opener.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	return rc, nil
}

type geneKey struct {
	chrom string
	pos   int64
}

// lookupCacheSize bounds each memo. Element files list neighbouring loci, so recent lookups are
// the ones that repeat.
const lookupCacheSize = 1 << 16

// lookups memoizes store lookups for the lifetime of one load.
type lookups struct {
	store    db.Store
	assembly string

	closest  *lru.Cache[geneKey, model.GeneRef]
	byEnsID  *lru.Cache[string, model.GeneRef]
	features *lru.Cache[string, []int64]
}

func newLookups(store db.Store, assembly string) *lookups {
	// lru.New only fails for a non-positive size
	closest, _ := lru.New[geneKey, model.GeneRef](lookupCacheSize)
	byEnsID, _ := lru.New[string, model.GeneRef](lookupCacheSize)
	features, _ := lru.New[string, []int64](lookupCacheSize)
	return &lookups{
		store:    store,
		assembly: assembly,
		closest:  closest,
		byEnsID:  byEnsID,
		features: features,
	}
}

// closestGene annotates a locus with the gene whose start site is nearest its midpoint.
func (lk *lookups) closestGene(ctx context.Context, line int, locus model.Locus) (*model.GeneRef, error) {
	key := geneKey{chrom: locus.Chrom, pos: locus.Interval.Midpoint()}
	if g, ok := lk.closest.Get(key); ok {
		return &g, nil
	}
	genes, err := lk.store.ClosestGenes(ctx, lk.assembly, key.chrom, key.pos)
	if err != nil {
		return nil, err
	}
	switch len(genes) {
	case 0:
		return nil, &UnresolvedGeneError{Line: line, Query: "closest to " + locus.Name(), Reason: GeneZero}
	case 1:
	default:
		return nil, &UnresolvedGeneError{Line: line, Query: "closest to " + locus.Name(), Reason: GeneMultiple, Matches: genes}
	}
	lk.closest.Add(key, genes[0])
	g := genes[0]
	return &g, nil
}

func (lk *lookups) gene(ctx context.Context, line int, ensemblID string) (model.GeneRef, error) {
	if g, ok := lk.byEnsID.Get(ensemblID); ok {
		return g, nil
	}
	genes, err := lk.store.GenesByEnsemblID(ctx, lk.assembly, ensemblID)
	if err != nil {
		return model.GeneRef{}, err
	}
	switch len(genes) {
	case 0:
		return model.GeneRef{}, &UnresolvedGeneError{Line: line, Query: ensemblID, Reason: GeneZero}
	case 1:
	default:
		return model.GeneRef{}, &UnresolvedGeneError{Line: line, Query: ensemblID, Reason: GeneMultiple, Matches: genes}
	}
	lk.byEnsID.Add(ensemblID, genes[0])
	return genes[0], nil
}

func (lk *lookups) featuresAt(ctx context.Context, line int, experiment string, locus model.Locus) ([]int64, error) {
	key := locus.Name()
	if ids, ok := lk.features.Get(key); ok {
		return ids, nil
	}
	ids, err := lk.store.FindFeatures(ctx, experiment, locus)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &UnresolvedFeatureError{Line: line, Experiment: experiment, Locus: key}
	}
	lk.features.Add(key, ids)
	return ids, nil
}
