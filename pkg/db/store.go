// Package db is the persistent store the loaders write to: the cCRE catalog, genes, features,
// observations, experiment metadata and accession counters. SQLite and Postgres share one
// schema registry and one query layer; they differ in how bulk rows reach the tables.
package db

import (
	"context"
	"errors"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/accession"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/bulk"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
)

var ErrNotFound = errors.New("not found")

// Store is everything the loaders and the operator API need from the database.
type Store interface {
	bulk.Beginner
	accession.CounterStore
	accession.RowIDStore

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Catalog returns the cCRE catalog of an assembly sorted by (chrom, start, end), with
	// chromosomes compared byte-wise.
	Catalog(ctx context.Context, assembly string) ([]model.CatalogEntry, error)
	// ClosestGenes returns the genes whose transcription start site is nearest to pos, ordered
	// by id. More than one gene means a tie.
	ClosestGenes(ctx context.Context, assembly, chrom string, pos int64) ([]model.GeneRef, error)
	GenesByEnsemblID(ctx context.Context, assembly, ensemblID string) ([]model.GeneRef, error)
	// FindFeatures returns the ids of an experiment's features at exactly this locus. The strand
	// only narrows the match when it is set.
	FindFeatures(ctx context.Context, experimentAccession string, locus model.Locus) ([]int64, error)

	FacetVocabulary(ctx context.Context) (model.FacetVocabulary, error)
	EnsureFacetValues(ctx context.Context, facet, facetType string, values ...string) error

	Experiment(ctx context.Context, accessionID string) (*model.Experiment, error)
	SaveExperiment(ctx context.Context, e *model.Experiment) error
	SaveAnalysis(ctx context.Context, a *model.Analysis) error

	RecordLoad(ctx context.Context, r *model.LoadRecord) error
	LoadRecord(ctx context.Context, runID string) (*model.LoadRecord, error)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open picks the backend from the DSN: postgres:// and postgresql:// URLs go to Postgres,
// anything else is a SQLite file path (an optional sqlite:// prefix is stripped).
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn)
	default:
		return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"))
	}
}
