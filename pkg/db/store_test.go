package db

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/accession"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/bulk"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func writeFeatures(t *testing.T, s *SQLiteStore, features ...*model.CanonicalFeature) {
	t.Helper()
	b := NewFeatureBatch()
	for _, f := range features {
		b.Add(FeatureFields(f)...)
	}
	_, err := bulk.NewLoader(s).Run(context.Background(), bulk.Phase{Name: "features", Batches: []*bulk.Batch{b}})
	require.NoError(t, err)
}

func ccre(id int64, chrom string, start, end int64) *model.CanonicalFeature {
	return &model.CanonicalFeature{
		ID:             id,
		AccessionID:    accession.Format(accession.CCRE, uint64(id)),
		Locus:          model.Locus{Chrom: chrom, Interval: model.Interval{Start: start, End: end}},
		GenomeAssembly: "hg38",
		FeatureType:    model.FeatureCCRE,
	}
}

func gene(id int64, name, ensembl, chrom string, start, end int64, strand model.Strand) *model.CanonicalFeature {
	return &model.CanonicalFeature{
		ID:             id,
		AccessionID:    accession.Format(accession.Gene, uint64(id)),
		Name:           name,
		EnsemblID:      ensembl,
		Locus:          model.Locus{Chrom: chrom, Interval: model.Interval{Start: start, End: end}, Strand: strand},
		GenomeAssembly: "hg38",
		FeatureType:    model.FeatureGene,
	}
}

func TestDDL(t *testing.T) {
	pg := strings.Join(DDL(Postgres), ";\n")
	assert.Contains(t, pg, "id BIGSERIAL PRIMARY KEY")
	assert.Contains(t, pg, "misc JSONB")
	assert.Contains(t, pg, "PRIMARY KEY (dnafeature_id, facetvalue_id)")

	lite := strings.Join(DDL(SQLite), ";\n")
	assert.Contains(t, lite, "id INTEGER PRIMARY KEY")
	assert.NotContains(t, lite, "JSONB")
	assert.Len(t, DDL(SQLite), len(Tables)+len(indexes))
}

func TestRebind(t *testing.T) {
	pg := sqlStore{dialect: Postgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	lite := sqlStore{dialect: SQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	vocab, err := s.FacetVocabulary(ctx)
	require.NoError(t, err)
	for _, v := range []string{model.DirectionEnriched, model.DirectionDepleted, model.DirectionNonSig} {
		_, ok := vocab.Lookup(model.DirectionFacet, v)
		assert.True(t, ok, v)
	}
	assert.Len(t, vocab[model.DirectionFacet], 3)
}

func TestEnsureFacetValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureFacetValues(ctx, "Assay", FacetCategorical, "CRISPRi"))
	require.NoError(t, s.EnsureFacetValues(ctx, "Assay", FacetCategorical, "CRISPRi", "CRISPRa"))

	vocab, err := s.FacetVocabulary(ctx)
	require.NoError(t, err)
	assert.Len(t, vocab["Assay"], 2)
}

func TestCatalogOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeFeatures(t, s,
		ccre(1, "chr2", 10, 20),
		ccre(2, "chr10", 5, 15),
		ccre(3, "chr1", 300, 400),
		ccre(4, "chr1", 100, 200),
		gene(5, "MYC", "ENSG1", "chr1", 150, 160, model.StrandForward),
	)
	other := ccre(6, "chr1", 1, 2)
	other.GenomeAssembly = "hg19"
	writeFeatures(t, s, other)

	entries, err := s.Catalog(ctx, "hg38")
	require.NoError(t, err)

	var ids []int64
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{4, 3, 2, 1}, ids)
	assert.Equal(t, model.Interval{Start: 100, End: 200}, entries[0].Interval)
}

func TestClosestGenes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeFeatures(t, s,
		gene(1, "FWD", "ENSG1", "chr1", 1000, 5000, model.StrandForward),
		gene(2, "REV", "ENSG2", "chr1", 100, 2001, model.StrandReverse),
		gene(3, "FAR", "ENSG3", "chr1", 90000, 95000, model.StrandForward),
		gene(4, "OTHER", "ENSG4", "chr2", 1000, 1100, model.StrandForward),
	)

	genes, err := s.ClosestGenes(ctx, "hg38", "chr1", 1100)
	require.NoError(t, err)
	require.Len(t, genes, 1)
	assert.Equal(t, model.GeneRef{ID: 1, Name: "FWD", EnsemblID: "ENSG1", Distance: 100}, genes[0])

	// TSS of REV is 2000, FWD is 1000: both 500 away
	genes, err = s.ClosestGenes(ctx, "hg38", "chr1", 1500)
	require.NoError(t, err)
	assert.Len(t, genes, 2)

	genes, err = s.ClosestGenes(ctx, "hg38", "chr3", 1)
	require.NoError(t, err)
	assert.Empty(t, genes)
}

func TestGenesByEnsemblID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeFeatures(t, s,
		gene(1, "A", "ENSG1", "chr1", 1, 10, model.StrandForward),
		gene(2, "A2", "ENSG2", "chr1", 20, 30, model.StrandForward),
		gene(3, "A2-dup", "ENSG2", "chr5", 20, 30, model.StrandForward),
	)

	genes, err := s.GenesByEnsemblID(ctx, "hg38", "ENSG1")
	require.NoError(t, err)
	assert.Equal(t, []model.GeneRef{{ID: 1, Name: "A", EnsemblID: "ENSG1"}}, genes)

	genes, err = s.GenesByEnsemblID(ctx, "hg38", "ENSG2")
	require.NoError(t, err)
	assert.Len(t, genes, 2)

	genes, err = s.GenesByEnsemblID(ctx, "hg19", "ENSG1")
	require.NoError(t, err)
	assert.Empty(t, genes)
}

func TestFindFeatures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := &model.CanonicalFeature{
		ID:                  10,
		AccessionID:         accession.Format(accession.GRNA, 1),
		Name:                "chr1:100-120:+",
		Locus:               model.Locus{Chrom: "chr1", Interval: model.Interval{Start: 100, End: 120}, Strand: model.StrandForward},
		GenomeAssembly:      "hg38",
		FeatureType:         model.FeatureGRNA,
		ExperimentAccession: "DCPEXPR00000001",
		Misc:                map[string]string{"guide": "ACGT"},
		ClosestGene:         &model.GeneRef{ID: 3, Name: "MYC", Distance: 12},
	}
	writeFeatures(t, s, f)

	ids, err := s.FindFeatures(ctx, "DCPEXPR00000001", model.Locus{Chrom: "chr1", Interval: model.Interval{Start: 100, End: 120}})
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)

	ids, err = s.FindFeatures(ctx, "DCPEXPR00000001", model.Locus{Chrom: "chr1", Interval: model.Interval{Start: 100, End: 120}, Strand: model.StrandReverse})
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.FindFeatures(ctx, "DCPEXPR00000002", f.Locus)
	require.NoError(t, err)
	assert.Empty(t, ids)

	var misc string
	var pseudo int
	require.NoError(t, s.DB().QueryRow(`SELECT misc, is_pseudo FROM search_dnafeature WHERE id = 10`).Scan(&misc, &pseudo))
	assert.JSONEq(t, `{"guide":"ACGT"}`, misc)
	assert.Equal(t, 0, pseudo)
}

func TestCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := accession.Open(ctx, s, "run-1", "first")
	require.NoError(t, err)
	assert.Equal(t, "DCPEXPR00000001", sess.Allocate(accession.Experiment))
	sess.Allocate(accession.CCRE)
	require.NoError(t, sess.Close(ctx, true))

	counters, err := s.ReadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), counters[accession.Experiment])
	assert.Equal(t, uint64(2), counters[accession.CCRE])

	a, err := accession.Open(ctx, s, "run-2", "a")
	require.NoError(t, err)
	b, err := accession.Open(ctx, s, "run-3", "b")
	require.NoError(t, err)
	a.Allocate(accession.Experiment)
	b.Allocate(accession.Experiment)
	require.NoError(t, a.Close(ctx, true))
	assert.ErrorIs(t, b.Close(ctx, true), accession.ErrCounterConflict)

	counters, err = s.ReadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), counters[accession.Experiment])

	var logs int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM search_accessionidlog`).Scan(&logs))
	assert.Equal(t, 2, logs, "the conflicting session wrote nothing")
}

func TestRowIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeFeatures(t, s, ccre(41, "chr1", 1, 2))

	last, err := s.LastRowID(ctx, DNAFeature.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(41), last)

	_, err = s.LastRowID(ctx, DNAFeatureFacets.Name)
	assert.Error(t, err)
	_, err = s.LastRowID(ctx, "search_dnafeature; DROP TABLE x")
	assert.Error(t, err)
}

func TestExperimentAndLoadRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveExperiment(ctx, &model.Experiment{
		AccessionID:    "DCPEXPR00000001",
		Name:           "screen",
		GenomeAssembly: "hg38",
		CellLine:       "K562",
		CreatedAt:      created,
	}))
	e, err := s.Experiment(ctx, "DCPEXPR00000001")
	require.NoError(t, err)
	assert.Equal(t, "screen", e.Name)
	assert.Equal(t, "hg38", e.GenomeAssembly)
	assert.True(t, created.Equal(e.CreatedAt))

	_, err = s.Experiment(ctx, "DCPEXPR000000FF")
	assert.True(t, errors.Is(err, ErrNotFound))

	rec := &model.LoadRecord{RunID: "r1", Kind: "experiment", State: "START", StartedAt: created}
	require.NoError(t, s.RecordLoad(ctx, rec))
	rec.State = "FAILED"
	rec.Error = "boom"
	rec.FinishedAt = created.Add(time.Minute)
	require.NoError(t, s.RecordLoad(ctx, rec))

	got, err := s.LoadRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.State)
	assert.Equal(t, "boom", got.Error)
	assert.True(t, rec.FinishedAt.Equal(got.FinishedAt))
}

func TestCopyFromRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := NewFeatureBatch()
	b.Add(FeatureFields(ccre(1, "chr1", 1, 2))...)
	b.Add(FeatureFields(ccre(1, "chr1", 3, 4))...) // duplicate id

	_, err := bulk.NewLoader(s).Run(ctx, bulk.Phase{Name: "features", Batches: []*bulk.Batch{b}})
	var berr *bulk.BulkWriteError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, DNAFeature.Name, berr.Table)

	entries, err := s.Catalog(ctx, "hg38")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
