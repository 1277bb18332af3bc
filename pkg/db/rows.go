package db

import (
	"encoding/json"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/bulk"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
)

// Row builders keep the bulk field order in step with the table definitions above.

func NewFeatureBatch() *bulk.Batch {
	return bulk.NewBatch(DNAFeature.Name, DNAFeature.ColumnNames()...)
}

// FeatureFields renders f in DNAFeature column order.
func FeatureFields(f *model.CanonicalFeature) []*string {
	var (
		geneID, geneDist    *string
		geneName, geneEnsID *string
		misc                *string
	)
	if g := f.ClosestGene; g != nil {
		geneID = bulk.Int(g.ID)
		geneDist = bulk.Int(g.Distance)
		geneName = bulk.OptStr(g.Name)
		geneEnsID = bulk.OptStr(g.EnsemblID)
	}
	if len(f.Misc) > 0 {
		// a map of strings always marshals
		b, _ := json.Marshal(f.Misc)
		misc = bulk.Str(string(b))
	}
	return []*string{
		bulk.Int(f.ID),
		bulk.Str(f.AccessionID),
		bulk.OptStr(f.Name),
		bulk.OptStr(f.EnsemblID),
		bulk.Str(f.Locus.Chrom),
		bulk.Int(f.Locus.Interval.Start),
		bulk.Int(f.Locus.Interval.End),
		bulk.OptStr(string(f.Locus.Strand)),
		bulk.Str(f.GenomeAssembly),
		bulk.OptStr(f.CellLine),
		bulk.Str(string(f.FeatureType)),
		geneID,
		geneDist,
		geneName,
		geneEnsID,
		bulk.OptInt(f.ParentID),
		bulk.OptStr(f.ParentAccessionID),
		bulk.OptStr(f.ExperimentAccession),
		bulk.Bool(f.Pseudo),
		misc,
	}
}

func NewFeatureFacetBatch() *bulk.Batch {
	return bulk.NewBatch(DNAFeatureFacets.Name, DNAFeatureFacets.ColumnNames()...)
}

func NewFeatureCCREBatch() *bulk.Batch {
	return bulk.NewBatch(DNAFeatureCCREs.Name, DNAFeatureCCREs.ColumnNames()...)
}

func NewObservationBatch() *bulk.Batch {
	return bulk.NewBatch(Observation.Name, Observation.ColumnNames()...)
}

// ObservationFields renders one observation in Observation column order. Missing numeric
// values are NULL.
func ObservationFields(id int64, accessionID, analysisAccession, experimentAccession string, numeric map[model.NumericFacet]float64) []*string {
	num := func(k model.NumericFacet) *string {
		if v, ok := numeric[k]; ok {
			return bulk.Float(v)
		}
		return nil
	}
	return []*string{
		bulk.Int(id),
		bulk.Str(accessionID),
		bulk.Str(analysisAccession),
		bulk.Str(experimentAccession),
		num(model.EffectSize),
		num(model.RawPValue),
		num(model.Significance),
		num(model.LogSignificance),
	}
}

func NewObservationFacetBatch() *bulk.Batch {
	return bulk.NewBatch(ObservationFacets.Name, ObservationFacets.ColumnNames()...)
}

func NewObservationSourceBatch() *bulk.Batch {
	return bulk.NewBatch(ObservationSources.Name, ObservationSources.ColumnNames()...)
}

func NewObservationTargetBatch() *bulk.Batch {
	return bulk.NewBatch(ObservationTargets.Name, ObservationTargets.ColumnNames()...)
}
