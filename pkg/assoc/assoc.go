// Package assoc matches newly loaded features against the sorted cCRE catalog with a two-pointer
// merge, minting pseudo cCREs for features that overlap nothing.
package assoc

import (
	"errors"
	"fmt"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"go.uber.org/zap"
)

// ErrUnsorted is returned when either input violates the (chrom, start, end) ordering.
var ErrUnsorted = errors.New("association input is not sorted by (chrom, start, end)")

type Relation int

const (
	Before Relation = iota
	After
	Overlap
)

func (r Relation) String() string {
	switch r {
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	case Overlap:
		return "OVERLAP"
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

// Compare places feature f relative to catalog entry c. Intervals are half-open, so a feature
// ending exactly where the entry starts is Before it.
func Compare(f *model.CanonicalFeature, c model.CatalogEntry) Relation {
	switch {
	case f.Locus.Chrom < c.Chrom:
		return Before
	case f.Locus.Chrom > c.Chrom:
		return After
	case f.Locus.Interval.End <= c.Interval.Start:
		return Before
	case f.Locus.Interval.Start >= c.Interval.End:
		return After
	}
	return Overlap
}

// Minter turns a feature with no catalog match into a new pseudo cCRE. Implementations assign
// the row id and the cCRE accession.
type Minter func(source *model.CanonicalFeature) *model.CanonicalFeature

// PseudoFrom builds the pseudo cCRE for source. Location, assembly, cell line and closest gene
// are copied; the strand is not.
func PseudoFrom(source *model.CanonicalFeature, id int64, accessionID string) *model.CanonicalFeature {
	locus := source.Locus
	locus.Strand = model.StrandNone
	p := &model.CanonicalFeature{
		ID:             id,
		AccessionID:    accessionID,
		Name:           locus.Name(),
		Locus:          locus,
		GenomeAssembly: source.GenomeAssembly,
		CellLine:       source.CellLine,
		FeatureType:    model.FeatureCCRE,
		Pseudo:         true,
	}
	if source.ClosestGene != nil {
		g := *source.ClosestGene
		p.ClosestGene = &g
	}
	return p
}

// Pair is one (feature, catalog entry) association.
type Pair struct {
	FeatureID int64
	CatalogID int64
}

type Result struct {
	// Pseudo holds the cCREs minted during the merge, in feature order.
	Pseudo []*model.CanonicalFeature
	// Associations maps feature row id to the catalog ids it matched.
	Associations map[int64][]int64
	Pairs        []Pair
}

func (r *Result) add(featureID, catalogID int64) {
	r.Associations[featureID] = append(r.Associations[featureID], catalogID)
	r.Pairs = append(r.Pairs, Pair{FeatureID: featureID, CatalogID: catalogID})
}

func (r *Result) mint(f *model.CanonicalFeature, mint Minter) {
	p := mint(f)
	r.Pseudo = append(r.Pseudo, p)
	r.add(f.ID, p.ID)
}

// Associate runs the merge. features and catalog must both be sorted by (chrom, start, end).
// preAssociated maps a parent feature id to the catalog ids that parent matched earlier in the
// same load; features whose parent is in the map inherit those ids without consulting the
// catalog. The catalog is never modified.
func Associate(features []*model.CanonicalFeature, catalog []model.CatalogEntry, preAssociated map[int64][]int64, mint Minter) (*Result, error) {
	if err := checkSorted(features, catalog); err != nil {
		return nil, err
	}

	res := &Result{Associations: make(map[int64][]int64, len(features))}
	f, c := 0, 0
	for f < len(features) {
		feature := features[f]

		if feature.HasParent() {
			if ids, ok := preAssociated[feature.ParentID]; ok && len(ids) > 0 {
				for _, id := range ids {
					res.add(feature.ID, id)
				}
				f++
				continue
			}
		}

		if c >= len(catalog) {
			for ; f < len(features); f++ {
				res.mint(features[f], mint)
			}
			break
		}

		switch Compare(feature, catalog[c]) {
		case Before:
			res.mint(feature, mint)
			f++
		case After:
			c++
		case Overlap:
			res.add(feature.ID, catalog[c].ID)
			if c+1 < len(catalog) && Compare(feature, catalog[c+1]) == Overlap {
				c++
			} else {
				f++
			}
		}
	}

	logger.Debug("Association finished",
		zap.Int("features", len(features)),
		zap.Int("catalog", len(catalog)),
		zap.Int("pairs", len(res.Pairs)),
		zap.Int("pseudo", len(res.Pseudo)),
	)
	return res, nil
}

func checkSorted(features []*model.CanonicalFeature, catalog []model.CatalogEntry) error {
	for i := 1; i < len(features); i++ {
		if model.CompareFeatures(features[i-1], features[i]) > 0 {
			return fmt.Errorf("%w: feature %d (%s) sorts before feature %d (%s)",
				ErrUnsorted, i, features[i].Locus.Name(), i-1, features[i-1].Locus.Name())
		}
	}
	for i := 1; i < len(catalog); i++ {
		if model.CompareCatalog(catalog[i-1], catalog[i]) > 0 {
			return fmt.Errorf("%w: catalog entry %d (id %d) sorts before entry %d (id %d)",
				ErrUnsorted, i, catalog[i].ID, i-1, catalog[i-1].ID)
		}
	}
	return nil
}
