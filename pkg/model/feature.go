package model

import (
	"fmt"
	"sort"
	"strings"
)

type FeatureType string

const (
	FeatureGene                    FeatureType = "Gene"
	FeatureTranscript              FeatureType = "Transcript"
	FeatureExon                    FeatureType = "Exon"
	FeatureCCRE                    FeatureType = "cCRE"
	FeatureDHS                     FeatureType = "DHS"
	FeatureGRNA                    FeatureType = "gRNA"
	FeatureChromatinAccessible     FeatureType = "Chromatin Accessible Region"
	FeatureCalledRegulatoryElement FeatureType = "Called Regulatory Element"
	FeatureGenomicElement          FeatureType = "Genomic Element"
)

var featureTypeAliases = map[string]FeatureType{
	"gene":                        FeatureGene,
	"transcript":                  FeatureTranscript,
	"exon":                        FeatureExon,
	"ccre":                        FeatureCCRE,
	"dhs":                         FeatureDHS,
	"grna":                        FeatureGRNA,
	"car":                         FeatureChromatinAccessible,
	"chromatin accessible region": FeatureChromatinAccessible,
	"chromatin_accessible_region": FeatureChromatinAccessible,
	"cre":                         FeatureCalledRegulatoryElement,
	"called regulatory element":   FeatureCalledRegulatoryElement,
	"called_regulatory_element":   FeatureCalledRegulatoryElement,
	"genomic element":             FeatureGenomicElement,
	"genomic_element":             FeatureGenomicElement,
	"element":                     FeatureGenomicElement,
}

func ParseFeatureType(s string) (FeatureType, error) {
	ft, ok := featureTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown feature type %q", s)
	}
	return ft, nil
}

// FacetValue is a resolved categorical facet tag.
type FacetValue struct {
	ID    int64  `json:"id"`
	Facet string `json:"facet"`
	Value string `json:"value"`
}

// FacetVocabulary maps facet name -> value -> facet value id.
type FacetVocabulary map[string]map[string]int64

func (v FacetVocabulary) Add(facet, value string, id int64) {
	values, ok := v[facet]
	if !ok {
		values = make(map[string]int64)
		v[facet] = values
	}
	values[value] = id
}

// Lookup returns the facet value and whether the vocabulary knows it.
func (v FacetVocabulary) Lookup(facet, value string) (FacetValue, bool) {
	id, ok := v[facet][value]
	if !ok {
		return FacetValue{}, false
	}
	return FacetValue{ID: id, Facet: facet, Value: value}, true
}

func (v FacetVocabulary) HasFacet(facet string) bool {
	_, ok := v[facet]
	return ok
}

// FeatureRow is a tested element as parsed from the elements file.
type FeatureRow struct {
	// Line is the row's line number in the elements file.
	Line int
	Locus
	Name           string
	GenomeAssembly string
	CellLine       string
	FeatureType    FeatureType
	Facets         []FacetValue
	// ParentName is empty when the row has no parent.
	ParentName string
	Parent     *Locus
	ParentType FeatureType
	Misc       map[string]string
}

func (r *FeatureRow) HasParent() bool {
	return r.Parent != nil
}

// CanonicalFeature is a feature ready for association and persistence.
type CanonicalFeature struct {
	ID                  int64
	AccessionID         string
	Name                string
	EnsemblID           string
	Locus               Locus
	GenomeAssembly      string
	CellLine            string
	FeatureType         FeatureType
	ClosestGene         *GeneRef
	ParentID            int64
	ParentAccessionID   string
	ExperimentAccession string
	Facets              []FacetValue
	Misc                map[string]string
	Pseudo              bool
}

func (f *CanonicalFeature) HasParent() bool {
	return f.ParentID != 0
}

// CompareFeatures orders by (chrom, start, end), the association engine's precondition.
func CompareFeatures(a, b *CanonicalFeature) int {
	return CompareLoci(a.Locus, b.Locus)
}

// SortFeatures sorts in place; ties keep their input order.
func SortFeatures(features []*CanonicalFeature) {
	sort.SliceStable(features, func(i, j int) bool {
		return CompareFeatures(features[i], features[j]) < 0
	})
}
