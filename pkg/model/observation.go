package model

import "time"

type NumericFacet string

const (
	EffectSize      NumericFacet = "Effect Size"
	RawPValue       NumericFacet = "Raw p value"
	Significance    NumericFacet = "Significance"
	LogSignificance NumericFacet = "Log Significance"
)

// Direction facet and its values, derived for observations that do not carry one.
const (
	DirectionFacet    = "Direction"
	DirectionEnriched = "Enriched Only"
	DirectionDepleted = "Depleted Only"
	DirectionNonSig   = "Non-significant"
)

// ObservationRow is one statistical observation from an analysis file.
type ObservationRow struct {
	Line    int
	Sources []Locus
	Targets []string
	Facets  []FacetValue
	Numeric map[NumericFacet]float64
}

// Experiment metadata committed at the end of an experiment load.
type Experiment struct {
	AccessionID    string
	Name           string
	Description    string
	ExperimentType string
	GenomeAssembly string
	CellLine       string
	TissueType     string
	SourceFile     string
	CreatedAt      time.Time
}

// Analysis metadata committed at the end of an analysis load.
type Analysis struct {
	AccessionID         string
	ExperimentAccession string
	Name                string
	Description         string
	GenomeAssembly      string
	PValThreshold       float64
	SourceFile          string
	CreatedAt           time.Time
}

// LoadRecord tracks one load run for operators.
type LoadRecord struct {
	RunID       string
	Kind        string
	AccessionID string
	State       string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}
