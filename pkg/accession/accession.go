// Package accession issues the typed, human-legible ids ("DCP" + type + hex) used across the
// portal, and keeps the per-type counters consistent across load sessions.
package accession

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
)

const Prefix = "DCP"

type Type string

const (
	Gene                    Type = "gene"
	Transcript              Type = "transcript"
	Exon                    Type = "exon"
	RegulatoryEffectObs     Type = "regulatory_effect_observation"
	CCRE                    Type = "ccre"
	DHS                     Type = "dhs"
	GRNA                    Type = "grna"
	ChromatinAccessible     Type = "chromatin_accessible_region"
	CalledRegulatoryElement Type = "called_regulatory_element"
	GenomicElement          Type = "genomic_element"
	Experiment              Type = "experiment"
	Analysis                Type = "analysis"
	CellLine                Type = "cell_line"
	TissueType              Type = "tissue_type"
	Biosample               Type = "biosample"
)

type format struct {
	abbrev string
	width  int
}

var formats = map[Type]format{
	Gene:                    {"GENE", 8},
	Transcript:              {"TRAN", 8},
	Exon:                    {"EXON", 8},
	RegulatoryEffectObs:     {"REO", 10},
	CCRE:                    {"CCRE", 10},
	DHS:                     {"DHS", 10},
	GRNA:                    {"GRNA", 10},
	ChromatinAccessible:     {"CAR", 10},
	CalledRegulatoryElement: {"CRE", 10},
	GenomicElement:          {"ELEM", 10},
	Experiment:              {"EXPR", 8},
	Analysis:                {"AN", 8},
	CellLine:                {"CL", 8},
	TissueType:              {"TT", 8},
	Biosample:               {"BIOS", 8},
}

var ErrUnknownType = errors.New("unknown accession type")
var ErrMalformed = errors.New("malformed accession id")
var ErrExhausted = errors.New("accession value does not fit the id width")

// Types lists every accession type in a stable order.
func Types() []Type {
	types := make([]Type, 0, len(formats))
	for t := range formats {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (t Type) Valid() bool {
	_, ok := formats[t]
	return ok
}

func (t Type) Abbrev() string {
	return formats[t].abbrev
}

// Max is the largest value an id of type t can hold.
func Max(t Type) uint64 {
	f, ok := formats[t]
	if !ok {
		panic(fmt.Sprintf("accession: %s: %q", ErrUnknownType, t))
	}
	return 1<<(4*f.width) - 1
}

// Format renders n as an accession id of type t, e.g. DCPCCRE000000002A. It panics when n
// needs more hex digits than the type's width.
func Format(t Type, n uint64) string {
	f, ok := formats[t]
	if !ok {
		panic(fmt.Sprintf("accession: %s: %q", ErrUnknownType, t))
	}
	if n > Max(t) {
		panic(fmt.Sprintf("accession: %s: %s %d", ErrExhausted, t, n))
	}
	return fmt.Sprintf("%s%s%0*X", Prefix, f.abbrev, f.width, n)
}

// Parse splits an accession id back into its type and numeric value.
func Parse(id string) (Type, uint64, error) {
	if !strings.HasPrefix(id, Prefix) {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformed, id)
	}
	rest := id[len(Prefix):]
	// abbreviation + width gives a distinct total length per abbreviation length, so at most one type matches.
	for t, f := range formats {
		if !strings.HasPrefix(rest, f.abbrev) || len(rest) != len(f.abbrev)+f.width {
			continue
		}
		n, err := strconv.ParseUint(rest[len(f.abbrev):], 16, 64)
		if err != nil {
			continue
		}
		return t, n, nil
	}
	return "", 0, fmt.Errorf("%w: %q", ErrMalformed, id)
}

// ForFeature maps a feature type onto the accession type its ids are drawn from.
func ForFeature(ft model.FeatureType) (Type, error) {
	switch ft {
	case model.FeatureGene:
		return Gene, nil
	case model.FeatureTranscript:
		return Transcript, nil
	case model.FeatureExon:
		return Exon, nil
	case model.FeatureCCRE:
		return CCRE, nil
	case model.FeatureDHS:
		return DHS, nil
	case model.FeatureGRNA:
		return GRNA, nil
	case model.FeatureChromatinAccessible:
		return ChromatinAccessible, nil
	case model.FeatureCalledRegulatoryElement:
		return CalledRegulatoryElement, nil
	case model.FeatureGenomicElement:
		return GenomicElement, nil
	}
	return "", fmt.Errorf("%w for feature type %q", ErrUnknownType, ft)
}
