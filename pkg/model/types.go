package model

import (
	"fmt"
	"sort"
	"strings"
)

// Interval is a half-open genomic interval [Start, End).
type Interval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Overlaps reports whether the two half-open intervals share at least one base.
// Adjacent intervals (a.End == b.Start) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

func (i Interval) Len() int64 {
	return i.End - i.Start
}

// Midpoint is used as the reference position for closest gene lookups.
func (i Interval) Midpoint() int64 {
	return i.Start + (i.End-i.Start)/2
}

type Strand string

const (
	StrandNone    Strand = ""
	StrandForward Strand = "+"
	StrandReverse Strand = "-"
)

// ParseStrand accepts "+", "-" and the usual spellings of "no strand".
func ParseStrand(s string) (Strand, error) {
	switch strings.TrimSpace(s) {
	case "+":
		return StrandForward, nil
	case "-":
		return StrandReverse, nil
	case "", ".", "NA", "na", "None", "none":
		return StrandNone, nil
	default:
		return StrandNone, fmt.Errorf("invalid strand %q", s)
	}
}

// Locus places an interval on a chromosome.
type Locus struct {
	Chrom    string   `json:"chrom"`
	Interval Interval `json:"interval"`
	Strand   Strand   `json:"strand,omitempty"`
}

// Name renders chrom:start-end:strand, dropping the strand part when there is none.
func (l Locus) Name() string {
	if l.Strand == StrandNone {
		return fmt.Sprintf("%s:%d-%d", l.Chrom, l.Interval.Start, l.Interval.End)
	}
	return fmt.Sprintf("%s:%d-%d:%s", l.Chrom, l.Interval.Start, l.Interval.End, l.Strand)
}

// CompareLoci orders by chromosome (byte-wise), then start, then end.
func CompareLoci(a, b Locus) int {
	return comparePositions(a.Chrom, a.Interval, b.Chrom, b.Interval)
}

func comparePositions(chromA string, a Interval, chromB string, b Interval) int {
	if c := strings.Compare(chromA, chromB); c != 0 {
		return c
	}
	switch {
	case a.Start < b.Start:
		return -1
	case a.Start > b.Start:
		return 1
	case a.End < b.End:
		return -1
	case a.End > b.End:
		return 1
	}
	return 0
}

// CatalogEntry is one (id, chromosome, interval) triple of the cCRE catalog.
type CatalogEntry struct {
	ID       int64
	Chrom    string
	Interval Interval
}

// CompareCatalog orders catalog entries the same way features are ordered.
func CompareCatalog(a, b CatalogEntry) int {
	return comparePositions(a.Chrom, a.Interval, b.Chrom, b.Interval)
}

func SortCatalog(entries []CatalogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return CompareCatalog(entries[i], entries[j]) < 0
	})
}

// GeneRef is the closest-gene annotation carried by a feature, or a target gene.
type GeneRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	EnsemblID string `json:"ensembl_id"`
	Distance  int64  `json:"distance"`
}
