package model

import (
	"testing"
)

func TestIntervalOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"contained", Interval{100, 200}, Interval{120, 130}, true},
		{"partial left", Interval{90, 110}, Interval{100, 200}, true},
		{"partial right", Interval{190, 210}, Interval{100, 200}, true},
		{"adjacent before", Interval{50, 100}, Interval{100, 200}, false},
		{"adjacent after", Interval{200, 250}, Interval{100, 200}, false},
		{"disjoint", Interval{0, 50}, Interval{100, 200}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("%v.Overlaps(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("overlap is not symmetric for %v and %v", tt.a, tt.b)
			}
		})
	}
}

func TestLocusName(t *testing.T) {
	l := Locus{Chrom: "chr1", Interval: Interval{10, 20}, Strand: StrandReverse}
	if l.Name() != "chr1:10-20:-" {
		t.Errorf("unexpected name %q", l.Name())
	}
	l.Strand = StrandNone
	if l.Name() != "chr1:10-20" {
		t.Errorf("unexpected unstranded name %q", l.Name())
	}
}

func TestSortFeatures(t *testing.T) {
	features := []*CanonicalFeature{
		{ID: 1, Locus: Locus{Chrom: "chr2", Interval: Interval{0, 10}}},
		{ID: 2, Locus: Locus{Chrom: "chr1", Interval: Interval{50, 60}}},
		{ID: 3, Locus: Locus{Chrom: "chr1", Interval: Interval{50, 55}}},
		{ID: 4, Locus: Locus{Chrom: "chr10", Interval: Interval{0, 10}}},
		{ID: 5, Locus: Locus{Chrom: "chr1", Interval: Interval{5, 500}}},
	}
	SortFeatures(features)

	// chromosome names compare byte-wise: chr1 < chr10 < chr2
	want := []int64{5, 3, 2, 4, 1}
	for i, f := range features {
		if f.ID != want[i] {
			t.Fatalf("position %d: got id %d, want %d", i, f.ID, want[i])
		}
	}
}

func TestParseStrandAndFeatureType(t *testing.T) {
	for _, s := range []string{"", ".", "NA"} {
		if st, err := ParseStrand(s); err != nil || st != StrandNone {
			t.Errorf("ParseStrand(%q) = %q, %v", s, st, err)
		}
	}
	if _, err := ParseStrand("*"); err == nil {
		t.Errorf("expected error for strand '*'")
	}

	ft, err := ParseFeatureType("GRNA")
	if err != nil || ft != FeatureGRNA {
		t.Errorf("ParseFeatureType(GRNA) = %q, %v", ft, err)
	}
	if _, err := ParseFeatureType("enhancer"); err == nil {
		t.Errorf("expected error for unknown feature type")
	}
}

func TestFacetVocabulary(t *testing.T) {
	v := FacetVocabulary{}
	v.Add("Direction", "Enriched Only", 7)

	fv, ok := v.Lookup("Direction", "Enriched Only")
	if !ok || fv.ID != 7 {
		t.Errorf("lookup failed: %+v %v", fv, ok)
	}
	if _, ok := v.Lookup("Direction", "enriched only"); ok {
		t.Errorf("lookup should be case sensitive")
	}
	if v.HasFacet("Assay") {
		t.Errorf("unexpected facet")
	}
}
