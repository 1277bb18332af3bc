package tabular

import (
	"io"
	"math"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
)

var observationColumns = []string{"chrom", "start", "end", "raw_p_val", "adj_p_val", "effect_size"}

// ObservationOptions configures an ObservationReader.
type ObservationOptions struct {
	Vocabulary model.FacetVocabulary
	Delimiter  rune
}

// ObservationReader yields one statistical observation per call to Read.
type ObservationReader struct {
	*reader
	opts ObservationOptions
}

func NewObservationReader(src io.Reader, opts ObservationOptions) (*ObservationReader, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = '\t'
	}
	r, err := newReader(src, opts.Delimiter, observationColumns)
	if err != nil {
		return nil, err
	}
	return &ObservationReader{reader: r, opts: opts}, nil
}

// Read returns the next observation, or io.EOF at the end of the input.
func (r *ObservationReader) Read() (*model.ObservationRow, error) {
	rec, err := r.next()
	if err != nil {
		return nil, err
	}

	source, err := r.parseLocus(rec, "chrom", "start", "end", "strand")
	if err != nil {
		return nil, err
	}

	row := &model.ObservationRow{
		Line:    r.line,
		Sources: []model.Locus{source},
		Targets: r.parseTargets(rec),
		Numeric: make(map[model.NumericFacet]float64, 4),
	}

	if v, ok, err := r.parseFloat(rec, "effect_size"); err != nil {
		return nil, err
	} else if ok {
		row.Numeric[model.EffectSize] = v
	}

	for _, col := range []struct {
		name  string
		facet model.NumericFacet
	}{
		{"raw_p_val", model.RawPValue},
		{"adj_p_val", model.Significance},
	} {
		v, ok, err := r.parseFloat(rec, col.name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if v < 0 || v > 1 {
			return nil, malformed(r.line, col.name, "p-value outside [0, 1]", nil)
		}
		row.Numeric[col.facet] = v
	}

	if sig, ok := row.Numeric[model.Significance]; ok {
		row.Numeric[model.LogSignificance] = LogSignificance(sig)
	}

	if row.Facets, err = r.parseFacets(rec, "facets", r.opts.Vocabulary); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *ObservationReader) parseTargets(rec []string) []string {
	raw := r.get(rec, "gene_ensembl_id")
	switch raw {
	case "", "-", "NA", "na":
		return nil
	}
	var targets []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			targets = append(targets, id)
		}
	}
	return targets
}

// LogSignificance is -log10(p). A p-value of exactly 0 is clamped to the smallest positive
// float64 so the result stays finite.
func LogSignificance(p float64) float64 {
	if p <= 0 {
		p = math.SmallestNonzeroFloat64
	}
	return -math.Log10(p)
}

// ReadAll drains the reader.
func (r *ObservationReader) ReadAll() ([]*model.ObservationRow, error) {
	var rows []*model.ObservationRow
	for {
		row, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}
