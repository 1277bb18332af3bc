// Package tabular reads the delimited tested-element and observation files into typed rows.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/internal/util"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
)

// DelimiterFor picks the field separator from the file name: comma for .csv, tab otherwise.
func DelimiterFor(name string) rune {
	if util.DataExt(name) == ".csv" {
		return ','
	}
	return '\t'
}

// reader wraps csv.Reader with header lookup and line tracking.
type reader struct {
	r    *csv.Reader
	idx  map[string]int
	line int
	done bool
}

func newReader(src io.Reader, delim rune, required []string) (*reader, error) {
	cr := csv.NewReader(src)
	cr.Comma = delim
	if delim == '\t' {
		cr.LazyQuotes = true
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, malformed(1, "", "missing header row", nil)
		}
		return nil, malformed(1, "", "unreadable header", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if i == 0 {
			h = strings.TrimSpace(strings.TrimPrefix(h, "#"))
		}
		if _, dup := idx[h]; dup {
			return nil, malformed(1, h, "duplicate column", nil)
		}
		idx[h] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, malformed(1, col, "required column missing", nil)
		}
	}

	return &reader{r: cr, idx: idx, line: 1}, nil
}

// next returns the next non-blank record, or io.EOF once the input is exhausted.
func (r *reader) next() ([]string, error) {
	if r.done {
		return nil, io.EOF
	}
	for {
		rec, err := r.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done = true
				return nil, io.EOF
			}
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				if errors.Is(perr.Err, csv.ErrFieldCount) {
					return nil, malformed(perr.StartLine, "", fmt.Sprintf("want %d columns as in the header", len(r.idx)), perr.Err)
				}
				return nil, malformed(perr.Line, "", "unreadable row", perr.Err)
			}
			return nil, err
		}
		r.line, _ = r.r.FieldPos(0)
		if blank(rec) {
			continue
		}
		return rec, nil
	}
}

func (r *reader) has(name string) bool {
	_, ok := r.idx[name]
	return ok
}

func (r *reader) get(rec []string, name string) string {
	i, ok := r.idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func (r *reader) parseLocus(rec []string, chromCol, startCol, endCol, strandCol string) (model.Locus, error) {
	chrom := r.get(rec, chromCol)
	if chrom == "" {
		return model.Locus{}, malformed(r.line, chromCol, "value required", nil)
	}
	start, err := r.parseCoord(rec, startCol)
	if err != nil {
		return model.Locus{}, err
	}
	end, err := r.parseCoord(rec, endCol)
	if err != nil {
		return model.Locus{}, err
	}
	if start >= end {
		return model.Locus{}, malformed(r.line, endCol, "end must be greater than start", nil)
	}
	strand, err := model.ParseStrand(r.get(rec, strandCol))
	if err != nil {
		return model.Locus{}, malformed(r.line, strandCol, "bad strand", err)
	}
	return model.Locus{Chrom: chrom, Interval: model.Interval{Start: start, End: end}, Strand: strand}, nil
}

func (r *reader) parseCoord(rec []string, col string) (int64, error) {
	raw := r.get(rec, col)
	if raw == "" {
		return 0, malformed(r.line, col, "value required", nil)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, malformed(r.line, col, "not an integer coordinate", err)
	}
	if v < 0 {
		return 0, malformed(r.line, col, "negative coordinate", nil)
	}
	return v, nil
}

// parseFloat returns ok=false for empty and NA cells.
func (r *reader) parseFloat(rec []string, col string) (float64, bool, error) {
	raw := r.get(rec, col)
	switch strings.ToLower(raw) {
	case "", "na", "nan", "none":
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, malformed(r.line, col, "not a number", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, malformed(r.line, col, "not a finite number", nil)
	}
	return v, true, nil
}

// parsePairs splits "key=value;key=value" cells.
func (r *reader) parsePairs(rec []string, col string) ([][2]string, error) {
	raw := r.get(rec, col)
	if raw == "" {
		return nil, nil
	}
	var pairs [][2]string
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" {
			return nil, malformed(r.line, col, "expected key=value", errors.New(part))
		}
		pairs = append(pairs, [2]string{key, value})
	}
	return pairs, nil
}

func (r *reader) parseFacets(rec []string, col string, vocab model.FacetVocabulary) ([]model.FacetValue, error) {
	pairs, err := r.parsePairs(rec, col)
	if err != nil {
		return nil, err
	}
	facets := make([]model.FacetValue, 0, len(pairs))
	for _, p := range pairs {
		fv, ok := vocab.Lookup(p[0], p[1])
		if !ok {
			return nil, &UnknownFacetError{Line: r.line, Facet: p[0], Value: p[1]}
		}
		facets = append(facets, fv)
	}
	return facets, nil
}
