package tabular

import (
	"io"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
)

var elementColumns = []string{"chrom", "start", "end"}

var parentColumns = []string{"parent_chrom", "parent_start", "parent_end", "parent_strand"}

// ElementOptions carries the per-file attributes every parsed element shares.
type ElementOptions struct {
	GenomeAssembly string
	CellLine       string
	FeatureType    model.FeatureType
	ParentType     model.FeatureType
	Vocabulary     model.FacetVocabulary
	Delimiter      rune
}

// ElementReader yields one tested element per call to Read. It cannot be rewound.
type ElementReader struct {
	*reader
	opts ElementOptions
}

func NewElementReader(src io.Reader, opts ElementOptions) (*ElementReader, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = '\t'
	}
	r, err := newReader(src, opts.Delimiter, elementColumns)
	if err != nil {
		return nil, err
	}
	return &ElementReader{reader: r, opts: opts}, nil
}

// Read returns the next element, or io.EOF at the end of the input.
func (r *ElementReader) Read() (*model.FeatureRow, error) {
	rec, err := r.next()
	if err != nil {
		return nil, err
	}

	locus, err := r.parseLocus(rec, "chrom", "start", "end", "strand")
	if err != nil {
		return nil, err
	}

	row := &model.FeatureRow{
		Line:           r.line,
		Locus:          locus,
		Name:           locus.Name(),
		GenomeAssembly: r.opts.GenomeAssembly,
		CellLine:       r.opts.CellLine,
		FeatureType:    r.opts.FeatureType,
	}

	parent, err := r.parseParent(rec)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		row.Parent = parent
		row.ParentName = parent.Name()
		row.ParentType = r.opts.ParentType
	}

	if row.Facets, err = r.parseFacets(rec, "facets", r.opts.Vocabulary); err != nil {
		return nil, err
	}

	misc, err := r.parsePairs(rec, "misc")
	if err != nil {
		return nil, err
	}
	if len(misc) > 0 {
		row.Misc = make(map[string]string, len(misc))
		for _, kv := range misc {
			row.Misc[kv[0]] = kv[1]
		}
	}
	return row, nil
}

// parseParent returns nil when every parent column is empty. A partially filled parent is
// malformed.
func (r *ElementReader) parseParent(rec []string) (*model.Locus, error) {
	present := 0
	for _, col := range parentColumns[:3] {
		if r.get(rec, col) != "" {
			present++
		}
	}
	if present == 0 {
		if r.get(rec, "parent_strand") != "" {
			return nil, malformed(r.line, "parent_strand", "parent strand given without a parent", nil)
		}
		return nil, nil
	}
	if present != 3 {
		return nil, malformed(r.line, "parent_chrom", "parent_chrom, parent_start and parent_end must be given together", nil)
	}
	if r.opts.ParentType == "" {
		return nil, malformed(r.line, "parent_chrom", "row has a parent but no parent feature type is configured", nil)
	}
	locus, err := r.parseLocus(rec, "parent_chrom", "parent_start", "parent_end", "parent_strand")
	if err != nil {
		return nil, err
	}
	return &locus, nil
}

// ReadAll drains the reader.
func (r *ElementReader) ReadAll() ([]*model.FeatureRow, error) {
	var rows []*model.FeatureRow
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
