package db

import (
	"fmt"
	"strings"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Kind is the storage type of a column. Bulk rows are text; the SQLite writer converts each
// field according to its kind.
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindFloat
	KindBool
	KindTime
	KindJSON
)

type Column struct {
	Name    string
	Kind    Kind
	NotNull bool
	Unique  bool
}

// Table describes one store table. Serial tables have an integer "id" primary key as their
// first column; the loader assigns those ids itself.
type Table struct {
	Name       string
	Columns    []Column
	Serial     bool
	PrimaryKey []string
}

func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func id() Column { return Column{Name: "id", Kind: KindInt, NotNull: true} }

func text(name string) Column { return Column{Name: name, Kind: KindText} }

func fk(name string) Column { return Column{Name: name, Kind: KindInt, NotNull: true} }

var (
	Facet = Table{Name: "search_facet", Serial: true, Columns: []Column{
		id(),
		{Name: "name", Kind: KindText, NotNull: true, Unique: true},
		text("description"),
		{Name: "facet_type", Kind: KindText, NotNull: true},
	}}

	FacetValue = Table{Name: "search_facetvalue", Serial: true, Columns: []Column{
		id(),
		fk("facet_id"),
		{Name: "value", Kind: KindText, NotNull: true},
	}}

	DNAFeature = Table{Name: "search_dnafeature", Serial: true, Columns: []Column{
		id(),
		{Name: "accession_id", Kind: KindText, NotNull: true, Unique: true},
		text("name"),
		text("ensembl_id"),
		{Name: "chrom_name", Kind: KindText, NotNull: true},
		{Name: "chrom_start", Kind: KindInt, NotNull: true},
		{Name: "chrom_end", Kind: KindInt, NotNull: true},
		text("strand"),
		{Name: "genome_assembly", Kind: KindText, NotNull: true},
		text("cell_line"),
		{Name: "feature_type", Kind: KindText, NotNull: true},
		{Name: "closest_gene_id", Kind: KindInt},
		{Name: "closest_gene_distance", Kind: KindInt},
		text("closest_gene_name"),
		text("closest_gene_ensembl_id"),
		{Name: "parent_id", Kind: KindInt},
		text("parent_accession_id"),
		text("experiment_accession_id"),
		{Name: "is_pseudo", Kind: KindBool, NotNull: true},
		{Name: "misc", Kind: KindJSON},
	}}

	DNAFeatureFacets = Table{Name: "search_dnafeature_facet_values", Columns: []Column{
		fk("dnafeature_id"),
		fk("facetvalue_id"),
	}, PrimaryKey: []string{"dnafeature_id", "facetvalue_id"}}

	DNAFeatureCCREs = Table{Name: "search_dnafeature_associated_ccres", Columns: []Column{
		fk("from_dnafeature_id"),
		fk("to_dnafeature_id"),
	}, PrimaryKey: []string{"from_dnafeature_id", "to_dnafeature_id"}}

	Observation = Table{Name: "search_regulatoryeffectobservation", Serial: true, Columns: []Column{
		id(),
		{Name: "accession_id", Kind: KindText, NotNull: true, Unique: true},
		{Name: "analysis_accession_id", Kind: KindText, NotNull: true},
		{Name: "experiment_accession_id", Kind: KindText, NotNull: true},
		{Name: "effect_size", Kind: KindFloat},
		{Name: "raw_p_value", Kind: KindFloat},
		{Name: "significance", Kind: KindFloat},
		{Name: "log_significance", Kind: KindFloat},
	}}

	ObservationFacets = Table{Name: "search_regulatoryeffectobservation_facet_values", Columns: []Column{
		fk("regulatoryeffectobservation_id"),
		fk("facetvalue_id"),
	}, PrimaryKey: []string{"regulatoryeffectobservation_id", "facetvalue_id"}}

	ObservationSources = Table{Name: "search_regulatoryeffectobservation_sources", Columns: []Column{
		fk("regulatoryeffectobservation_id"),
		fk("dnafeature_id"),
	}, PrimaryKey: []string{"regulatoryeffectobservation_id", "dnafeature_id"}}

	ObservationTargets = Table{Name: "search_regulatoryeffectobservation_targets", Columns: []Column{
		fk("regulatoryeffectobservation_id"),
		fk("dnafeature_id"),
	}, PrimaryKey: []string{"regulatoryeffectobservation_id", "dnafeature_id"}}

	Experiment = Table{Name: "search_experiment", Columns: []Column{
		{Name: "accession_id", Kind: KindText, NotNull: true},
		text("name"),
		text("description"),
		text("experiment_type"),
		text("genome_assembly"),
		text("cell_line"),
		text("tissue_type"),
		text("source_file"),
		{Name: "created_at", Kind: KindTime, NotNull: true},
	}, PrimaryKey: []string{"accession_id"}}

	Analysis = Table{Name: "search_analysis", Columns: []Column{
		{Name: "accession_id", Kind: KindText, NotNull: true},
		{Name: "experiment_accession_id", Kind: KindText, NotNull: true},
		text("name"),
		text("description"),
		text("genome_assembly"),
		{Name: "p_val_threshold", Kind: KindFloat},
		text("source_file"),
		{Name: "created_at", Kind: KindTime, NotNull: true},
	}, PrimaryKey: []string{"accession_id"}}

	AccessionCounter = Table{Name: "search_accessionid", Columns: []Column{
		{Name: "id_type", Kind: KindText, NotNull: true},
		{Name: "next_value", Kind: KindInt, NotNull: true},
	}, PrimaryKey: []string{"id_type"}}

	AccessionLog = Table{Name: "search_accessionidlog", Serial: true, Columns: []Column{
		id(),
		{Name: "run_id", Kind: KindText, NotNull: true},
		text("message"),
		{Name: "outcome", Kind: KindText, NotNull: true},
		{Name: "issued", Kind: KindJSON},
		{Name: "created_at", Kind: KindTime, NotNull: true},
	}}

	LoadRun = Table{Name: "search_loadrun", Columns: []Column{
		{Name: "run_id", Kind: KindText, NotNull: true},
		{Name: "kind", Kind: KindText, NotNull: true},
		text("accession_id"),
		{Name: "state", Kind: KindText, NotNull: true},
		text("error"),
		{Name: "started_at", Kind: KindTime, NotNull: true},
		{Name: "finished_at", Kind: KindTime},
	}, PrimaryKey: []string{"run_id"}}
)

// Tables lists every table in creation order.
var Tables = []Table{
	Facet, FacetValue,
	DNAFeature, DNAFeatureFacets, DNAFeatureCCREs,
	Experiment, Analysis,
	Observation, ObservationFacets, ObservationSources, ObservationTargets,
	AccessionCounter, AccessionLog, LoadRun,
}

func tableByName(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// indexes speed up the catalog read, locus lookups and gene lookups.
var indexes = []struct {
	name, table string
	columns     []string
}{
	{"search_dnafeature_locus_idx", DNAFeature.Name, []string{"genome_assembly", "chrom_name", "chrom_start", "chrom_end"}},
	{"search_dnafeature_type_idx", DNAFeature.Name, []string{"feature_type", "genome_assembly"}},
	{"search_dnafeature_experiment_idx", DNAFeature.Name, []string{"experiment_accession_id"}},
	{"search_dnafeature_ensembl_idx", DNAFeature.Name, []string{"ensembl_id"}},
	{"search_facetvalue_facet_idx", FacetValue.Name, []string{"facet_id", "value"}},
}

func sqlType(d Dialect, k Kind) string {
	switch k {
	case KindInt:
		if d == Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case KindFloat:
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case KindBool:
		if d == Postgres {
			return "BOOLEAN"
		}
		return "INTEGER"
	case KindTime:
		if d == Postgres {
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	case KindJSON:
		if d == Postgres {
			return "JSONB"
		}
		return "TEXT"
	}
	return "TEXT"
}

// DDL renders the CREATE statements for every table and index.
func DDL(d Dialect) []string {
	var stmts []string
	for _, t := range Tables {
		var defs []string
		for i, c := range t.Columns {
			if t.Serial && i == 0 {
				if d == Postgres {
					defs = append(defs, "id BIGSERIAL PRIMARY KEY")
				} else {
					defs = append(defs, "id INTEGER PRIMARY KEY")
				}
				continue
			}
			def := c.Name + " " + sqlType(d, c.Kind)
			if c.NotNull {
				def += " NOT NULL"
			}
			if c.Unique {
				def += " UNIQUE"
			}
			defs = append(defs, def)
		}
		if len(t.PrimaryKey) > 0 {
			defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", ")))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t")))
	}
	for _, ix := range indexes {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			ix.name, ix.table, strings.Join(ix.columns, ", ")))
	}
	return stmts
}
