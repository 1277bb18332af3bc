package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/accession"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	FacetCategorical = "categorical"
	FacetNumeric     = "numeric"
)

// sqlStore holds the queries both backends run through database/sql. Statements are written
// with ? placeholders and rebound for Postgres.
type sqlStore struct {
	db      *sql.DB
	dialect Dialect
}

func (s *sqlStore) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// DB exposes the underlying handle for tests and ad hoc queries.
func (s *sqlStore) DB() *sql.DB { return s.db }

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema and the Direction facet vocabulary.
func (s *sqlStore) Migrate(ctx context.Context) error {
	for _, stmt := range DDL(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	if err := s.EnsureFacetValues(ctx, model.DirectionFacet, FacetCategorical,
		model.DirectionEnriched, model.DirectionDepleted, model.DirectionNonSig); err != nil {
		return err
	}
	logger.Info("Schema ready", zap.String("dialect", s.dialect.String()), zap.Int("tables", len(Tables)))
	return nil
}

// EnsureFacetValues creates the facet and any of its values that do not exist yet.
func (s *sqlStore) EnsureFacetValues(ctx context.Context, facet, facetType string, values ...string) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			retErr = multierr.Append(retErr, tx.Rollback())
		}
	}()

	var facetID int64
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM search_facet WHERE name = ?`), facet).Scan(&facetID)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx,
			s.rebind(`INSERT INTO search_facet (name, description, facet_type) VALUES (?, ?, ?) RETURNING id`),
			facet, "", facetType).Scan(&facetID)
	}
	if err != nil {
		return fmt.Errorf("ensure facet %q: %w", facet, err)
	}

	for _, v := range values {
		var id int64
		err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT id FROM search_facetvalue WHERE facet_id = ? AND value = ?`), facetID, v).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			_, err = tx.ExecContext(ctx,
				s.rebind(`INSERT INTO search_facetvalue (facet_id, value) VALUES (?, ?)`), facetID, v)
		}
		if err != nil {
			return fmt.Errorf("ensure facet value %q=%q: %w", facet, v, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) FacetVocabulary(ctx context.Context) (model.FacetVocabulary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT f.name, v.value, v.id
		FROM search_facetvalue v JOIN search_facet f ON f.id = v.facet_id`)
	if err != nil {
		return nil, fmt.Errorf("select facet values: %w", err)
	}
	defer func() { _ = rows.Close() }()

	vocab := model.FacetVocabulary{}
	for rows.Next() {
		var facet, value string
		var id int64
		if err := rows.Scan(&facet, &value, &id); err != nil {
			return nil, fmt.Errorf("scan facet value: %w", err)
		}
		vocab.Add(facet, value, id)
	}
	return vocab, rows.Err()
}

func (s *sqlStore) Catalog(ctx context.Context, assembly string) ([]model.CatalogEntry, error) {
	order := "chrom_name, chrom_start, chrom_end"
	if s.dialect == Postgres {
		order = `chrom_name COLLATE "C", chrom_start, chrom_end`
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, chrom_name, chrom_start, chrom_end
		FROM search_dnafeature
		WHERE feature_type = ? AND genome_assembly = ?
		ORDER BY `+order+`, id`), string(model.FeatureCCRE), assembly)
	if err != nil {
		return nil, fmt.Errorf("select catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Chrom, &e.Interval.Start, &e.Interval.End); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqlStore) ClosestGenes(ctx context.Context, assembly, chrom string, pos int64) ([]model.GeneRef, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, COALESCE(name, ''), COALESCE(ensembl_id, ''),
			ABS((CASE WHEN strand = '-' THEN chrom_end - 1 ELSE chrom_start END) - ?) AS distance
		FROM search_dnafeature
		WHERE feature_type = ? AND genome_assembly = ? AND chrom_name = ?
		ORDER BY distance, id
		LIMIT 2`), pos, string(model.FeatureGene), assembly, chrom)
	if err != nil {
		return nil, fmt.Errorf("select closest gene: %w", err)
	}
	genes, err := scanGenes(rows, true)
	if err != nil {
		return nil, err
	}
	if len(genes) == 2 && genes[1].Distance > genes[0].Distance {
		genes = genes[:1]
	}
	return genes, nil
}

func (s *sqlStore) GenesByEnsemblID(ctx context.Context, assembly, ensemblID string) ([]model.GeneRef, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, COALESCE(name, ''), COALESCE(ensembl_id, '')
		FROM search_dnafeature
		WHERE feature_type = ? AND genome_assembly = ? AND ensembl_id = ?
		ORDER BY id`), string(model.FeatureGene), assembly, ensemblID)
	if err != nil {
		return nil, fmt.Errorf("select gene %s: %w", ensemblID, err)
	}
	return scanGenes(rows, false)
}

func scanGenes(rows *sql.Rows, withDistance bool) ([]model.GeneRef, error) {
	defer func() { _ = rows.Close() }()
	var genes []model.GeneRef
	for rows.Next() {
		var g model.GeneRef
		dest := []any{&g.ID, &g.Name, &g.EnsemblID}
		if withDistance {
			dest = append(dest, &g.Distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan gene: %w", err)
		}
		genes = append(genes, g)
	}
	return genes, rows.Err()
}

func (s *sqlStore) FindFeatures(ctx context.Context, experimentAccession string, locus model.Locus) ([]int64, error) {
	q := `SELECT id FROM search_dnafeature
		WHERE experiment_accession_id = ? AND chrom_name = ? AND chrom_start = ? AND chrom_end = ?`
	args := []any{experimentAccession, locus.Chrom, locus.Interval.Start, locus.Interval.End}
	if locus.Strand != model.StrandNone {
		q += ` AND strand = ?`
		args = append(args, string(locus.Strand))
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q+` ORDER BY id`), args...)
	if err != nil {
		return nil, fmt.Errorf("select features at %s: %w", locus.Name(), err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) Experiment(ctx context.Context, accessionID string) (*model.Experiment, error) {
	var (
		e       model.Experiment
		created string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT accession_id, COALESCE(name, ''), COALESCE(description, ''),
			COALESCE(experiment_type, ''), COALESCE(genome_assembly, ''), COALESCE(cell_line, ''),
			COALESCE(tissue_type, ''), COALESCE(source_file, ''), created_at
		FROM search_experiment WHERE accession_id = ?`), accessionID).Scan(
		&e.AccessionID, &e.Name, &e.Description, &e.ExperimentType, &e.GenomeAssembly,
		&e.CellLine, &e.TissueType, &e.SourceFile, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("experiment %s: %w", accessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select experiment %s: %w", accessionID, err)
	}
	e.CreatedAt = parseTime(created)
	return &e, nil
}

func (s *sqlStore) SaveExperiment(ctx context.Context, e *model.Experiment) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO search_experiment
		(accession_id, name, description, experiment_type, genome_assembly, cell_line, tissue_type, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.AccessionID, e.Name, e.Description, e.ExperimentType, e.GenomeAssembly,
		e.CellLine, e.TissueType, e.SourceFile, timeArg(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert experiment %s: %w", e.AccessionID, err)
	}
	return nil
}

func (s *sqlStore) SaveAnalysis(ctx context.Context, a *model.Analysis) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO search_analysis
		(accession_id, experiment_accession_id, name, description, genome_assembly, p_val_threshold, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.AccessionID, a.ExperimentAccession, a.Name, a.Description, a.GenomeAssembly,
		a.PValThreshold, a.SourceFile, timeArg(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert analysis %s: %w", a.AccessionID, err)
	}
	return nil
}

// RecordLoad inserts or updates the run's row.
func (s *sqlStore) RecordLoad(ctx context.Context, r *model.LoadRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO search_loadrun
		(run_id, kind, accession_id, state, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			accession_id = excluded.accession_id,
			state = excluded.state,
			error = excluded.error,
			finished_at = excluded.finished_at`),
		r.RunID, r.Kind, r.AccessionID, r.State, r.Error, timeArg(r.StartedAt), timeArg(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("record load %s: %w", r.RunID, err)
	}
	return nil
}

func (s *sqlStore) LoadRecord(ctx context.Context, runID string) (*model.LoadRecord, error) {
	var (
		r                 model.LoadRecord
		started, finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT run_id, kind, COALESCE(accession_id, ''), state,
			COALESCE(error, ''), started_at, finished_at
		FROM search_loadrun WHERE run_id = ?`), runID).Scan(
		&r.RunID, &r.Kind, &r.AccessionID, &r.State, &r.Error, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select load run %s: %w", runID, err)
	}
	r.StartedAt = parseTime(started.String)
	r.FinishedAt = parseTime(finished.String)
	return &r, nil
}

func (s *sqlStore) ReadCounters(ctx context.Context) (map[accession.Type]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id_type, next_value FROM search_accessionid`)
	if err != nil {
		return nil, fmt.Errorf("select accession counters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counters := make(map[accession.Type]uint64)
	for rows.Next() {
		var (
			t string
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan accession counter: %w", err)
		}
		counters[accession.Type(t)] = uint64(n)
	}
	return counters, rows.Err()
}

// WriteCounters applies next only where the stored values still equal prev, in one
// transaction with the provenance row.
func (s *sqlStore) WriteCounters(ctx context.Context, prev, next map[accession.Type]uint64, p accession.Provenance) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			retErr = multierr.Append(retErr, tx.Rollback())
		}
	}()

	for t, v := range next {
		var res sql.Result
		if old, ok := prev[t]; ok {
			res, err = tx.ExecContext(ctx,
				s.rebind(`UPDATE search_accessionid SET next_value = ? WHERE id_type = ? AND next_value = ?`),
				int64(v), string(t), int64(old))
		} else {
			res, err = tx.ExecContext(ctx,
				s.rebind(`INSERT INTO search_accessionid (id_type, next_value) VALUES (?, ?) ON CONFLICT (id_type) DO NOTHING`),
				string(t), int64(v))
		}
		if err != nil {
			return fmt.Errorf("update %s counter: %w", t, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("%s: %w", t, accession.ErrCounterConflict)
		}
	}

	if err := s.insertProvenance(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) WriteProvenance(ctx context.Context, p accession.Provenance) error {
	return s.insertProvenance(ctx, s.db, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *sqlStore) insertProvenance(ctx context.Context, db execer, p accession.Provenance) error {
	issued, err := json.Marshal(p.Issued)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.rebind(`INSERT INTO search_accessionidlog (run_id, message, outcome, issued, created_at)
		VALUES (?, ?, ?, ?, ?)`), p.RunID, p.Message, p.Outcome, string(issued), timeArg(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert accession log: %w", err)
	}
	return nil
}

func (s *sqlStore) LastRowID(ctx context.Context, table string) (int64, error) {
	t, ok := tableByName(table)
	if !ok || !t.Serial {
		return 0, fmt.Errorf("%s is not a serial table", table)
	}
	var last int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM `+t.Name).Scan(&last); err != nil {
		return 0, fmt.Errorf("select max id from %s: %w", t.Name, err)
	}
	return last, nil
}

// timeArg passes timestamps as RFC 3339 text, which both backends accept. The zero time is NULL.
func timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
