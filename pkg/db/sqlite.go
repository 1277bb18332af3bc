package db

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/internal/util"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/bulk"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore is the embedded backend used for local runs and tests. Bulk rows are decoded and
// inserted through a prepared statement inside the phase transaction.
type SQLiteStore struct {
	sqlStore
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "cegs.db"
	}
	if dir := filepath.Dir(path); path != ":memory:" && !util.DirExists(dir) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return &SQLiteStore{sqlStore: sqlStore{db: db, dialect: SQLite}}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AdvanceRowID is a no-op: SQLite derives the next rowid from the largest one in the table.
func (s *SQLiteStore) AdvanceRowID(context.Context, string, int64) error {
	return nil
}

func (s *SQLiteStore) BeginBulk(ctx context.Context) (bulk.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) CopyFrom(ctx context.Context, table string, columns []string, r io.Reader) (int64, error) {
	tbl, ok := tableByName(table)
	if !ok {
		return 0, fmt.Errorf("unknown table %s", table)
	}
	kinds := make([]Kind, len(columns))
	for i, name := range columns {
		c, ok := tbl.column(name)
		if !ok {
			return 0, fmt.Errorf("unknown column %s.%s", table, name)
		}
		kinds[i] = c.Kind
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := t.tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tbl.Name, strings.Join(columns, ", "), placeholders))
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	br := bufio.NewReader(r)
	var n int64
	args := make([]any, len(columns))
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return n, err
		}
		line = strings.TrimSuffix(line, "\n")
		if line != "" {
			fields, derr := bulk.DecodeRow(line)
			if derr != nil {
				return n, fmt.Errorf("row %d: %w", n+1, derr)
			}
			if len(fields) != len(columns) {
				return n, fmt.Errorf("row %d: %d fields, want %d", n+1, len(fields), len(columns))
			}
			for i, f := range fields {
				if args[i], derr = convertField(f, kinds[i]); derr != nil {
					return n, fmt.Errorf("row %d column %s: %w", n+1, columns[i], derr)
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return n, fmt.Errorf("row %d: %w", n+1, err)
			}
			n++
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
	}
}

func convertField(f *string, k Kind) (any, error) {
	if f == nil {
		return nil, nil
	}
	switch k {
	case KindInt:
		return strconv.ParseInt(*f, 10, 64)
	case KindFloat:
		return strconv.ParseFloat(*f, 64)
	case KindBool:
		v, err := strconv.ParseBool(*f)
		if err != nil {
			return nil, err
		}
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return *f, nil
}

func (t *sqliteTx) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(context.Context) error {
	return t.tx.Rollback()
}
