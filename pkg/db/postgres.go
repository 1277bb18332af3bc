package db

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/bulk"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore runs ordinary queries through database/sql on top of a pgx pool and streams
// bulk rows with COPY FROM STDIN.
type PostgresStore struct {
	sqlStore
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{
		sqlStore: sqlStore{db: stdlib.OpenDBFromPool(pool), dialect: Postgres},
		pool:     pool,
	}, nil
}

func (s *PostgresStore) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}

// AdvanceRowID moves the table's id sequence to last so later inserts that rely on the
// column default do not collide with loader-assigned ids.
func (s *PostgresStore) AdvanceRowID(ctx context.Context, table string, last int64) error {
	t, ok := tableByName(table)
	if !ok || !t.Serial {
		return fmt.Errorf("%s is not a serial table", table)
	}
	if _, err := s.pool.Exec(ctx, `SELECT setval(pg_get_serial_sequence($1, 'id'), $2)`, t.Name, last); err != nil {
		return fmt.Errorf("setval %s: %w", t.Name, err)
	}
	return nil
}

func (s *PostgresStore) BeginBulk(ctx context.Context) (bulk.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

// CopyFrom sends the already encoded rows as-is; the batch format is COPY text.
func (t *pgTx) CopyFrom(ctx context.Context, table string, columns []string, r io.Reader) (int64, error) {
	if _, ok := tableByName(table); !ok {
		return 0, fmt.Errorf("unknown table %s", table)
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	sql := fmt.Sprintf("COPY %s (%s) FROM STDIN", pgx.Identifier{table}.Sanitize(), strings.Join(cols, ", "))
	tag, err := t.tx.Conn().PgConn().CopyFrom(ctx, r, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
