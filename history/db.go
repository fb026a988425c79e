package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables the recorder writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS shard_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	workers     INTEGER NOT NULL,
	files       INTEGER NOT NULL,
	success     BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS shard_test_results (
	id       SERIAL PRIMARY KEY,
	run_id   TEXT NOT NULL REFERENCES shard_runs (id) ON DELETE CASCADE,
	file     TEXT NOT NULL,
	name     TEXT NOT NULL,
	status   TEXT NOT NULL,
	runtime  DOUBLE PRECISION NOT NULL,
	worker   INTEGER NOT NULL,
	message  TEXT NOT NULL DEFAULT ''
);
`

type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Workers    int
	Files      int
	Success    bool
}

type TestResult struct {
	ID      int
	RunID   string
	File    string
	Name    string
	Status  string
	Runtime float64
	Worker  int
	Message string
}

type Connection interface {
	Begin(ctx context.Context) (Transactor, error)
	Close() error
}

type Transactor interface {
	InsertRun(ctx context.Context, r Run) error
	InsertTestResult(ctx context.Context, tr TestResult) (int, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

var (
	_ Connection = (*PGXDB)(nil)
	_ Transactor = (*PGXTransactor)(nil)
)

type PGXDB struct {
	conn *pgxpool.Pool
}

// New connects to uri and makes sure the history tables exist
func New(ctx context.Context, uri string) (*PGXDB, error) {
	conn, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if _, err := conn.Exec(ctx, Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &PGXDB{conn: conn}, nil
}

func (p *PGXDB) Begin(ctx context.Context) (Transactor, error) {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &PGXTransactor{tx: tx}, nil
}

func (p *PGXDB) Close() error {
	p.conn.Close()
	return nil
}

type PGXTransactor struct {
	tx  pgx.Tx
	mtx sync.Mutex
}

func (p *PGXTransactor) InsertRun(ctx context.Context, r Run) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO shard_runs (id, started_at, finished_at, workers, files, success)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING
`

	if _, err := p.tx.Exec(ctx,
		sql,
		r.ID,
		r.StartedAt,
		r.FinishedAt,
		r.Workers,
		r.Files,
		r.Success,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (p *PGXTransactor) InsertTestResult(ctx context.Context, tr TestResult) (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO shard_test_results (run_id, file, name, status, runtime, worker, message)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id
`

	row := p.tx.QueryRow(ctx,
		sql,
		tr.RunID,
		tr.File,
		tr.Name,
		tr.Status,
		tr.Runtime,
		tr.Worker,
		tr.Message,
	)
	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert test result: %w", err)
	}
	return id, nil
}

func (p *PGXTransactor) Commit(ctx context.Context) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.tx.Commit(ctx)
}

func (p *PGXTransactor) Rollback(ctx context.Context) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if err := p.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.Error("error rolling back transaction", "err", err)
	}
}
