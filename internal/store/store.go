// Package store persists wastewater samples with first-write-wins
// deduplication on the natural key and answers latest-vs-previous trend
// queries. SQLite is the default backend; Postgres is used when a database
// URL is configured.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/wastewater-ingest/internal/domain"
)

// ErrStorageUnavailable marks any backend failure. A batch that fails with it
// has persisted nothing.
var ErrStorageUnavailable = errors.New("storage unavailable")

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Options configures Open.
type Options struct {
	// SQLitePath is the database file. Parent directories are created.
	SQLitePath string

	// PostgresURL selects the Postgres backend when non-empty.
	PostgresURL string

	// KnownKeyCacheSize bounds the in-process set of committed keys.
	// Zero disables it.
	KnownKeyCacheSize int

	Logger *slog.Logger
}

// BatchReport tallies one InsertBatch call.
type BatchReport struct {
	Inserted         int `json:"inserted"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	FailedConversion int `json:"failed_conversion"`
	Total            int `json:"total"`
}

// LogValue implements slog.LogValuer.
func (r BatchReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("inserted", r.Inserted),
		slog.Int("skipped_duplicate", r.SkippedDuplicate),
		slog.Int("failed_conversion", r.FailedConversion),
		slog.Int("total", r.Total),
	)
}

// Store is a deduplicating sample store. It is safe for concurrent use; write
// transactions are serialized in-process and locked exclusively in the
// database so concurrent writers from other processes cannot interleave.
type Store struct {
	db      *sql.DB
	reader  *sql.DB // same as db except on SQLite
	dialect dialect
	known   *knownKeys
	logger  *slog.Logger

	writeMu sync.Mutex
}

// Open connects to the configured backend and creates the samples table and
// its indexes if they do not exist.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d, dsn := sqliteDialect, ""
	if opts.PostgresURL != "" {
		d, dsn = postgresDialect, opts.PostgresURL
	} else {
		if opts.SQLitePath == "" {
			return nil, errors.New("store: sqlite path is required")
		}
		if dir := filepath.Dir(opts.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, storageErr("create database directory", err)
			}
		}
		dsn = sqliteDSN(opts.SQLitePath)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, storageErr("open "+d.name, err)
	}
	if d.name == sqliteDialect.name {
		// One writer connection; queries use their own pool below.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageErr("connect "+d.name, err)
	}
	if err := d.applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, storageErr("migrate", err)
	}

	reader := db
	if d.name == sqliteDialect.name {
		if reader, err = openSQLiteReader(ctx, opts.SQLitePath); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	logger.Info("store opened", "backend", d.name, "known_key_cache", opts.KnownKeyCacheSize)
	return &Store{
		db:      db,
		reader:  reader,
		dialect: d,
		known:   newKnownKeys(opts.KnownKeyCacheSize),
		logger:  logger,
	}, nil
}

// openSQLiteReader opens the query pool. WAL lets these connections read the
// last committed state while a batch holds the write lock.
func openSQLiteReader(ctx context.Context, path string) (*sql.DB, error) {
	reader, err := sql.Open(sqliteDialect.driver, sqliteReadDSN(path))
	if err != nil {
		return nil, storageErr("open sqlite reader", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(ctx); err != nil {
		_ = reader.Close()
		return nil, storageErr("connect sqlite reader", err)
	}
	return reader, nil
}

// Close releases the database handles.
func (s *Store) Close() error {
	var err error
	if s.reader != s.db {
		err = s.reader.Close()
	}
	return errors.Join(s.db.Close(), err)
}

// DB exposes the underlying handle for health checks and tests.
func (s *Store) DB() *sql.DB { return s.db }

// Backend names the active dialect, "sqlite" or "postgres".
func (s *Store) Backend() string { return s.dialect.name }

// Ping reports whether the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.reader.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// InsertIfAbsent stores sample unless a row with the same natural key already
// exists. It reports whether a row was written. An existing row is never
// modified, even if its other fields differ.
func (s *Store) InsertIfAbsent(ctx context.Context, sample domain.WasteWaterSample) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := sample.Key().String()
	if s.known.contains(key) {
		return false, nil
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.insertIfAbsent(ctx, tx, sample)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, storageErr("commit", err)
	}
	s.known.add(key)
	return inserted, nil
}

// InsertBatch applies every element of results inside one exclusive
// transaction. Data-quality errors (parse and conversion failures) are
// tallied and skipped. Any other element error, or any storage failure,
// rolls the whole batch back and is returned with an empty report.
//
// results is consumed lazily; at most one element is held at a time.
func (s *Store) InsertBatch(ctx context.Context, results iter.Seq[domain.SampleResult]) (BatchReport, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return BatchReport{}, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("batch rollback failed", "error", rbErr)
			}
		}
	}()

	var (
		report  BatchReport
		touched = pendingKeys{limit: s.cacheLimit()}
	)
	for res := range results {
		report.Total++

		if res.Err != nil {
			if domain.IsDataQuality(res.Err) {
				report.FailedConversion++
				s.logger.Warn("skipping row", "error", res.Err)
				continue
			}
			return BatchReport{}, fmt.Errorf("batch aborted at element %d: %w", report.Total, res.Err)
		}

		key := res.Sample.Key().String()
		if s.known.contains(key) {
			report.SkippedDuplicate++
			continue
		}

		inserted, err := s.insertIfAbsent(ctx, tx, res.Sample)
		if err != nil {
			return BatchReport{}, err
		}
		if inserted {
			report.Inserted++
		} else {
			report.SkippedDuplicate++
		}
		touched.add(key)
	}

	if err := ctx.Err(); err != nil {
		return BatchReport{}, storageErr("batch", err)
	}
	if err := tx.Commit(); err != nil {
		return BatchReport{}, storageErr("commit", err)
	}
	committed = true
	s.known.add(touched.newest()...)

	return report, nil
}

func (s *Store) cacheLimit() int {
	if s.known == nil {
		return 0
	}
	return s.known.maxEntries
}

// begin opens a write transaction holding the table's write lock.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", err)
	}
	if s.dialect.lockTable != "" {
		if _, err := tx.ExecContext(ctx, s.dialect.lockTable); err != nil {
			_ = tx.Rollback()
			return nil, storageErr("lock table", err)
		}
	}
	return tx, nil
}

const existsQuery = `SELECT 1 FROM ` + table + `
	WHERE sample_collection_date = ? AND site_name = ? AND county = ?
	  AND pcr_pathogen_target = ? AND pcr_gene_target = ?
	LIMIT 1`

const insertQuery = `INSERT INTO ` + table + ` (
		sample_collection_date, site_name, county, pcr_pathogen_target, pcr_gene_target,
		normalized_pathogen_concentration, date_updated, poll_timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// insertIfAbsent is the check-then-insert step. The caller's transaction holds
// the write lock, so no other writer can slip in between the two statements.
func (s *Store) insertIfAbsent(ctx context.Context, tx *sql.Tx, sample domain.WasteWaterSample) (bool, error) {
	date := sample.SampleCollectionDate.Format(domain.DateLayout)

	var one int
	err := tx.QueryRowContext(ctx, s.dialect.rebind(existsQuery),
		date, sample.SiteName, sample.County, sample.PathogenTarget, sample.GeneTarget,
	).Scan(&one)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, storageErr("check existing sample", err)
	}

	_, err = tx.ExecContext(ctx, s.dialect.rebind(insertQuery),
		date, sample.SiteName, sample.County, sample.PathogenTarget, sample.GeneTarget,
		sample.NormalizedConcentration,
		sample.DateUpdated.In(domain.Pacific()).Format(time.RFC3339Nano),
		sample.PollTimestamp.Unix(),
	)
	if err != nil {
		return false, storageErr("insert sample", err)
	}
	return true, nil
}
