package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

const table = "wastewater_samples"

// dialect captures the differences between the SQLite and Postgres backends.
type dialect struct {
	name   string
	driver string
	schema []string

	// lockTable runs first inside every write transaction; empty when the
	// transaction is already exclusive on BEGIN.
	lockTable string

	numbered bool // $1 placeholders instead of ?
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			sample_collection_date            TEXT    NOT NULL,
			site_name                         TEXT    NOT NULL,
			county                            TEXT    NOT NULL,
			pcr_pathogen_target               TEXT    NOT NULL,
			pcr_gene_target                   TEXT    NOT NULL,
			normalized_pathogen_concentration REAL    NOT NULL,
			date_updated                      TEXT    NOT NULL,
			poll_timestamp                    INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_` + table + `_natural_key ON ` + table + `
			(sample_collection_date, site_name, county, pcr_pathogen_target, pcr_gene_target)`,
		`CREATE INDEX IF NOT EXISTS idx_` + table + `_trend ON ` + table + `
			(site_name, pcr_pathogen_target, sample_collection_date)`,
	},
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			sample_collection_date            TEXT             NOT NULL,
			site_name                         TEXT             NOT NULL,
			county                            TEXT             NOT NULL,
			pcr_pathogen_target               TEXT             NOT NULL,
			pcr_gene_target                   TEXT             NOT NULL,
			normalized_pathogen_concentration DOUBLE PRECISION NOT NULL,
			date_updated                      TEXT             NOT NULL,
			poll_timestamp                    BIGINT           NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_` + table + `_natural_key ON ` + table + `
			(sample_collection_date, site_name, county, pcr_pathogen_target, pcr_gene_target)`,
		`CREATE INDEX IF NOT EXISTS idx_` + table + `_trend ON ` + table + `
			(site_name, pcr_pathogen_target, sample_collection_date)`,
	},
	lockTable: `LOCK TABLE ` + table + ` IN SHARE ROW EXCLUSIVE MODE`,
	numbered:  true,
}

// sqliteDSN opens path with IMMEDIATE transactions so a batch holds the
// write lock from BEGIN, and waits on a busy database instead of failing.
func sqliteDSN(path string) string {
	return "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// sqliteReadDSN opens path for queries. The database is already in WAL mode
// once the writer has opened it.
func sqliteReadDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=query_only(1)"
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s schema: %w", d.name, err)
		}
	}
	return nil
}
