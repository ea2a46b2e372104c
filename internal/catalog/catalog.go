package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run is one recorded indexing run.
type Run struct {
	ID         string
	Collection string
	StartedAt  time.Time
	FinishedAt time.Time
	Documents  int
	Written    int
	Failed     int
}

// DocumentOutcome is the recorded outcome for one document in a run.
type DocumentOutcome struct {
	Path    string
	Kind    string
	Status  string
	Entries int
	Error   string
}

// QueryLogEntry is one recorded question and its retrieval outcome.
type QueryLogEntry struct {
	ID         string
	Collection string
	Question   string
	Results    int
	TopScore   float64
	AskedAt    time.Time
}

// Catalog is the local SQLite record of indexing runs and questions. It also
// carries the per-collection entry-id high-water mark, so re-running the
// indexer appends entries with fresh ids instead of overwriting old ones.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog database at path and applies pending
// schema migrations.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Catalog{db: db}, nil
}

// Close releases the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// LastEntrySeq returns the highest entry sequence recorded for the
// collection, or 0 when the collection has never been indexed.
func (c *Catalog) LastEntrySeq(ctx context.Context, collection string) (int64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx,
		`SELECT last_entry_seq FROM collections WHERE name = ?`, collection,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading entry sequence for %s: %w", collection, err)
	}
	return seq, nil
}

// ResetEntrySeq zeroes the collection's entry sequence so the next run starts
// numbering at 1 again, overwriting entries that share those ids.
func (c *Catalog) ResetEntrySeq(ctx context.Context, collection string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO collections (name, last_entry_seq, updated_at) VALUES (?, 0, ?)
		 ON CONFLICT(name) DO UPDATE SET last_entry_seq = 0, updated_at = excluded.updated_at`,
		collection, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("resetting entry sequence for %s: %w", collection, err)
	}
	return nil
}

// SaveRun records one finished indexing run with its per-document outcomes
// and advances the collection's entry sequence. Everything lands in a single
// transaction.
func (c *Catalog) SaveRun(ctx context.Context, run Run, docs []DocumentOutcome, lastSeq int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting catalog transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, collection, started_at, finished_at, documents, entries_written, documents_failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Collection, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Documents, run.Written, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}

	for _, doc := range docs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_documents (run_id, path, kind, status, entries, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, doc.Path, doc.Kind, doc.Status, doc.Entries, doc.Error,
		)
		if err != nil {
			return fmt.Errorf("recording document %s: %w", doc.Path, err)
		}
	}

	// The sequence only ever moves forward here; ResetEntrySeq is the one
	// deliberate way back.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO collections (name, last_entry_seq, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   last_entry_seq = MAX(collections.last_entry_seq, excluded.last_entry_seq),
		   updated_at = excluded.updated_at`,
		run.Collection, lastSeq, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("advancing entry sequence for %s: %w", run.Collection, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing catalog transaction: %w", err)
	}
	return nil
}

// LogQuery records one question for evaluation/feedback loops.
func (c *Catalog) LogQuery(ctx context.Context, entry QueryLogEntry) error {
	topScore := sql.NullFloat64{Float64: entry.TopScore, Valid: entry.Results > 0}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO query_log (id, collection, question, result_count, top_score, asked_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Collection, entry.Question, entry.Results, topScore, entry.AskedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording query: %w", err)
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite3.WithInstance(db, &migratesqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}
	log.Printf("catalog: schema at version %d", version)

	return nil
}
