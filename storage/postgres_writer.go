package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"pricing-history/models"
)

const pgColumnsPerRow = 10

// PostgresWriter persists output rows to PostgreSQL, tagged with the run id.
type PostgresWriter struct {
	mu    sync.Mutex
	db    *sql.DB
	runID string
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn, runID string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	return newPostgresWriterWithDB(db, runID)
}

func newPostgresWriterWithDB(db *sql.DB, runID string) (*PostgresWriter, error) {
	pw := &PostgresWriter{db: db, runID: runID}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS pricing_snapshots (
			id                 BIGSERIAL PRIMARY KEY,
			run_id             UUID         NOT NULL,
			domain             TEXT         NOT NULL,
			pricing_page_url   TEXT         NOT NULL,
			week_start         TEXT         NOT NULL DEFAULT '',
			snapshot_date      TEXT         NOT NULL DEFAULT '',
			snapshot_timestamp TEXT         NOT NULL DEFAULT '',
			pricing_type       VARCHAR(16)  NOT NULL DEFAULT '',
			price_shown        TEXT         NOT NULL DEFAULT '',
			reason_code        VARCHAR(64)  NOT NULL DEFAULT '',
			archive_url        TEXT         NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_pricing_snapshots_run    ON pricing_snapshots(run_id);
		CREATE INDEX IF NOT EXISTS idx_pricing_snapshots_domain ON pricing_snapshots(domain, week_start);
		CREATE INDEX IF NOT EXISTS idx_pricing_snapshots_reason ON pricing_snapshots(reason_code);
	`)
	return err
}

// WriteRows inserts rows in batches inside one transaction, so a batch is
// either fully stored or not at all.
func (pw *PostgresWriter) WriteRows(rows []models.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	tx, err := pw.db.Begin()
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	const batchSize = 50
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := pw.insertBatch(tx, rows[i:end]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(tx *sql.Tx, batch []models.OutputRow) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*pgColumnsPerRow)

	for idx, r := range batch {
		base := idx * pgColumnsPerRow
		placeholders := make([]string, pgColumnsPerRow)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			pw.runID, r.Domain, r.PricingURL, r.WeekStart, r.SnapshotDate,
			r.SnapshotTimestamp, r.Period, r.PriceShown, r.ReasonCode, r.ArchiveURL)
	}

	query := fmt.Sprintf(`
		INSERT INTO pricing_snapshots (run_id, domain, pricing_page_url, week_start, snapshot_date,
			snapshot_timestamp, pricing_type, price_shown, reason_code, archive_url)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	_, err := tx.Exec(query, valueArgs...)
	return err
}

// CountRun returns how many rows are stored for this writer's run.
func (pw *PostgresWriter) CountRun() (int, error) {
	var n int
	err := pw.db.QueryRow(`SELECT COUNT(*) FROM pricing_snapshots WHERE run_id = $1`, pw.runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count run: %w", err)
	}
	return n, nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
