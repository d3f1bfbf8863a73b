package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"cleanupd/pkg/models"
)

// SQLiteStore persists samples as rows in a local SQLite database
type SQLiteStore struct {
	db         *sql.DB
	insertStmt *sql.Stmt
}

// NewSQLiteStore opens (or creates) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store.insertStmt, err = db.Prepare(`
		INSERT INTO performance_samples
		(duration_seconds, records_processed, cpu_usage, memory_usage, success, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = FULL;
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS performance_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		duration_seconds REAL NOT NULL,
		records_processed INTEGER NOT NULL,
		cpu_usage REAL NOT NULL,
		memory_usage REAL NOT NULL,
		success INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_recorded_at ON performance_samples(recorded_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load returns all samples in insertion order
func (s *SQLiteStore) Load() ([]models.PerformanceSample, error) {
	rows, err := s.db.Query(`
		SELECT duration_seconds, records_processed, cpu_usage, memory_usage, success, recorded_at
		FROM performance_samples
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := []models.PerformanceSample{}
	for rows.Next() {
		var sample models.PerformanceSample
		var success int
		var recordedAt int64

		if err := rows.Scan(
			&sample.DurationSeconds,
			&sample.RecordsProcessed,
			&sample.CPUUsage,
			&sample.MemoryUsage,
			&success,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		sample.Success = success == 1
		sample.Timestamp = time.Unix(0, recordedAt)
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return samples, nil
}

// Append inserts one sample
func (s *SQLiteStore) Append(sample models.PerformanceSample) error {
	success := 0
	if sample.Success {
		success = 1
	}

	_, err := s.insertStmt.Exec(
		sample.DurationSeconds,
		sample.RecordsProcessed,
		sample.CPUUsage,
		sample.MemoryUsage,
		success,
		sample.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store sample: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.insertStmt != nil {
		s.insertStmt.Close()
	}
	return s.db.Close()
}
