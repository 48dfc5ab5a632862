package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/insightmesh/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS learning_records (
	id          TEXT PRIMARY KEY,
	domain      TEXT NOT NULL,
	circuit     TEXT NOT NULL,
	depth       INTEGER NOT NULL,
	enhanced    INTEGER NOT NULL,
	archetypes  TEXT NOT NULL,
	overall     REAL NOT NULL,
	quality     TEXT NOT NULL,
	config      TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_learning_records_domain ON learning_records(domain);
`

// SQLStore implements core.LearningStore with SQLite. Rows are only ever
// inserted.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens or creates a SQLite DB at path and creates the schema.
// The parent directory is created if needed. ":memory:" opens a private
// in-memory database.
func OpenSQLStore(path string) (*SQLStore, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every pooled connection to ":memory:" would see its own database.
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Append implements core.LearningStore.
func (s *SQLStore) Append(ctx context.Context, qv core.QualityVector, cfg core.RunConfiguration, domain string) error {
	if domain == "" {
		domain = core.DefaultDomain
	}
	cfg = cfg.Frozen()

	qJSON, err := json.Marshal(qv)
	if err != nil {
		return fmt.Errorf("marshal quality: %w", err)
	}
	cJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learning_records (id, domain, circuit, depth, enhanced, archetypes, overall, quality, config, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		core.NewID(), domain, string(cfg.Circuit), cfg.Depth, cfg.EnhancedMode,
		strings.Join(cfg.ArchetypeIDs(), ","), qv.Overall, string(qJSON), string(cJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert learning record: %w", err)
	}
	return nil
}

// QueryBestConfigurations implements core.LearningStore. Aggregation runs
// in SQL; ties break on run count and then on the configuration columns.
func (s *SQLStore) QueryBestConfigurations(ctx context.Context, domain string, limit int) ([]core.Recommendation, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT circuit, depth, enhanced, archetypes,
		       ROUND(AVG(overall), 2) AS mean_overall, MAX(overall), COUNT(*) AS runs
		FROM learning_records
		WHERE domain = ?
		GROUP BY circuit, depth, enhanced, archetypes
		ORDER BY mean_overall DESC, runs DESC, circuit, depth, enhanced, archetypes
		LIMIT ?`, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("query best configurations: %w", err)
	}
	defer rows.Close()

	var out []core.Recommendation
	for rows.Next() {
		var (
			rec        core.Recommendation
			circuit    string
			archetypes string
		)
		if err := rows.Scan(&circuit, &rec.Depth, &rec.EnhancedMode, &archetypes, &rec.MeanOverall, &rec.BestOverall, &rec.Runs); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		rec.Circuit = core.CircuitType(circuit)
		if archetypes != "" {
			rec.ArchetypeIDs = strings.Split(archetypes, ",")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Records returns every record of a domain in insertion order.
func (s *SQLStore) Records(ctx context.Context, domain string) ([]core.LearningRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, quality, config, recorded_at
		FROM learning_records
		WHERE domain = ?
		ORDER BY rowid`, domain)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []core.LearningRecord
	for rows.Next() {
		var (
			rec        core.LearningRecord
			qJSON      string
			cJSON      string
			recordedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Domain, &qJSON, &cJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(qJSON), &rec.Quality); err != nil {
			return nil, fmt.Errorf("decode quality of %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(cJSON), &rec.Config); err != nil {
			return nil, fmt.Errorf("decode config of %s: %w", rec.ID, err)
		}
		if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("decode timestamp of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
