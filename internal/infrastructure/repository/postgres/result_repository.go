package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

// ResultRepository keeps an audit trail of classification results.
type ResultRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS classification_results (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	classification TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classification_results_created_at ON classification_results(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_classification_results_label ON classification_results(classification);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ResultRepository) Save(ctx context.Context, res domain.ClassificationResult) error {
	meta := res.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO classification_results (id, filename, classification, error_message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`,
		uuid.NewString(), res.Filename, string(res.Classification), res.Error, metaJSON, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert classification result: %w", err)
	}
	return nil
}

func (r *ResultRepository) ListRecent(ctx context.Context, limit int) ([]domain.ClassificationResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT filename, classification, error_message, metadata
FROM classification_results
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query classification results: %w", err)
	}
	defer rows.Close()

	results := make([]domain.ClassificationResult, 0, limit)
	for rows.Next() {
		var (
			res     domain.ClassificationResult
			label   string
			metaRaw []byte
		)
		if err := rows.Scan(&res.Filename, &label, &res.Error, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan classification result: %w", err)
		}
		res.Classification = domain.NormalizeLabel(label)
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &res.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
			if len(res.Metadata) == 0 {
				res.Metadata = nil
			}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classification results: %w", err)
	}
	return results, nil
}
