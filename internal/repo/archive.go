package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/stepflow/internal/domain"
)

// archiveSchema — таблица архива завершённых runs.
const archiveSchema = `
	CREATE TABLE IF NOT EXISTS run_archive (
		run_id        TEXT PRIMARY KEY,
		workflow_name TEXT        NOT NULL,
		integration   TEXT,
		status        TEXT        NOT NULL,
		failed_count  INT         NOT NULL,
		abort_reason  TEXT,
		steps         JSONB       NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		ended_at      TIMESTAMPTZ NOT NULL,
		duration_ms   BIGINT      NOT NULL
	);
	CREATE INDEX IF NOT EXISTS run_archive_workflow_idx ON run_archive (workflow_name, ended_at DESC);
`

// execer — часть pgxpool.Pool, нужная архиву.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgArchive — write-through архив завершённых runs в PostgreSQL.
//
// Архив только пишется: движок никогда не читает из него историю.
type PgArchive struct {
	db execer
}

// NewPgArchive создаёт новый PgArchive.
func NewPgArchive(pool *pgxpool.Pool) *PgArchive {
	return &PgArchive{db: pool}
}

// EnsureSchema создаёт таблицу архива, если её нет.
func (a *PgArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, archiveSchema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// Archive сохраняет запись. Повторная запись того же run_id игнорируется.
func (a *PgArchive) Archive(ctx context.Context, rec *domain.RunRecord) error {
	stepsJSON, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		INSERT INTO run_archive (run_id, workflow_name, integration, status, failed_count,
		                         abort_reason, steps, started_at, ended_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err = a.db.Exec(ctx, query,
		rec.RunID,
		rec.WorkflowName,
		nullString(rec.Integration),
		string(rec.Status),
		rec.FailedCount,
		nullString(rec.AbortReason),
		stepsJSON,
		time.UnixMilli(rec.StartedAtMs).UTC(),
		time.UnixMilli(rec.EndedAtMs).UTC(),
		rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert run archive: %w", err)
	}
	return nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
