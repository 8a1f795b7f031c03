// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS explorer_sessions (
    id TEXT PRIMARY KEY,
    first_seen TIMESTAMPTZ NOT NULL,
    last_seen TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS explorer_issues (
    session_id TEXT NOT NULL REFERENCES explorer_sessions(id),
    issue_id INTEGER NOT NULL,
    severity TEXT NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    url TEXT NOT NULL,
    viewport JSONB NOT NULL,
    steps JSONB NOT NULL,
    screenshot TEXT,
    analysis TEXT,
    observed_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, issue_id)
);`

const sqlUpsertSession = `
    INSERT INTO explorer_sessions (id, first_seen, last_seen)
    VALUES ($1, $2, $2)
    ON CONFLICT (id) DO UPDATE SET last_seen = EXCLUDED.last_seen;
`

const sqlInsertIssue = `
    INSERT INTO explorer_issues (session_id, issue_id, severity, type, title, description, url, viewport, steps, screenshot, analysis, observed_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    ON CONFLICT (session_id, issue_id) DO NOTHING;
`

const sqlSelectIssues = `
    SELECT issue_id, severity, type, title, description, url, viewport, steps, COALESCE(screenshot, ''), COALESCE(analysis, ''), observed_at
    FROM explorer_issues
    WHERE session_id = $1
    ORDER BY issue_id ASC;
`

// Store persists issues to PostgreSQL. It satisfies reporting.IssueSink.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the issue tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveIssue records the session and the issue in one transaction. Saving the
// same issue twice is a no-op.
func (s *Store) SaveIssue(ctx context.Context, sessionID string, issue schemas.Issue) error {
	viewport, err := json.Marshal(issue.Viewport)
	if err != nil {
		return fmt.Errorf("failed to marshal viewport: %w", err)
	}
	steps := issue.Steps
	if steps == nil {
		steps = []schemas.TestAction{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	observedAt := issue.Timestamp.UTC()
	if _, err := tx.Exec(ctx, sqlUpsertSession, sessionID, observedAt); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlInsertIssue,
		sessionID, issue.ID, string(issue.Severity), string(issue.Type),
		issue.Title, issue.Description, issue.URL,
		viewport, stepsJSON,
		nullable(issue.Screenshot), nullable(issue.Analysis),
		observedAt,
	); err != nil {
		return fmt.Errorf("failed to insert issue %d: %w", issue.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Issue persisted.", zap.String("session_id", sessionID), zap.Int("issue_id", issue.ID))
	return nil
}

// IssuesBySession returns a session's issues ordered by id.
func (s *Store) IssuesBySession(ctx context.Context, sessionID string) ([]schemas.Issue, error) {
	rows, err := s.pool.Query(ctx, sqlSelectIssues, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []schemas.Issue
	for rows.Next() {
		var (
			is                  schemas.Issue
			severity, issueType string
			viewport, steps     []byte
			observedAt          time.Time
		)
		if err := rows.Scan(&is.ID, &severity, &issueType, &is.Title, &is.Description, &is.URL,
			&viewport, &steps, &is.Screenshot, &is.Analysis, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue row: %w", err)
		}
		if err := json.Unmarshal(viewport, &is.Viewport); err != nil {
			return nil, fmt.Errorf("failed to decode viewport of issue %d: %w", is.ID, err)
		}
		if err := json.Unmarshal(steps, &is.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps of issue %d: %w", is.ID, err)
		}
		is.Severity = schemas.Severity(severity)
		is.Type = schemas.IssueType(issueType)
		is.Timestamp = observedAt
		issues = append(issues, is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return issues, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
