package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/questmaster/internal/hitl/domain"
	"github.com/louisbranch/questmaster/internal/hitl/storage"
	"github.com/louisbranch/questmaster/internal/hitl/storage/sqlite/migrations"
	sqlitemigrate "github.com/louisbranch/questmaster/internal/platform/storage/sqlitemigrate"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides SQLite-backed persistence for intervention alerts and
// AI dispatch audit records.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// DB returns the underlying sql.DB instance.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutAlert inserts or updates an alert record.
func (s *Store) PutAlert(ctx context.Context, alert domain.Alert) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(alert.ID) == "" {
		return fmt.Errorf("alert id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO alerts (
			id, session_id, player_id, source, reason, severity,
			excerpt, note, status, response, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			note = excluded.note,
			response = excluded.response,
			updated_at = excluded.updated_at`,
		alert.ID,
		alert.SessionID,
		alert.PlayerID,
		string(alert.Source),
		string(alert.Reason),
		string(alert.Severity),
		alert.Excerpt,
		alert.Note,
		string(alert.Status),
		alert.Response,
		toMillis(alert.CreatedAt),
		toMillis(alert.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put alert: %w", err)
	}
	return nil
}

const alertColumns = `id, session_id, player_id, source, reason, severity,
	excerpt, note, status, response, created_at, updated_at`

// GetAlert fetches an alert record by ID.
func (s *Store) GetAlert(ctx context.Context, id string) (domain.Alert, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Alert{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.Alert{}, fmt.Errorf("alert id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	alert, err := scanAlertRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Alert{}, storage.ErrNotFound
		}
		return domain.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *Store) ListAlerts(ctx context.Context, filter storage.ListAlertsFilter) ([]domain.Alert, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	var (
		clauses []string
		args    []any
	)
	if strings.TrimSpace(filter.SessionID) != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "status IN (?, ?)")
		args = append(args, string(domain.StatusOpen), string(domain.StatusAcknowledged))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		alert, err := scanAlertRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// RecordDispatch appends one AI dispatch audit record.
func (s *Store) RecordDispatch(ctx context.Context, record storage.DispatchRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("dispatch id is required")
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO ai_dispatches (
			id, session_id, provider, category, outcome, detail, latency_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.Provider,
		record.Category,
		record.Outcome,
		record.Detail,
		record.Latency.Milliseconds(),
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// ListDispatches returns up to limit dispatch records for a session,
// newest first.
func (s *Store) ListDispatches(ctx context.Context, sessionID string, limit int) ([]storage.DispatchRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, session_id, provider, category, outcome, detail, latency_ms, created_at
		FROM ai_dispatches
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()

	var records []storage.DispatchRecord
	for rows.Next() {
		var (
			record    storage.DispatchRecord
			latencyMS int64
			createdAt int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Provider,
			&record.Category,
			&record.Outcome,
			&record.Detail,
			&latencyMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		record.Latency = time.Duration(latencyMS) * time.Millisecond
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return records, nil
}

func scanAlertRow(row *sql.Row) (domain.Alert, error) {
	var (
		alert     domain.Alert
		source    string
		reason    string
		severity  string
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&alert.ID,
		&alert.SessionID,
		&alert.PlayerID,
		&source,
		&reason,
		&severity,
		&alert.Excerpt,
		&alert.Note,
		&status,
		&alert.Response,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Alert{}, err
	}
	alert.Source = domain.Source(source)
	alert.Reason = domain.Reason(reason)
	alert.Severity = domain.Severity(severity)
	alert.Status = domain.Status(status)
	alert.CreatedAt = fromMillis(createdAt)
	alert.UpdatedAt = fromMillis(updatedAt)
	return alert, nil
}

func scanAlertRows(rows *sql.Rows) (domain.Alert, error) {
	var (
		alert     domain.Alert
		source    string
		reason    string
		severity  string
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := rows.Scan(
		&alert.ID,
		&alert.SessionID,
		&alert.PlayerID,
		&source,
		&reason,
		&severity,
		&alert.Excerpt,
		&alert.Note,
		&status,
		&alert.Response,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Alert{}, err
	}
	alert.Source = domain.Source(source)
	alert.Reason = domain.Reason(reason)
	alert.Severity = domain.Severity(severity)
	alert.Status = domain.Status(status)
	alert.CreatedAt = fromMillis(createdAt)
	alert.UpdatedAt = fromMillis(updatedAt)
	return alert, nil
}
