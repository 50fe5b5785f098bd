package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/3xecutablefile/terminal-ui/internal/model"
)

// SessionRepository provides data access for the session journal.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, shell, args, cols, rows, pid, status, exit_code, signal, log_file_path, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	session := &model.Session{}
	var args, signal, logFile sql.NullString
	var pid, exitCode sql.NullInt64

	err := row.Scan(
		&session.ID,
		&session.Shell,
		&args,
		&session.Cols,
		&session.Rows,
		&pid,
		&session.Status,
		&exitCode,
		&signal,
		&logFile,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if args.Valid {
		if err := session.ArgsFromJSON(args.String); err != nil {
			return nil, fmt.Errorf("failed to parse args: %w", err)
		}
	}
	if pid.Valid {
		p := int(pid.Int64)
		session.PID = &p
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		session.ExitCode = &code
	}
	session.Signal = signal.String
	session.LogFilePath = logFile.String
	return session, nil
}

// Create inserts a new session into the journal.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	argsJSON, err := session.ArgsToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize args: %w", err)
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	if session.Status == "" {
		session.Status = model.SessionStatusRunning
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.Shell,
		argsJSON,
		session.Cols,
		session.Rows,
		session.PID,
		session.Status,
		session.ExitCode,
		session.Signal,
		session.LogFilePath,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// List returns sessions newest first. An empty status lists every session.
func (r *SessionRepository) List(ctx context.Context, status model.SessionStatus) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session from the journal.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectOneRow(result)
}

// UpdateStatus records a status change together with the exit code and
// the name of the terminating signal, if any.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status model.SessionStatus, exitCode *int, signal string) error {
	query := `
		UPDATE sessions
		SET status = ?, exit_code = ?, signal = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, status, exitCode, signal, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return expectOneRow(result)
}

// UpdateSize records the latest terminal size.
func (r *SessionRepository) UpdateSize(ctx context.Context, id string, cols, rows int) error {
	query := `
		UPDATE sessions
		SET cols = ?, rows = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, cols, rows, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session size: %w", err)
	}
	return expectOneRow(result)
}

// CountActive returns the number of running sessions.
func (r *SessionRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE status = ?`, model.SessionStatusRunning,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// MarkOrphaned fails every session still marked running. A restarted
// server owns no children, so such rows can never be reaped.
func (r *SessionRepository) MarkOrphaned(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE status = ?`,
		model.SessionStatusFailed, time.Now(), model.SessionStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark orphaned sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}
