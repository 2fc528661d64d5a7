package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			modality TEXT NOT NULL,
			plan_length INTEGER NOT NULL,
			state TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			question TEXT NOT NULL,
			modality TEXT NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			frame_count INTEGER NOT NULL DEFAULT 0,
			completed_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, turn_index),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			report_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			overall_score INTEGER NOT NULL,
			dominant_emotion TEXT,
			transcript TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}

	// Columns added after the first release.
	if err := s.ensureColumn("sessions", "seed_question", `ALTER TABLE sessions ADD COLUMN seed_question TEXT`); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, role, modality, plan_length, state, created_at, updated_at, metadata, seed_question)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.Role, session.Modality, session.PlanLength, session.State,
		session.CreatedAt, session.UpdatedAt, nullStringBytes(session.Metadata), nullString(session.SeedQuestion))
	return err
}

// GetSession retrieves a session by ID. It returns nil if not found.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var metadata, seed sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, role, modality, plan_length, state, created_at, updated_at, metadata, seed_question
		 FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.UserID, &session.Role, &session.Modality, &session.PlanLength,
		&session.State, &session.CreatedAt, &session.UpdatedAt, &metadata, &seed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if metadata.Valid {
		session.Metadata = json.RawMessage(metadata.String)
	}
	session.SeedQuestion = seed.String
	return &session, nil
}

// UpdateSessionState updates the lifecycle state of a session.
func (s *SQLiteStore) UpdateSessionState(ctx context.Context, sessionID string, state domain.SessionState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE session_id = ?`,
		state, time.Now(), sessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// AppendTurn writes a turn to the durable log. Writing the same turn index
// twice keeps the first write.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, turn_index, question, modality, transcript, frame_count, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, turn_index) DO NOTHING`,
		sessionID, turn.Index, turn.Question, turn.Answer.Modality, turn.Answer.Transcript,
		len(turn.Answer.Frames), turn.CompletedAt)
	return err
}

// ListTurns returns the logged turns of a session in order. Frame data is
// never stored, so video answers come back without frames.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_index, question, modality, transcript, completed_at
		 FROM turns WHERE session_id = ? ORDER BY turn_index ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		if err := rows.Scan(&turn.Index, &turn.Question, &turn.Answer.Modality, &turn.Answer.Transcript, &turn.CompletedAt); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// SaveReport stores a session report and returns the session ID it was
// saved under. Saving a second report for the same session fails.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *domain.SessionReport) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	var dominant sql.NullString
	if report.Emotion != nil {
		dominant = nullString(string(report.Emotion.DominantEmotion))
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (report_id, session_id, overall_score, dominant_emotion, transcript, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ReportID, report.SessionID, report.Linguistic.OverallScore, dominant,
		report.Transcript(), string(payload), report.CreatedAt)
	if err != nil {
		return "", err
	}
	return report.SessionID, nil
}

// GetReport retrieves the saved report of a session. It returns nil if
// none was saved.
func (s *SQLiteStore) GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM reports WHERE session_id = ?`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report domain.SessionReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.Ts, event.Type, nullStringBytes(event.Payload))
	return err
}

// GetEvents retrieves events for a session.
func (s *SQLiteStore) GetEvents(ctx context.Context, sessionID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, session_id, ts, type, payload FROM events WHERE session_id = ?`
	args := []interface{}{sessionID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
