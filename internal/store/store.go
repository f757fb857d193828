package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/hush/internal/types"
)

// Store manages the PostgreSQL connection holding watch sessions and cue events.
// It wraps a single connection and must not be used from several goroutines at once.
type Store struct {
	conn *pgx.Conn
}

// Session is one run of `hush watch`.
type Session struct {
	ID        int64
	StartedAt time.Time
	EndedAt   *time.Time
	Language  string
	Regions   []string
	Engines   int
	Ticks     int
	Events    int
}

// EventRecord is a stored cue event.
type EventRecord struct {
	ID        int64
	SessionID int64
	types.Event
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS watch_sessions (
			id BIGSERIAL PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ,
			language TEXT NOT NULL,
			regions TEXT NOT NULL,
			engines INT NOT NULL,
			ticks INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS cue_events (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT NOT NULL REFERENCES watch_sessions(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			tick INT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			forced BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS cue_events_session_id_idx ON cue_events (session_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// StartSession registers a new watch session and returns its ID.
func (s *Store) StartSession(ctx context.Context, language string, regions []string, engines int) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO watch_sessions (language, regions, engines)
		VALUES ($1, $2, $3)
		RETURNING id
	`, language, strings.Join(regions, ","), engines).Scan(&id)
	return id, err
}

// EndSession stamps the session's end time and tick count.
func (s *Store) EndSession(ctx context.Context, id int64, ticks int) error {
	tag, err := s.conn.Exec(ctx, "UPDATE watch_sessions SET ended_at = NOW(), ticks = $2 WHERE id = $1", id, ticks)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %d not found", id)
	}
	return nil
}

// InsertEvent saves a cue transition.
func (s *Store) InsertEvent(ctx context.Context, sessionID int64, ev types.Event) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO cue_events (session_id, kind, tick, at, region, text, forced)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sessionID, ev.Kind.String(), ev.Tick, ev.At, ev.Region, ev.Text, ev.Forced)
	return err
}

// ListEvents returns the events of one session (or of all sessions when
// sessionID is 0), oldest first, at most limit rows (0 means no limit).
func (s *Store) ListEvents(ctx context.Context, sessionID int64, limit int) ([]EventRecord, error) {
	query := `
		SELECT id, session_id, kind, tick, at, region, text, forced
		FROM cue_events
		WHERE ($1::bigint = 0 OR session_id = $1::bigint)
		ORDER BY at, id
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &kind, &rec.Tick, &rec.At, &rec.Region, &rec.Text, &rec.Forced); err != nil {
			return nil, err
		}
		rec.Kind = parseKind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseKind(s string) types.EventKind {
	switch s {
	case types.CueAppeared.String():
		return types.CueAppeared
	case types.CueDisappeared.String():
		return types.CueDisappeared
	default:
		return 0
	}
}

// ListSessions returns every session, newest first, with its event count.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT s.id, s.started_at, s.ended_at, s.language, s.regions, s.engines, s.ticks, COUNT(e.id)
		FROM watch_sessions s
		LEFT JOIN cue_events e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var regions string
		if err := rows.Scan(&sess.ID, &sess.StartedAt, &sess.EndedAt, &sess.Language, &regions, &sess.Engines, &sess.Ticks, &sess.Events); err != nil {
			return nil, err
		}
		if regions != "" {
			sess.Regions = strings.Split(regions, ",")
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS cue_events CASCADE;
		DROP TABLE IF EXISTS watch_sessions CASCADE;
	`)
	return err
}
