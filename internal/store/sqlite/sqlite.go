package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-client/internal/store"
)

// SQLiteStore implements store.Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	project_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS room_members (
	room_id      TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	role         TEXT NOT NULL DEFAULT '',
	joined_at    INTEGER NOT NULL DEFAULT 0,
	last_seen_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, user_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER NOT NULL,
	room_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	user_name  TEXT NOT NULL,
	content    TEXT NOT NULL,
	file_id    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (room_id, id)
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);
`

// New creates a new SQLite-backed cache at dbPath.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertRooms replaces the cached room list with the given snapshot.
func (s *SQLiteStore) UpsertRooms(ctx context.Context, rooms []store.Room) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms`); err != nil {
		return fmt.Errorf("clear rooms: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM room_members`); err != nil {
		return fmt.Errorf("clear room members: %w", err)
	}

	for _, r := range rooms {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (id, name, kind, project_id) VALUES (?, ?, ?, ?)`,
			r.ID, r.Name, string(r.Kind), r.ProjectID,
		); err != nil {
			return fmt.Errorf("insert room %s: %w", r.ID, err)
		}
		for _, m := range r.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO room_members (room_id, user_id, name, role, joined_at, last_seen_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				r.ID, m.UserID, m.Name, m.Role, m.JoinedAt.Unix(), m.LastSeenAt.Unix(),
			); err != nil {
				return fmt.Errorf("insert member %s/%s: %w", r.ID, m.UserID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rooms: %w", err)
	}
	return nil
}

// Rooms returns all cached rooms with their members.
func (s *SQLiteStore) Rooms(ctx context.Context) ([]store.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind, project_id FROM rooms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []store.Room
	for rows.Next() {
		var r store.Room
		var kind string
		if err := rows.Scan(&r.ID, &r.Name, &kind, &r.ProjectID); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.Kind = store.RoomKind(kind)
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	for i := range rooms {
		members, err := s.roomMembers(ctx, rooms[i].ID)
		if err != nil {
			return nil, err
		}
		rooms[i].Members = members
	}
	return rooms, nil
}

func (s *SQLiteStore) roomMembers(ctx context.Context, roomID string) ([]store.RoomMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, role, joined_at, last_seen_at FROM room_members WHERE room_id = ? ORDER BY user_id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []store.RoomMember
	for rows.Next() {
		var m store.RoomMember
		var joined, seen int64
		if err := rows.Scan(&m.UserID, &m.Name, &m.Role, &joined, &seen); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.JoinedAt = time.Unix(joined, 0)
		m.LastSeenAt = time.Unix(seen, 0)
		members = append(members, m)
	}
	return members, rows.Err()
}

// AppendMessages writes messages through to the cache, overwriting duplicates.
func (s *SQLiteStore) AppendMessages(ctx context.Context, msgs []store.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO messages (id, room_id, user_id, user_name, content, file_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.RoomID, m.UserID, m.UserName, m.Content, m.FileID, m.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert message %d: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit most recent messages for a room,
// ascending for display.
func (s *SQLiteStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, user_name, content, file_id, created_at
		 FROM (
			SELECT * FROM messages WHERE room_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var created int64
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.UserName, &m.Content, &m.FileID, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
