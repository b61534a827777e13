package notify

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a notification id does not exist.
var ErrNotFound = errors.New("notification not found")

// Store handles SQLite persistence for notifications.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens or creates a SQLite database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create notification directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open notification database: %w", err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			kind TEXT DEFAULT '',
			source TEXT DEFAULT 'hook',
			session_id TEXT DEFAULT '',
			project TEXT DEFAULT '',
			tool_name TEXT DEFAULT '',
			title TEXT DEFAULT '',
			message TEXT DEFAULT '',
			created_at INTEGER NOT NULL,
			read INTEGER DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);
		CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(read);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Add inserts a notification.
func (s *Store) Add(n Notification) error {
	_, err := s.db.Exec(`
		INSERT INTO notifications (id, event, kind, source, session_id, project, tool_name, title, message, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Event, n.Kind, n.Source, n.SessionID, n.Project, n.ToolName, n.Title, n.Message, n.CreatedAt.UnixMilli(), boolToInt(n.Read))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

const selectColumns = `id, event, kind, source, session_id, project, tool_name, title, message, created_at, read`

// List returns notifications newest first.
func (s *Store) List(filter Filter) ([]Notification, error) {
	var (
		where []string
		args  []any
	)
	if filter.UnreadOnly {
		where = append(where, "read = 0")
	}
	if filter.Event != "" {
		where = append(where, "event = ?")
		args = append(args, filter.Event)
	}

	query := "SELECT " + selectColumns + " FROM notifications"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// Get returns one notification.
func (s *Store) Get(id string) (Notification, error) {
	row := s.db.QueryRow("SELECT "+selectColumns+" FROM notifications WHERE id = ?", id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	return n, err
}

// MarkRead marks one notification as read.
func (s *Store) MarkRead(id string) error {
	result, err := s.db.Exec(`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return requireAffected(result)
}

// MarkAllRead marks every notification as read and returns how many changed.
func (s *Store) MarkAllRead() (int, error) {
	result, err := s.db.Exec(`UPDATE notifications SET read = 1 WHERE read = 0`)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// Delete removes one notification.
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return requireAffected(result)
}

// Stats counts notifications by read state and event.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{ByEvent: map[string]int{}}
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0) FROM notifications`).
		Scan(&stats.Total, &stats.Unread)
	if err != nil {
		return Stats{}, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.db.Query(`SELECT event, COUNT(*) FROM notifications GROUP BY event`)
	if err != nil {
		return Stats{}, fmt.Errorf("count by event: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			event string
			count int
		)
		if err := rows.Scan(&event, &count); err != nil {
			return Stats{}, err
		}
		stats.ByEvent[event] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (Notification, error) {
	var (
		n         Notification
		createdAt int64
		readInt   int
	)
	if err := row.Scan(&n.ID, &n.Event, &n.Kind, &n.Source, &n.SessionID, &n.Project, &n.ToolName, &n.Title, &n.Message, &createdAt, &readInt); err != nil {
		return Notification{}, err
	}
	n.CreatedAt = time.UnixMilli(createdAt)
	n.Read = readInt != 0
	return n, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
