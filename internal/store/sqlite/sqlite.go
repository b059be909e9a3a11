package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirelobby-server/internal/store"
)

const defaultListLimit = 100

// Schema creates the notices table. It is applied by New and is safe to rerun.
const Schema = `
CREATE TABLE IF NOT EXISTS notices (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	lobby_id   TEXT NOT NULL DEFAULT '',
	client_id  TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notices_lobby ON notices (lobby_id, id);
`

// SQLiteJournal implements store.Journal for SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

var _ store.Journal = (*SQLiteJournal)(nil)

// New opens the journal at dbPath and applies the schema.
func New(dbPath string) (*SQLiteJournal, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup opens the journal and runs setup instead of the default schema.
// Useful for tests that need a custom table layout.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

// Append persists a notice and fills in its ID.
func (s *SQLiteJournal) Append(ctx context.Context, rec *store.NoticeRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO notices (kind, lobby_id, client_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.Kind, rec.LobbyID, rec.ClientID, rec.Detail, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert notice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// List returns notices matching filter, newest first.
func (s *SQLiteJournal) List(ctx context.Context, filter store.NoticeFilter) ([]*store.NoticeRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.LobbyID != "" {
		where = append(where, "lobby_id = ?")
		args = append(args, filter.LobbyID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, kind, lobby_id, client_id, detail, created_at FROM notices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notices: %w", err)
	}
	defer rows.Close()

	var records []*store.NoticeRecord
	for rows.Next() {
		var rec store.NoticeRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.LobbyID, &rec.ClientID, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notices: %w", err)
	}

	return records, nil
}
