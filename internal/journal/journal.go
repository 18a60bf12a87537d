package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/spamguard/internal/guard"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrClosed is returned when the journal is used after Close.
var ErrClosed = errors.New("journal is closed")

const schema = `
	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		guild_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL,
		content TEXT NOT NULL,
		message_count INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		error TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS incidents_created_at ON incidents (created_at);
`

// Entry is a stored incident.
type Entry struct {
	ID string
	guard.Incident
}

// Journal persists enforcement incidents to a SQLite database.
type Journal struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Journal{conn: conn}, nil
}

// Record implements guard.Recorder.
func (j *Journal) Record(ctx context.Context, incident *guard.Incident) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.conn == nil {
		return ErrClosed
	}

	j.conn.SetInterrupt(ctx.Done())
	defer j.conn.SetInterrupt(nil)

	err := sqlitex.Execute(j.conn, `
		INSERT INTO incidents (
			id, guild_id, user_id, channel_id, message_id, action, reason,
			content, message_count, failed, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, &sqlitex.ExecOptions{
		Args: []any{
			uuid.NewString(),
			int64(incident.GuildID),
			int64(incident.UserID),
			int64(incident.ChannelID),
			int64(incident.MessageID),
			incident.Action.String(),
			incident.Reason,
			incident.Content,
			incident.MessageCount,
			incident.Failed,
			incident.Error,
			incident.CreatedAt.UnixMilli(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}

	return nil
}

// Recent returns up to limit incidents, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.conn == nil {
		return nil, ErrClosed
	}

	j.conn.SetInterrupt(ctx.Done())
	defer j.conn.SetInterrupt(nil)

	var entries []*Entry

	err := sqlitex.Execute(j.conn, `
		SELECT id, guild_id, user_id, channel_id, message_id, action, reason,
			content, message_count, failed, error, created_at
		FROM incidents
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, &sqlitex.ExecOptions{
		Args: []any{limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			action, err := guard.ActionString(stmt.ColumnText(5))
			if err != nil {
				return fmt.Errorf("invalid action in row %s: %w", stmt.ColumnText(0), err)
			}

			entries = append(entries, &Entry{
				ID: stmt.ColumnText(0),
				Incident: guard.Incident{
					GuildID:      snowflake.ID(stmt.ColumnInt64(1)),
					UserID:       snowflake.ID(stmt.ColumnInt64(2)),
					ChannelID:    snowflake.ID(stmt.ColumnInt64(3)),
					MessageID:    snowflake.ID(stmt.ColumnInt64(4)),
					Action:       action,
					Reason:       stmt.ColumnText(6),
					Content:      stmt.ColumnText(7),
					MessageCount: stmt.ColumnInt(8),
					Failed:       stmt.ColumnBool(9),
					Error:        stmt.ColumnText(10),
					CreatedAt:    time.UnixMilli(stmt.ColumnInt64(11)).UTC(),
				},
			})

			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}

	return entries, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.conn == nil {
		return nil
	}

	err := j.conn.Close()
	j.conn = nil

	return err
}
