package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

// Fixed width so that lexical order in SQL equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SessionsRepo struct {
	db *sql.DB
}

func NewSessionsRepo(db *sql.DB) *SessionsRepo {
	return &SessionsRepo{db: db}
}

// Save overwrites the stored record of the session with its full state.
func (r *SessionsRepo) Save(ctx context.Context, s *core.Session) error {
	params, err := json.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	files := s.ContextFiles
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to marshal context files: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	// 1. Upsert session row
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at, params, message_count, context_files, context_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			params = excluded.params,
			message_count = excluded.message_count,
			context_files = excluded.context_files,
			context_tokens = excluded.context_tokens`,
		s.ID, formatTime(s.CreatedAt), formatTime(s.UpdatedAt), string(params),
		s.MessageCount, string(filesJSON), s.ContextTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	// 2. Replace children
	for _, table := range []string{"messages", "memory_items", "facts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, s.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, m := range s.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			s.ID, i, m.Role, m.Content, formatTime(m.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	for i, item := range s.MemoryItems {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memory_items (session_id, seq, content, keyword, created_at) VALUES (?, ?, ?, ?, ?)`,
			s.ID, i, item.Content, item.Keyword, formatTime(item.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert memory item: %w", err)
		}
	}

	for k, v := range s.Facts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO facts (session_id, key, value) VALUES (?, ?, ?)`,
			s.ID, k, v,
		)
		if err != nil {
			return fmt.Errorf("failed to insert fact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	log.FromCtx(ctx).Debug().Str("session", s.ID).Int("messages", len(s.Messages)).Msg("session saved")
	return nil
}

func (r *SessionsRepo) Load(ctx context.Context, id string) (*core.Session, error) {
	var (
		s                     core.Session
		createdAt, updatedAt  string
		paramsJSON, filesJSON string
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, params, message_count, context_files, context_tokens FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &createdAt, &updatedAt, &paramsJSON, &s.MessageCount, &filesJSON, &s.ContextTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &s.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	s.ContextFiles = []string{}
	if err := json.Unmarshal([]byte(filesJSON), &s.ContextFiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context files: %w", err)
	}

	if s.Messages, err = r.loadMessages(ctx, id); err != nil {
		return nil, err
	}
	if s.MemoryItems, err = r.loadMemoryItems(ctx, id); err != nil {
		return nil, err
	}
	if s.Facts, err = r.loadFacts(ctx, id); err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *SessionsRepo) loadMessages(ctx context.Context, id string) ([]core.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []core.Message{}
	for rows.Next() {
		var m core.Message
		var ts string
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if m.CreatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *SessionsRepo) loadMemoryItems(ctx context.Context, id string) ([]core.MemoryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT content, keyword, created_at FROM memory_items WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory items: %w", err)
	}
	defer rows.Close()

	items := []core.MemoryItem{}
	for rows.Next() {
		var item core.MemoryItem
		var ts string
		if err := rows.Scan(&item.Content, &item.Keyword, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan memory item: %w", err)
		}
		if item.CreatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *SessionsRepo) loadFacts(ctx context.Context, id string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM facts WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	facts := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts[k] = v
	}
	return facts, rows.Err()
}

// List returns summaries ordered by last update, newest first.
func (r *SessionsRepo) List(ctx context.Context) ([]core.SessionSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, updated_at, message_count FROM sessions ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	out := []core.SessionSummary{}
	for rows.Next() {
		var s core.SessionSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &createdAt, &updatedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionsRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "memory_items", "facts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}

	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
