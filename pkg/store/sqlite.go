// Package store persists messages, per-user API keys and generation
// records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aichat/pkg/ai"
	"aichat/pkg/chat"
	"aichat/pkg/generation"

	_ "modernc.org/sqlite"
)

// ErrMessageNotFound is returned by GetMessage for unknown ids.
var ErrMessageNotFound = errors.New("message not found")

var (
	_ chat.MessageUpdater = (*Store)(nil)
	_ chat.KeyStore       = (*Store)(nil)
	_ generation.Store    = (*GenerationStore)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	thinking TEXT,
	sources TEXT,
	type TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);

CREATE TABLE IF NOT EXISTS api_keys (
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	api_key TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, provider)
);

CREATE TABLE IF NOT EXISTS generations (
	message_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	cancelled INTEGER NOT NULL DEFAULT 0,
	searching INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

// Message is a stored assistant message.
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chat_id"`
	Content   string      `json:"content"`
	Thinking  *string     `json:"thinking,omitempty"`
	Sources   []ai.Source `json:"sources,omitempty"`
	Type      string      `json:"type,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store is the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	if err := s.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	slog.Debug("store_open", "path", path)
	return s, nil
}

func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateMessage applies a patch to a message, creating it on first write.
// Nil patch fields keep the stored value. An empty Sources slice clears the
// stored sources.
func (s *Store) UpdateMessage(ctx context.Context, chatID, messageID string, patch chat.MessagePatch) error {
	var sources any
	if patch.Sources != nil {
		data, err := json.Marshal(patch.Sources)
		if err != nil {
			return fmt.Errorf("marshal sources: %w", err)
		}
		sources = string(data)
	}
	// Type describes the content it arrives with, so a content write
	// without a type resets an earlier error back to a normal message.
	var msgType any
	if patch.Content != nil || patch.Type != "" {
		msgType = patch.Type
	}

	// NULL parameters keep the stored column; an empty thinking string is
	// not NULL and clears it.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, content, thinking, sources, type, updated_at)
		VALUES (?1, ?2, COALESCE(?3, ''), ?4, ?5, COALESCE(?6, ''), ?7)
		ON CONFLICT(id) DO UPDATE SET
			content = COALESCE(?3, messages.content),
			thinking = COALESCE(?4, messages.thinking),
			sources = COALESCE(?5, messages.sources),
			type = COALESCE(?6, messages.type),
			updated_at = ?7
	`, messageID, chatID, nullable(patch.Content), nullable(patch.Thinking), sources, msgType, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// GetMessage returns a stored message.
func (s *Store) GetMessage(ctx context.Context, messageID string) (Message, error) {
	var (
		msg       Message
		thinking  sql.NullString
		sources   sql.NullString
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, content, thinking, sources, type, updated_at
		FROM messages WHERE id = ?
	`, messageID).Scan(&msg.ID, &msg.ChatID, &msg.Content, &thinking, &sources, &msg.Type, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}

	if thinking.Valid {
		msg.Thinking = &thinking.String
	}
	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &msg.Sources); err != nil {
			return Message{}, fmt.Errorf("decode sources: %w", err)
		}
	}
	msg.UpdatedAt = time.UnixMilli(updatedAt)
	return msg, nil
}

// SetAPIKey stores a user's key for a provider.
func (s *Store) SetAPIKey(ctx context.Context, userID string, provider ai.ProviderID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("empty api key for provider %s", provider)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (user_id, provider, api_key, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			api_key = excluded.api_key,
			updated_at = excluded.updated_at
	`, userID, string(provider), apiKey, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set api key: %w", err)
	}
	slog.Debug("store_api_key_set", "user_id", userID, "provider", provider)
	return nil
}

// DeleteAPIKey removes a user's key for a provider.
func (s *Store) DeleteAPIKey(ctx context.Context, userID string, provider ai.ProviderID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = ? AND provider = ?`, userID, string(provider)); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// GetAPIKeys returns the keys stored for userID.
func (s *Store) GetAPIKeys(ctx context.Context, userID string) (map[ai.ProviderID]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider, api_key FROM api_keys WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query api keys: %w", err)
	}
	defer rows.Close()

	out := make(map[ai.ProviderID]string)
	for rows.Next() {
		var provider, key string
		if err := rows.Scan(&provider, &key); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out[ai.ProviderID(provider)] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return out, nil
}

// Generations returns the generation record store backed by this database.
func (s *Store) Generations() *GenerationStore {
	return &GenerationStore{db: s.db}
}

// GenerationStore implements generation.Store on the generations table.
type GenerationStore struct {
	db *sql.DB
}

func (g *GenerationStore) Create(ctx context.Context, gen generation.Generation) error {
	res, err := g.db.ExecContext(ctx, `
		INSERT INTO generations (message_id, user_id, cancelled, searching, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`, gen.MessageID, gen.UserID, gen.Cancelled, gen.Searching, gen.Error, gen.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	if n == 0 {
		return generation.ErrGenerationExists
	}
	return nil
}

func (g *GenerationStore) Get(ctx context.Context, messageID string) (generation.Generation, error) {
	var (
		gen       generation.Generation
		createdAt int64
	)
	err := g.db.QueryRowContext(ctx, `
		SELECT message_id, user_id, cancelled, searching, error, created_at
		FROM generations WHERE message_id = ?
	`, messageID).Scan(&gen.MessageID, &gen.UserID, &gen.Cancelled, &gen.Searching, &gen.Error, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generation.Generation{}, generation.ErrNotFound
	}
	if err != nil {
		return generation.Generation{}, fmt.Errorf("get generation: %w", err)
	}
	gen.CreatedAt = time.UnixMilli(createdAt)
	return gen, nil
}

func (g *GenerationStore) SetCancelled(ctx context.Context, messageID string) error {
	return g.set(ctx, messageID, "cancelled", true)
}

func (g *GenerationStore) SetSearching(ctx context.Context, messageID string, searching bool) error {
	return g.set(ctx, messageID, "searching", searching)
}

func (g *GenerationStore) SetError(ctx context.Context, messageID, errName string) error {
	return g.set(ctx, messageID, "error", errName)
}

// set updates one column. column is never user input.
func (g *GenerationStore) set(ctx context.Context, messageID, column string, value any) error {
	query := fmt.Sprintf(`UPDATE generations SET %s = ? WHERE message_id = ?`, column)
	if _, err := g.db.ExecContext(ctx, query, value, messageID); err != nil {
		return fmt.Errorf("update generation %s: %w", column, err)
	}
	return nil
}

func (g *GenerationStore) Delete(ctx context.Context, messageID string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM generations WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("delete generation: %w", err)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
