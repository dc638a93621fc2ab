package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"palaver/internal/domain"
	"palaver/internal/domain/models/chat"
	"palaver/internal/domain/repositories"
)

// Store implements TranscriptStore on PostgreSQL. The layout mirrors the
// file store: one row per (user, chat) pair, with the ordered turn sequence
// held in a single JSONB array. Appends are a single upsert that concatenates
// onto the stored array server-side, so concurrent appends against the same
// chat serialize on the row and are never lost.
type Store struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

var _ repositories.TranscriptStore = (*Store)(nil)

// Connect creates a pgx connection pool and verifies the database is
// reachable.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// New creates a Postgres-backed transcript store using the given table.
func New(pool *pgxpool.Pool, table string, logger *slog.Logger) *Store {
	return &Store{
		pool:   pool,
		table:  table,
		logger: logger,
	}
}

// EnsureSchema creates the transcript table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id    text NOT NULL,
			chat_id    text NOT NULL,
			turns      jsonb NOT NULL DEFAULT '[]'::jsonb,
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, chat_id)
		)
	`, s.table)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure transcript schema: %w", err)
	}
	return nil
}

// Load returns the persisted transcript, or an empty one if the chat has no
// row yet. A corrupt stored array is treated as empty and logged.
func (s *Store) Load(ctx context.Context, userID, chatID string) (chat.Transcript, error) {
	query := fmt.Sprintf(`
		SELECT turns FROM %s
		WHERE user_id = $1 AND chat_id = $2
	`, s.table)

	var raw []byte
	err := s.pool.QueryRow(ctx, query,
		repositories.SanitizeID(userID),
		repositories.SanitizeID(chatID),
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.Transcript{}, nil
		}
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	var transcript chat.Transcript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		s.logger.Warn("transcript corrupt, treating as empty",
			"user_id", userID,
			"chat_id", chatID,
			"error", fmt.Errorf("%w: %v", domain.ErrStorageCorrupt, err),
		)
		return chat.Transcript{}, nil
	}

	return transcript, nil
}

// Append adds one turn by concatenating onto the stored JSONB array.
func (s *Store) Append(ctx context.Context, userID, chatID string, turn chat.Turn) error {
	encoded, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, chat_id, turns, updated_at)
		VALUES ($1, $2, jsonb_build_array($3::jsonb), now())
		ON CONFLICT (user_id, chat_id)
		DO UPDATE SET turns = %s.turns || excluded.turns, updated_at = now()
	`, s.table, s.table)

	_, err = s.pool.Exec(ctx, query,
		repositories.SanitizeID(userID),
		repositories.SanitizeID(chatID),
		string(encoded),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	return nil
}

// Save replaces the entire persisted transcript.
func (s *Store) Save(ctx context.Context, userID, chatID string, transcript chat.Transcript) error {
	if transcript == nil {
		transcript = chat.Transcript{}
	}

	encoded, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, chat_id, turns, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (user_id, chat_id)
		DO UPDATE SET turns = excluded.turns, updated_at = now()
	`, s.table)

	_, err = s.pool.Exec(ctx, query,
		repositories.SanitizeID(userID),
		repositories.SanitizeID(chatID),
		string(encoded),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	return nil
}

// ListChats enumerates the user's chats, most recently modified first.
func (s *Store) ListChats(ctx context.Context, userID string) ([]chat.Ref, error) {
	query := fmt.Sprintf(`
		SELECT chat_id, updated_at FROM %s
		WHERE user_id = $1
		ORDER BY updated_at DESC, chat_id DESC
	`, s.table)

	rows, err := s.pool.Query(ctx, query, repositories.SanitizeID(userID))
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	refs := []chat.Ref{}
	for rows.Next() {
		var ref chat.Ref
		if err := rows.Scan(&ref.ChatID, &ref.LastModified); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	return refs, nil
}

// DeleteAll removes every transcript owned by the user.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, s.table)

	result, err := s.pool.Exec(ctx, query, repositories.SanitizeID(userID))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	count := int(result.RowsAffected())
	s.logger.Info("cleared chats", "user_id", userID, "count", count)
	return count, nil
}
