package repositories

import (
	"context"

	"palaver/internal/domain/models/chat"
)

// TranscriptStore is durable, append-oriented storage of ordered turns keyed
// by (user, chat). Implementations must be safe for concurrent use and must
// serialize load-mutate-save sequences per (user, chat) pair so that
// concurrent appends against the same chat are never lost.
//
// Load fails closed: a corrupt persisted record yields an empty transcript
// and a warning, never an error. Save replaces the whole persisted transcript
// atomically; on failure the prior state is left intact.
type TranscriptStore interface {
	// Load returns the persisted transcript, or an empty one if none exists.
	Load(ctx context.Context, userID, chatID string) (chat.Transcript, error)

	// Append atomically adds exactly one turn to the persisted transcript.
	Append(ctx context.Context, userID, chatID string, turn chat.Turn) error

	// Save replaces the entire persisted transcript.
	Save(ctx context.Context, userID, chatID string, transcript chat.Transcript) error

	// ListChats enumerates all chats for the user, most recently modified
	// first.
	ListChats(ctx context.Context, userID string) ([]chat.Ref, error)

	// DeleteAll removes every transcript owned by the user and returns the
	// number removed. Per-chat deletion is all-or-nothing; the sweep is
	// best-effort across chats, with any error surfaced after completion.
	DeleteAll(ctx context.Context, userID string) (int, error)
}
