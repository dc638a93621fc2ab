package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"palaver/internal/domain"
	"palaver/internal/domain/models/chat"
	"palaver/internal/domain/repositories"
)

// Store implements TranscriptStore on the local filesystem: one JSON file per
// (user, chat) pair, laid out as <dir>/<sanitizedUser>/<sanitizedChat>.json.
//
// Writes are atomic (temp file + rename), so readers always observe either
// the previous or the new transcript, never a partial one. A per-(user, chat)
// mutex serializes load-append-save sequences, closing the lost-append race
// between concurrent requests against the same chat.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ repositories.TranscriptStore = (*Store)(nil)

// New creates a file-backed transcript store rooted at dir.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex guarding one (user, chat) pair, creating it on
// first use. The map itself is guarded by s.mu.
func (s *Store) lockFor(userID, chatID string) *sync.Mutex {
	key := repositories.SanitizeID(userID) + "/" + repositories.SanitizeID(chatID)

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) userDir(userID string) string {
	return filepath.Join(s.dir, repositories.SanitizeID(userID))
}

func (s *Store) path(userID, chatID string) string {
	return filepath.Join(s.userDir(userID), repositories.SanitizeID(chatID)+".json")
}

// Load returns the persisted transcript, or an empty one if the chat has no
// record yet. A corrupt or unreadable record is treated as empty: it is
// logged and never fails the request.
func (s *Store) Load(ctx context.Context, userID, chatID string) (chat.Transcript, error) {
	return s.read(s.path(userID, chatID)), nil
}

func (s *Store) read(path string) chat.Transcript {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("transcript unreadable, treating as empty",
				"path", path,
				"error", err,
			)
		}
		return chat.Transcript{}
	}

	var transcript chat.Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		s.logger.Warn("transcript corrupt, treating as empty",
			"path", path,
			"error", fmt.Errorf("%w: %v", domain.ErrStorageCorrupt, err),
		)
		return chat.Transcript{}
	}

	return transcript
}

// Append atomically adds one turn: load, add, full atomic save, all under the
// pair's lock.
func (s *Store) Append(ctx context.Context, userID, chatID string, turn chat.Turn) error {
	l := s.lockFor(userID, chatID)
	l.Lock()
	defer l.Unlock()

	path := s.path(userID, chatID)
	transcript := append(s.read(path), turn)
	return s.write(userID, path, transcript)
}

// Save replaces the entire persisted transcript.
func (s *Store) Save(ctx context.Context, userID, chatID string, transcript chat.Transcript) error {
	l := s.lockFor(userID, chatID)
	l.Lock()
	defer l.Unlock()

	return s.write(userID, s.path(userID, chatID), transcript)
}

// write persists the transcript via temp-file-then-rename so a failed write
// leaves the previous record intact.
func (s *Store) write(userID, path string, transcript chat.Transcript) error {
	if transcript == nil {
		transcript = chat.Transcript{}
	}

	data, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	dir := s.userDir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".transcript-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	return nil
}

// ListChats enumerates the user's chats, most recently modified first.
func (s *Store) ListChats(ctx context.Context, userID string) ([]chat.Ref, error) {
	entries, err := os.ReadDir(s.userDir(userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []chat.Ref{}, nil
		}
		return nil, fmt.Errorf("list chats: %w", err)
	}

	refs := make([]chat.Ref, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		refs = append(refs, chat.Ref{
			ChatID:       strings.TrimSuffix(name, ".json"),
			LastModified: info.ModTime(),
		})
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].LastModified.Equal(refs[j].LastModified) {
			return refs[i].ChatID > refs[j].ChatID
		}
		return refs[i].LastModified.After(refs[j].LastModified)
	})

	return refs, nil
}

// DeleteAll removes every transcript owned by the user. The sweep is
// best-effort: it keeps going after a failed removal and reports the first
// error alongside the count of confirmed deletions.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	dir := s.userDir(userID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("delete chats: %w", err)
	}

	count := 0
	var firstErr error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
			}
			continue
		}
		count++
	}

	// Drop the now-empty user directory; leftovers are harmless.
	os.Remove(dir)

	s.logger.Info("cleared chats", "user_id", userID, "count", count)
	return count, firstErr
}
