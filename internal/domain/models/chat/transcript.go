package chat

import (
	"time"
)

// Transcript is the ordered sequence of turns for one (user, chat) pair.
// It is exclusively owned by that pair and mutated only by whole-transcript
// replacement in the store.
type Transcript []Turn

// Empty reports whether the transcript has no turns yet.
func (t Transcript) Empty() bool {
	return len(t) == 0
}

// FirstUserTurn returns the first user-authored turn, if any.
func (t Transcript) FirstUserTurn() (Turn, bool) {
	for _, turn := range t {
		if turn.IsUser() {
			return turn, true
		}
	}
	return Turn{}, false
}

// Ref identifies one stored chat together with its last modification time,
// as enumerated by the transcript store.
type Ref struct {
	ChatID       string
	LastModified time.Time
}

// Summary is a derived, non-persisted listing entry for one chat.
type Summary struct {
	ChatID       string    `json:"id"`
	Title        string    `json:"title"`
	LastModified time.Time `json:"last_modified"`
}
