package conversation

import (
	"strings"

	"palaver/internal/domain/models/chat"
)

// defaultTitle is shown for chats with no turns yet.
const defaultTitle = "New Chat"

// titleRuneLimit caps a derived title's length before ellipsizing.
const titleRuneLimit = 30

// deriveTitle computes a display title: the first line of the first user
// turn's text, falling back to the first bot turn when no user turn exists
// yet, truncated to 30 characters with an ellipsis.
func deriveTitle(transcript chat.Transcript) string {
	if transcript.Empty() {
		return defaultTitle
	}

	turn, ok := transcript.FirstUserTurn()
	if !ok {
		turn = transcript[0]
	}

	line, _, _ := strings.Cut(turn.Text, "\n")
	runes := []rune(line)
	if len(runes) > titleRuneLimit {
		return string(runes[:titleRuneLimit]) + "..."
	}
	if line == "" {
		return defaultTitle
	}
	return line
}
