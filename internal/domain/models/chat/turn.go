package chat

import (
	"time"
)

// Turn roles. The persisted field is named "type" for compatibility with the
// existing transcript files.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Turn represents a single message in a transcript.
//
// The JSON shape is the persisted wire format: one object per turn with
// "type", "text", an optional "image_url" (user upload), an optional
// "image_urls" (generated images on bot turns), and "timestamp" as epoch
// seconds. Append order within a transcript is authoritative; the timestamp
// is advisory.
type Turn struct {
	Role      string   `json:"type"`
	Text      string   `json:"text"`
	ImageURL  string   `json:"image_url,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
	Timestamp float64  `json:"timestamp"`
}

// NewUserTurn creates a user turn. attachmentURL may be empty; text may be
// empty only when an attachment is present.
func NewUserTurn(text, attachmentURL string) Turn {
	return Turn{
		Role:      RoleUser,
		Text:      text,
		ImageURL:  attachmentURL,
		Timestamp: epochSeconds(),
	}
}

// NewBotTurn creates an assistant turn carrying only text.
func NewBotTurn(text string) Turn {
	return Turn{
		Role:      RoleBot,
		Text:      text,
		Timestamp: epochSeconds(),
	}
}

// NewBotImageTurn creates an assistant turn carrying generated images.
// Generated images are never re-submitted as model context.
func NewBotImageTurn(text string, imageURLs []string) Turn {
	return Turn{
		Role:      RoleBot,
		Text:      text,
		ImageURLs: imageURLs,
		Timestamp: epochSeconds(),
	}
}

// IsUser reports whether the turn was authored by the user.
func (t Turn) IsUser() bool {
	return t.Role == RoleUser
}

func epochSeconds() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}
