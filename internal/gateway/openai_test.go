package gateway

import (
	"errors"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"palaver/internal/domain"
	"palaver/internal/domain/models/chat"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "content policy rejection",
			err:  &openai.APIError{HTTPStatusCode: 400, Code: "content_filter"},
			want: domain.ErrContentFiltered,
		},
		{
			name: "server error",
			err:  &openai.APIError{HTTPStatusCode: 503},
			want: domain.ErrTransport,
		},
		{
			name: "rate limited",
			err:  &openai.APIError{HTTPStatusCode: 429},
			want: domain.ErrTransport,
		},
		{
			name: "network failure",
			err:  errors.New("dial tcp: connection refused"),
			want: domain.ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyUnrecognizedAPIErrorIsNotTransport(t *testing.T) {
	err := classify(&openai.APIError{HTTPStatusCode: 401})
	if errors.Is(err, domain.ErrTransport) || errors.Is(err, domain.ErrContentFiltered) {
		t.Errorf("401 should not map to a recoverable category, got %v", err)
	}
}

func TestConvertBlocksRolesAndParts(t *testing.T) {
	blocks := []chat.ContentBlock{
		chat.TextBlock(chat.BlockRoleUser, "hello"),
		chat.TextBlock(chat.BlockRoleModel, "hi"),
		{
			Role: chat.BlockRoleUser,
			Parts: []chat.Part{
				{Text: "look at this"},
				{ImageB64: "aW1hZ2U=", MIMEType: "image/png"},
			},
		},
	}

	messages := convertBlocks(blocks)
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}

	if messages[0].Role != openai.ChatMessageRoleUser || messages[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != openai.ChatMessageRoleAssistant {
		t.Errorf("model role must map to assistant, got %s", messages[1].Role)
	}

	multi := messages[2]
	if len(multi.MultiContent) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(multi.MultiContent))
	}
	if multi.MultiContent[0].Type != openai.ChatMessagePartTypeText {
		t.Errorf("expected text part first, got %s", multi.MultiContent[0].Type)
	}
	img := multi.MultiContent[1]
	if img.Type != openai.ChatMessagePartTypeImageURL {
		t.Fatalf("expected image part, got %s", img.Type)
	}
	if !strings.HasPrefix(img.ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("unexpected image data URL: %s", img.ImageURL.URL)
	}
}
