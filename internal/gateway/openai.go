package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"palaver/internal/domain"
	"palaver/internal/domain/models/chat"
)

// Config holds model-provider settings. Any OpenAI-compatible endpoint works;
// the provider only selects a default base URL.
type Config struct {
	Provider    string // openai, openrouter, gemini, ollama, or any compatible
	Model       string
	ImageModel  string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     int // request timeout in seconds, default 120
}

// Client is the stateless gateway to the text and image generation backends.
// It performs no persistence and no retries; callers own both.
type Client struct {
	client      *openai.Client
	model       string
	imageModel  string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      *slog.Logger
}

// New creates a model gateway for the configured provider.
func New(cfg Config, logger *slog.Logger) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch cfg.Provider {
		case "openrouter":
			baseURL = "https://openrouter.ai/api/v1"
		case "gemini":
			baseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
		case "ollama":
			baseURL = "http://localhost:11434/v1"
		}
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		imageModel:  cfg.ImageModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     time.Duration(timeout) * time.Second,
		logger:      logger,
	}
}

// Generate submits the ordered content blocks and returns the model's text.
// Failures are classified into domain.ErrContentFiltered, domain.ErrTransport
// or a plain error for anything unrecognized.
func (c *Client) Generate(ctx context.Context, blocks []chat.ContentBlock) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    convertBlocks(blocks),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("model request failed", "error", err)
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("%w: finish_reason=content_filter", domain.ErrContentFiltered)
	}

	c.logger.Debug("model response received",
		"content_length", len(choice.Message.Content),
		"total_tokens", resp.Usage.TotalTokens,
	)

	return choice.Message.Content, nil
}

// GenerateImage asks the image backend for one image and returns its bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	resp, err := c.client.CreateImage(ctx, req)
	if err != nil {
		c.logger.Error("image request failed", "error", err)
		return nil, classify(err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty response from image model")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}

	return data, nil
}

// convertBlocks maps role-tagged content blocks to the provider's message
// shape. The "model" role becomes "assistant"; blocks with inline images use
// multi-part content with base64 data URLs.
func convertBlocks(blocks []chat.ContentBlock) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(blocks))
	for _, block := range blocks {
		role := openai.ChatMessageRoleUser
		if block.Role == chat.BlockRoleModel {
			role = openai.ChatMessageRoleAssistant
		}

		if !hasImagePart(block) {
			var text strings.Builder
			for _, part := range block.Parts {
				text.WriteString(part.Text)
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    role,
				Content: text.String(),
			})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(block.Parts))
		for _, part := range block.Parts {
			if part.IsImage() {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", part.MIMEType, part.ImageB64),
					},
				})
				continue
			}
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:         role,
			MultiContent: parts,
		})
	}
	return messages
}

func hasImagePart(block chat.ContentBlock) bool {
	for _, part := range block.Parts {
		if part.IsImage() {
			return true
		}
	}
	return false
}

// classify maps provider errors onto the domain taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusBadRequest && isContentPolicy(apiErr) {
			return fmt.Errorf("%w: %v", domain.ErrContentFiltered, err)
		}
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %v", domain.ErrTransport, err)
		}
		return fmt.Errorf("model request rejected: %w", err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	// Timeouts and raw network failures land here.
	return fmt.Errorf("%w: %v", domain.ErrTransport, err)
}

func isContentPolicy(apiErr *openai.APIError) bool {
	code := fmt.Sprint(apiErr.Code)
	return strings.Contains(code, "content_filter") ||
		strings.Contains(code, "content_policy") ||
		strings.Contains(apiErr.Type, "content")
}
