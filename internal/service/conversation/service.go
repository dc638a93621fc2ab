package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/lithammer/shortuuid/v4"

	"palaver/internal/attachment"
	"palaver/internal/domain"
	"palaver/internal/domain/models/chat"
	"palaver/internal/domain/repositories"
	"palaver/internal/prompts"
)

// ModelGateway is the stateless text and image generation backend.
type ModelGateway interface {
	Generate(ctx context.Context, blocks []chat.ContentBlock) (string, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// AttachmentStorer persists image bytes and hands back a reference.
type AttachmentStorer interface {
	Store(data []byte, originalFilename string) (attachment.Ref, error)
}

// TextExtractor is the optional OCR collaborator.
type TextExtractor interface {
	Available() bool
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// AskRequest posts a text instruction to a chat.
type AskRequest struct {
	UserID      string
	ChatID      string
	Instruction string
}

// AskImageRequest posts an uploaded image (with optional instruction) to a
// chat.
type AskImageRequest struct {
	UserID      string
	ChatID      string
	Instruction string
	Image       []byte
	Filename    string
}

// GenerateImageRequest asks the image backend to create an image inside a
// chat.
type GenerateImageRequest struct {
	UserID string
	ChatID string
	Prompt string
}

// Service orchestrates the conversational surface: transcript persistence,
// context assembly, gateway calls, and the session index.
type Service struct {
	store       repositories.TranscriptStore
	assembler   *Assembler
	gateway     ModelGateway
	attachments AttachmentStorer
	ocr         TextExtractor
	pack        *prompts.Pack
	logger      *slog.Logger
}

// NewService creates the conversation service. ocr may be nil when the
// feature is absent.
func NewService(
	store repositories.TranscriptStore,
	assembler *Assembler,
	gateway ModelGateway,
	attachments AttachmentStorer,
	ocr TextExtractor,
	pack *prompts.Pack,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:       store,
		assembler:   assembler,
		gateway:     gateway,
		attachments: attachments,
		ocr:         ocr,
		pack:        pack,
		logger:      logger,
	}
}

// CreateChat generates a fresh chat, persists an empty transcript for it,
// and reports whether the user already had other chats.
func (s *Service) CreateChat(ctx context.Context, userID string) (string, bool, error) {
	chatID := fmt.Sprintf("chat_%d_%s", time.Now().Unix(), strings.ToLower(shortuuid.New()[:6]))

	if err := s.store.Save(ctx, userID, chatID, chat.Transcript{}); err != nil {
		return "", false, err
	}

	hasPrevious := false
	refs, err := s.store.ListChats(ctx, userID)
	if err != nil {
		return "", false, err
	}
	for _, ref := range refs {
		if ref.ChatID != chatID {
			hasPrevious = true
			break
		}
	}

	s.logger.Info("chat created", "chat_id", chatID, "user_id", userID)
	return chatID, hasPrevious, nil
}

// Ask appends the user's instruction, submits the assembled context to the
// model, appends the reply as a bot turn, and returns the reply text.
//
// Content-filter and transport failures are recoverable: a fixed fallback
// reply is returned and still persisted, keeping the transcript's
// user/bot cadence intact.
func (s *Service) Ask(ctx context.Context, req *AskRequest) (string, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.Instruction, validation.Required),
	); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	userTurn := chat.NewUserTurn(req.Instruction, "")
	return s.exchange(ctx, req.UserID, req.ChatID, userTurn)
}

// AskWithImage stores the uploaded image, optionally folds OCR text into the
// instruction, and runs the same exchange with the attachment embedded in
// the model context. It returns the reply and the stored attachment URL.
func (s *Service) AskWithImage(ctx context.Context, req *AskImageRequest) (string, string, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.Image, validation.Required),
	); err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	ref, err := s.attachments.Store(req.Image, req.Filename)
	if err != nil {
		return "", "", err
	}

	text := req.Instruction
	if s.ocr != nil && s.ocr.Available() {
		extracted, err := s.ocr.ExtractText(ctx, req.Image)
		switch {
		case err != nil:
			s.logger.Warn("OCR failed, continuing without extracted text", "error", err)
		case extracted != "":
			if text != "" {
				text += "\n\n"
			}
			text += "Extracted text from image:\n" + extracted
		}
	}

	userTurn := chat.NewUserTurn(text, ref.URL)
	reply, err := s.exchange(ctx, req.UserID, req.ChatID, userTurn)
	if err != nil {
		return "", "", err
	}

	return reply, ref.URL, nil
}

// exchange is the shared ask path: persist the user turn, assemble context
// from the prior transcript plus that turn, call the gateway, persist the
// reply.
func (s *Service) exchange(ctx context.Context, userID, chatID string, userTurn chat.Turn) (string, error) {
	prior, err := s.store.Load(ctx, userID, chatID)
	if err != nil {
		return "", err
	}

	if err := s.store.Append(ctx, userID, chatID, userTurn); err != nil {
		return "", err
	}

	blocks := s.assembler.Assemble(prior, userTurn)

	reply, err := s.gateway.Generate(ctx, blocks)
	switch {
	case errors.Is(err, domain.ErrContentFiltered):
		s.logger.Warn("model filtered request", "chat_id", chatID)
		reply = s.pack.FilteredReply
	case errors.Is(err, domain.ErrTransport):
		s.logger.Warn("model unreachable", "chat_id", chatID, "error", err)
		reply = s.pack.RetryReply
	case err != nil:
		return "", err
	}

	if err := s.store.Append(ctx, userID, chatID, chat.NewBotTurn(reply)); err != nil {
		return "", err
	}

	return reply, nil
}

// GenerateImage creates an image from the prompt, stores it as an
// attachment, and persists the exchange as a user turn plus a bot turn
// carrying the generated image URL.
func (s *Service) GenerateImage(ctx context.Context, req *GenerateImageRequest) (string, []string, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.Prompt, validation.Required),
	); err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.store.Append(ctx, req.UserID, req.ChatID, chat.NewUserTurn(req.Prompt, "")); err != nil {
		return "", nil, err
	}

	data, err := s.gateway.GenerateImage(ctx, req.Prompt)
	if err != nil {
		var reply string
		switch {
		case errors.Is(err, domain.ErrContentFiltered):
			reply = s.pack.FilteredReply
		case errors.Is(err, domain.ErrTransport):
			reply = s.pack.RetryReply
		default:
			return "", nil, err
		}
		if err := s.store.Append(ctx, req.UserID, req.ChatID, chat.NewBotTurn(reply)); err != nil {
			return "", nil, err
		}
		return reply, nil, nil
	}

	ref, err := s.attachments.Store(data, "generated.png")
	if err != nil {
		return "", nil, err
	}

	urls := []string{ref.URL}
	botTurn := chat.NewBotImageTurn(s.pack.ImageReply, urls)
	if err := s.store.Append(ctx, req.UserID, req.ChatID, botTurn); err != nil {
		return "", nil, err
	}

	s.logger.Info("image generated", "chat_id", req.ChatID, "user_id", req.UserID)
	return s.pack.ImageReply, urls, nil
}

// ListSummaries returns the user's chats with derived titles, most recently
// modified first.
func (s *Service) ListSummaries(ctx context.Context, userID string) ([]chat.Summary, error) {
	refs, err := s.store.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]chat.Summary, 0, len(refs))
	for _, ref := range refs {
		transcript, err := s.store.Load(ctx, userID, ref.ChatID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, chat.Summary{
			ChatID:       ref.ChatID,
			Title:        deriveTitle(transcript),
			LastModified: ref.LastModified,
		})
	}

	return summaries, nil
}

// GetTranscript returns the full ordered transcript for one chat.
func (s *Service) GetTranscript(ctx context.Context, userID, chatID string) (chat.Transcript, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", domain.ErrValidation)
	}
	return s.store.Load(ctx, userID, chatID)
}

// DeleteAll removes every chat owned by the user and returns the count.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int, error) {
	return s.store.DeleteAll(ctx, userID)
}
