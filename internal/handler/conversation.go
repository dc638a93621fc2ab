package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"palaver/internal/attachment"
	"palaver/internal/domain/models/chat"
	"palaver/internal/httputil"
	"palaver/internal/service/conversation"
)

// ConversationService is the service surface the handler depends on.
type ConversationService interface {
	CreateChat(ctx context.Context, userID string) (string, bool, error)
	Ask(ctx context.Context, req *conversation.AskRequest) (string, error)
	AskWithImage(ctx context.Context, req *conversation.AskImageRequest) (string, string, error)
	GenerateImage(ctx context.Context, req *conversation.GenerateImageRequest) (string, []string, error)
	ListSummaries(ctx context.Context, userID string) ([]chat.Summary, error)
	GetTranscript(ctx context.Context, userID, chatID string) (chat.Transcript, error)
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// ConversationHandler exposes the chat surface over HTTP.
// Handlers only communicate with services, never repositories.
type ConversationHandler struct {
	service ConversationService
	logger  *slog.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(service ConversationService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{service: service, logger: logger}
}

type createChatResponse struct {
	ChatID           string `json:"chat_id"`
	HasPreviousChats bool   `json:"has_previous_chats"`
}

// CreateChat starts a new chat for the caller.
// POST /api/chats
func (h *ConversationHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	chatID, hasPrevious, err := h.service.CreateChat(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, createChatResponse{
		ChatID:           chatID,
		HasPreviousChats: hasPrevious,
	})
}

type askRequest struct {
	Message string `json:"message"`
}

type askResponse struct {
	Response string `json:"response"`
}

// Ask posts a text message to a chat and returns the model's reply.
// POST /api/chats/{id}/ask
func (h *ConversationHandler) Ask(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	var req askRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, err := h.service.Ask(r.Context(), &conversation.AskRequest{
		UserID:      httputil.GetUserID(r),
		ChatID:      chatID,
		Instruction: req.Message,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, askResponse{Response: reply})
}

type askImageResponse struct {
	Response string `json:"response"`
	ImageURL string `json:"image_url"`
}

// PostImage posts an uploaded image (with an optional message) to a chat.
// POST /api/chats/{id}/image, multipart form with "image" and "message".
func (h *ConversationHandler) PostImage(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	// Form parsing overhead on top of the image cap.
	r.Body = http.MaxBytesReader(w, r.Body, attachment.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(attachment.MaxUploadBytes); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "could not read image file")
		return
	}

	reply, imageURL, err := h.service.AskWithImage(r.Context(), &conversation.AskImageRequest{
		UserID:      httputil.GetUserID(r),
		ChatID:      chatID,
		Instruction: r.FormValue("message"),
		Image:       data,
		Filename:    header.Filename,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, askImageResponse{Response: reply, ImageURL: imageURL})
}

type generateImageRequest struct {
	Prompt string `json:"prompt"`
}

type generateImageResponse struct {
	Response  string   `json:"response"`
	ImageURLs []string `json:"image_urls"`
}

// GenerateImage asks the model to create an image inside a chat.
// POST /api/chats/{id}/generate-image
func (h *ConversationHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	var req generateImageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, urls, err := h.service.GenerateImage(r.Context(), &conversation.GenerateImageRequest{
		UserID: httputil.GetUserID(r),
		ChatID: chatID,
		Prompt: req.Prompt,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, generateImageResponse{Response: reply, ImageURLs: urls})
}

// ListChats lists the caller's chats, most recently modified first.
// GET /api/chats
func (h *ConversationHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListSummaries(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	if summaries == nil {
		summaries = []chat.Summary{}
	}
	httputil.RespondJSON(w, http.StatusOK, summaries)
}

type transcriptResponse struct {
	ChatID  string          `json:"chat_id"`
	History chat.Transcript `json:"history"`
}

// GetTranscript returns the full history of one chat.
// GET /api/chats/{id}
func (h *ConversationHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	transcript, err := h.service.GetTranscript(r.Context(), httputil.GetUserID(r), chatID)
	if err != nil {
		handleError(w, err)
		return
	}

	if transcript == nil {
		transcript = chat.Transcript{}
	}
	httputil.RespondJSON(w, http.StatusOK, transcriptResponse{ChatID: chatID, History: transcript})
}

type deleteAllResponse struct {
	Deleted int `json:"deleted"`
}

// DeleteAll removes every chat owned by the caller.
// DELETE /api/chats
func (h *ConversationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.DeleteAll(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, deleteAllResponse{Deleted: count})
}

type meResponse struct {
	UserID string `json:"user_id"`
}

// Me echoes the caller's resolved identity.
// GET /api/me
func (h *ConversationHandler) Me(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, meResponse{UserID: httputil.GetUserID(r)})
}

// Health reports liveness.
// GET /health
func (h *ConversationHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
