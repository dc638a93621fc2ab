package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"palaver/internal/attachment"
	"palaver/internal/auth"
	"palaver/internal/config"
	"palaver/internal/domain/repositories"
	"palaver/internal/gateway"
	"palaver/internal/handler"
	"palaver/internal/identity"
	"palaver/internal/middleware"
	"palaver/internal/ocr"
	"palaver/internal/prompts"
	"palaver/internal/repository/fsstore"
	"palaver/internal/repository/pgstore"
	"palaver/internal/service/conversation"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logOutput := io.Writer(os.Stdout)
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, 10)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
	)

	// Bearer-token verification is optional; without it every caller gets an
	// anonymous cookie identity.
	var verifier auth.TokenVerifier
	if cfg.JWKSURL != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		verifier = jwksVerifier
	}
	resolver := identity.NewResolver(verifier, logger)

	// Transcript store: Postgres when DATABASE_URL is set, files otherwise.
	ctx := context.Background()
	var store repositories.TranscriptStore
	if cfg.DatabaseURL != "" {
		pool, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		pg := pgstore.New(pool, cfg.TablePrefix+"chats", logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure chat schema: %v", err)
		}
		store = pg
		logger.Info("using postgres transcript store", "table", cfg.TablePrefix+"chats")
	} else {
		fs, err := fsstore.New(cfg.DataDir, logger)
		if err != nil {
			log.Fatalf("Failed to create transcript store: %v", err)
		}
		store = fs
		logger.Info("using file transcript store", "dir", cfg.DataDir)
	}

	attachments, err := attachment.New(cfg.UploadDir, "/uploads", logger)
	if err != nil {
		log.Fatalf("Failed to create attachment store: %v", err)
	}

	pack, err := prompts.Load()
	if err != nil {
		log.Fatalf("Failed to load prompts: %v", err)
	}

	gw := gateway.New(gateway.Config{
		Provider:    cfg.LLMProvider,
		Model:       cfg.LLMModel,
		ImageModel:  cfg.LLMImageModel,
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     int(cfg.LLMTimeout / time.Second),
	}, logger)

	var extractor conversation.TextExtractor
	if cfg.OCREnabled {
		extractor = ocr.New(logger)
	}

	assembler := conversation.NewAssembler(attachments, pack.SystemPreamble, pack.GreetingAck, logger)
	svc := conversation.NewService(store, assembler, gw, attachments, extractor, pack, logger)
	conversationHandler := handler.NewConversationHandler(svc, logger)

	logger.Info("services initialized")

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", conversationHandler.Health)
	mux.HandleFunc("GET /api/me", conversationHandler.Me)

	// Chat routes
	mux.HandleFunc("POST /api/chats", conversationHandler.CreateChat)
	mux.HandleFunc("GET /api/chats", conversationHandler.ListChats)
	mux.HandleFunc("DELETE /api/chats", conversationHandler.DeleteAll)
	mux.HandleFunc("GET /api/chats/{id}", conversationHandler.GetTranscript)
	mux.HandleFunc("POST /api/chats/{id}/ask", conversationHandler.Ask)
	mux.HandleFunc("POST /api/chats/{id}/image", conversationHandler.PostImage)
	mux.HandleFunc("POST /api/chats/{id}/generate-image", conversationHandler.GenerateImage)

	// Uploaded and generated images
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(attachments.Dir()))))

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Identity → Routes
	var root http.Handler = mux
	root = middleware.Identity(resolver, logger)(root)
	root = middleware.Recovery(logger)(root)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // model calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
