package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arbor/internal/config"
	"arbor/internal/editor"
	"arbor/internal/handler"
	"arbor/internal/middleware"
	"arbor/internal/repository/postgres"
	"arbor/internal/repository/postgres/migrations"
	"arbor/internal/service"
	"arbor/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logWriter io.Writer = os.Stdout
	if cfg.LogToFile {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.MaxLogFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logWriter = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger) // Set as default logger

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	// Apply embedded schema migrations
	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	logger.Info("migrations applied")

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	pageRepo := postgres.NewPageRepository(repoConfig)
	blockRepo := postgres.NewBlockRepository(repoConfig)
	attachmentRepo := postgres.NewAttachmentRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	// Create the attachment store
	fileStore, err := storage.NewDiskStore(cfg.UploadDir, logger)
	if err != nil {
		log.Fatalf("Failed to create file store: %v", err)
	}

	// Create services
	pageService := service.NewPageService(pageRepo, blockRepo, attachmentRepo, txManager, logger)
	blockService := service.NewBlockService(blockRepo, pageRepo, attachmentRepo, logger)
	attachmentService := service.NewAttachmentService(attachmentRepo, blockService, fileStore, txManager, logger)
	exportService := service.NewExportService(pageRepo, blockRepo, logger)

	// Load the editor command registry and create the session manager
	registry, err := editor.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load editor command registry: %v", err)
	}
	manager := editor.NewManager(editor.ManagerConfig{
		Pages:       pageService,
		Blocks:      blockService,
		Attachments: attachmentService,
		Registry:    registry,
		Origin:      cfg.Origin,
		IdleTimeout: cfg.SessionIdleTimeout,
		Logger:      logger,
	})

	// Create handlers
	healthHandler := handler.NewHealthHandler(pool)
	pageHandler := handler.NewPageHandler(pageService, exportService, logger)
	blockHandler := handler.NewBlockHandler(blockService, logger)
	attachmentHandler := handler.NewAttachmentHandler(attachmentService, logger)
	editorHandler := handler.NewEditorHandler(manager, registry, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", healthHandler.Check)

	// Page routes
	mux.HandleFunc("POST /api/pages", pageHandler.CreatePage)
	mux.HandleFunc("GET /api/pages", pageHandler.ListRootPages)
	mux.HandleFunc("GET /api/pages/tree", pageHandler.GetTree)
	mux.HandleFunc("GET /api/search", pageHandler.Search)
	mux.HandleFunc("GET /api/pages/{pageID}", pageHandler.GetPage)
	mux.HandleFunc("PATCH /api/pages/{pageID}", pageHandler.UpdatePage)
	mux.HandleFunc("DELETE /api/pages/{pageID}", pageHandler.DeletePage)
	mux.HandleFunc("GET /api/pages/{pageID}/rendered", pageHandler.RenderPage)
	mux.HandleFunc("GET /api/pages/{pageID}/export", pageHandler.ExportPage)

	// Block routes
	mux.HandleFunc("POST /api/pages/{pageID}/blocks", blockHandler.CreateBlock)
	mux.HandleFunc("GET /api/blocks/{blockID}", blockHandler.GetBlock)
	mux.HandleFunc("PATCH /api/blocks/{blockID}", blockHandler.UpdateBlock)
	mux.HandleFunc("DELETE /api/blocks/{blockID}", blockHandler.DeleteBlock)

	// Attachment routes
	mux.HandleFunc("POST /api/blocks/{blockID}/files", attachmentHandler.Upload)
	mux.HandleFunc("GET /api/files/{fileID}", attachmentHandler.GetFile)
	mux.HandleFunc("DELETE /api/files/{fileID}", attachmentHandler.DeleteFile)

	// Editor session routes
	mux.HandleFunc("GET /api/editor/commands", editorHandler.GetCommands)
	mux.HandleFunc("POST /api/editor/sessions", editorHandler.CreateSession)
	mux.HandleFunc("GET /api/editor/sessions/{sessionID}", editorHandler.GetSession)
	mux.HandleFunc("DELETE /api/editor/sessions/{sessionID}", editorHandler.CloseSession)
	mux.HandleFunc("GET /api/editor/sessions/{sessionID}/render", editorHandler.RenderSessionPage)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/blocks", editorHandler.CreateBlock)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/blocks/{blockID}/edit", editorHandler.BeginEdit)
	mux.HandleFunc("PUT /api/editor/sessions/{sessionID}/blocks/{blockID}/surface", editorHandler.UpdateSurface)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/blocks/{blockID}/save", editorHandler.SaveBlock)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/blocks/{blockID}/cancel", editorHandler.CancelBlock)
	mux.HandleFunc("DELETE /api/editor/sessions/{sessionID}/blocks/{blockID}", editorHandler.DeleteBlock)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/blocks/{blockID}/selection", editorHandler.CaptureSelection)
	mux.HandleFunc("DELETE /api/editor/sessions/{sessionID}/selection", editorHandler.DismissSelection)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/format", editorHandler.ApplyFormat)

	// Inline image routes
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/blocks/{blockID}/images", editorHandler.InsertImages)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/images/{fileID}/select", editorHandler.SelectImage)
	mux.HandleFunc("DELETE /api/editor/sessions/{sessionID}/images/selection", editorHandler.DeselectImage)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/images/resize", editorHandler.ResizeImage)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/images/wrap", editorHandler.SetImageWrap)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/images/drop", editorHandler.DropImage)
	mux.HandleFunc("DELETE /api/editor/sessions/{sessionID}/images", editorHandler.DeleteImage)

	// Navigation routes
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/navigate", editorHandler.Navigate)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/loaded", editorHandler.PageLoaded)
	mux.HandleFunc("POST /api/editor/sessions/{sessionID}/term", editorHandler.SetTerm)

	// Build middleware chain
	var httpHandler http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Routes
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - Must be outermost to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow large attachment downloads
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for SIGINT/SIGTERM, then drain in-flight requests
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
