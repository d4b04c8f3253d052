package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rainbow-register/internal/auth"
	"rainbow-register/internal/config"
	"rainbow-register/internal/database"
	"rainbow-register/internal/extraction"
	"rainbow-register/internal/handlers"
	"rainbow-register/internal/jobs"
	"rainbow-register/internal/logger"
	"rainbow-register/internal/repository"
	"rainbow-register/internal/services"
	"rainbow-register/internal/storage"
	"rainbow-register/internal/wechat"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN(), zlog); err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.AutoMigrate(database.GetDB(), zlog); err != nil {
		zlog.Fatal("Failed to run migrations", zap.Error(err))
	}

	repo := repository.NewRepository(database.GetDB())

	// Initialize services
	ledger := services.NewInvitationService(repo, zlog, services.InvitationOptions{
		CodeLength: cfg.Review.InvitationCodeLength,
		DefaultTTL: cfg.InvitationTTL(),
		Quota:      cfg.Review.DefaultInvitationQuota,
	})
	settings := services.NewSettingService(repo, zlog)

	var analyzer *services.CompletionAnalyzer
	gateway, err := extraction.New(cfg.AI, zlog)
	switch {
	case err == nil:
		analyzer = services.NewCompletionAnalyzer(gateway, zlog)
	case errors.Is(err, extraction.ErrNotConfigured):
		zlog.Warn("AI gateway not configured, field extraction disabled")
		analyzer = services.NewCompletionAnalyzer(nil, zlog)
	default:
		zlog.Fatal("Failed to initialize AI gateway", zap.Error(err))
	}

	review := services.NewReviewService(repo, ledger, analyzer, settings, zlog, services.ReviewOptions{
		BypassCodes:     cfg.Review.BypassCodes,
		RejectTestCodes: cfg.Review.RejectTestCodes,
	})
	posts := services.NewPostService(
		repo,
		storage.NewPostStore(cfg.Storage.PostDir, cfg.Storage.PublicPrefix, zlog),
		cfg.Storage.AdminContact,
		zlog,
	)
	review.SetPhotoCleaner(storage.NewPhotoStore(cfg.Storage.UploadDir, zlog))
	review.SetPostGenerator(posts)

	// Start background review workers
	queue := jobs.NewReviewQueue(review, cfg.Review.Workers, cfg.Review.QueueSize, cfg.Review.TaskTimeout, zlog)
	queue.Start()
	review.SetScheduler(queue)

	// Initialize handlers
	h := &handlers.Handlers{
		Invitation: handlers.NewInvitationHandler(ledger, review, wechat.NewClient(cfg.WeChat, zlog), zlog),
		Profile:    handlers.NewProfileHandler(review, zlog),
		Admin:      handlers.NewAdminHandler(review, ledger, posts, zlog),
		Network: handlers.NewNetworkHandler(
			services.NewNetworkService(repo, zlog),
			services.NewGeoService(repo, zlog),
			zlog,
		),
		Settings: handlers.NewSettingsHandler(settings, zlog),
	}

	// Set up Gin router
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestLogger(zlog))

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000", // Admin console dev server
		"http://localhost:5173", // Vite dev server
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if cfg.Server.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.Server.FrontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Static(cfg.Storage.PublicPrefix, cfg.Storage.PostDir)
	handlers.RegisterRoutes(router, h, zlog)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("Server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("database", cfg.Database.Driver),
			zap.String("ai_api_type", cfg.AI.APIType),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	queue.Stop()

	zlog.Info("Server exited")
}
