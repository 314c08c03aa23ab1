package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"duochat/internal/adapter/api"
	"duochat/internal/adapter/api/handler"
	apimiddleware "duochat/internal/adapter/api/middleware"
	"duochat/internal/adapter/api/router"
	"duochat/internal/adapter/repository"
	"duochat/internal/conversation"
	"duochat/internal/infrastructure/firebase"
	"duochat/internal/infrastructure/ratelimit"
	"duochat/internal/infrastructure/storage"
	"duochat/internal/infrastructure/websocket"
	"duochat/internal/usecase"
	"duochat/pkg/config"
	"duochat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opt, err := credentials(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to resolve Firebase credentials")
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject, StorageBucket: cfg.StorageBucket}, opt)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize Firebase")
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize Firebase Auth")
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to create Firestore client")
	}
	defer firestoreClient.Close()

	storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, opt)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize Cloud Storage")
	}
	defer storageClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	chatRepo := repository.NewFirestoreChatRepository(firestoreClient)
	attachmentRepo := repository.NewFirestoreAttachmentRepository(firestoreClient)

	rateLimiter := ratelimit.NewRateLimiter(map[string]ratelimit.Policy{
		ratelimit.ActionSendMessage: {PerMinute: cfg.SendRatePerMinute, Burst: 5},
		ratelimit.ActionUpload:      {PerMinute: cfg.UploadRatePerMin, Burst: 3},
	}, ratelimit.Policy{PerMinute: cfg.APIRatePerMinute})

	userUseCase := usecase.NewUserUseCase(userRepo, chatRepo)
	chatUseCase := usecase.NewChatUseCase(chatRepo, userRepo, rateLimiter, cfg.ChatPageSize)

	opener := conversation.NewOpener(chatRepo, chatUseCase, conversation.Options{
		PageSize:     cfg.ChatPageSize,
		FetchTimeout: cfg.ChatFetchTimeout,
		WriteTimeout: cfg.ChatWriteTimeout,
	})
	wsManager := websocket.NewManager(websocket.SessionsFrom(opener))

	handler.Setup(userUseCase, chatUseCase, storageClient, attachmentRepo, cfg.MaxUploadBytes)
	handler.SetupHealthHandler(wsManager)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(firebase.NewFirebaseAuthClient(authClient))
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.WSAllowedOrigins)

	router.Setup(e, authMiddleware, rateLimiter, wsHandler)

	g, gctx := errgroup.WithContext(ctx)

	wsManager.Start(gctx)
	rateLimiter.StartCleanupRoutine(gctx, 5*time.Minute)

	g.Go(func() error {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped: %v", err)
	}
}

// credentials prefers inline service account JSON and falls back to a file.
func credentials(cfg *config.Config) (option.ClientOption, error) {
	if cfg.ServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)), nil
	}

	path := cfg.ServiceAccountPath
	if path == "" {
		path = "./firebase-service-account.json"
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	logger.Info("Using Firebase service account from file: %s", path)
	return option.WithCredentialsFile(path), nil
}
