package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"structify/internal/auth"
	"structify/internal/cache/memory"
	"structify/internal/config"
	"structify/internal/handler"
	"structify/internal/llm"
	"structify/internal/logging"
	"structify/internal/middleware"
	"structify/internal/repository/image"
	"structify/internal/repository/llmlog"
	"structify/internal/repository/user"
	"structify/internal/server"
	"structify/internal/service/structured"
	"structify/internal/storage"
)

type App struct {
	server    *server.Server
	db        *sql.DB
	llmClient llm.Client
	logger    *zap.Logger
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	// Repositories: Postgres when a DSN is configured, in-memory otherwise.
	var (
		db     *sql.DB
		users  user.Repository
		images image.Repository
		logs   llmlog.Repository
	)
	if cfg.DB.DSN != "" {
		db, err = sql.Open("pgx", cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		users = user.NewPostgresStore(db)
		imageStore, err := image.NewPostgresStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		images = imageStore
		logs = llmlog.NewPostgresStore(db)
	} else {
		logger.Warn("no database DSN configured, using in-memory stores")
		users = user.NewMemoryStore()
		images = image.NewMemoryStore()
		logs = llmlog.NewMemoryStore()
	}

	objects, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:       cfg.Storage.Endpoint,
		PublicEndpoint: cfg.Storage.PublicEndpoint,
		Region:         cfg.Storage.Region,
		AccessKey:      cfg.Storage.AccessKey,
		SecretKey:      cfg.Storage.SecretKey,
		Bucket:         cfg.Storage.Bucket,
		UseSSL:         cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}

	llmClient, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		RPS:         cfg.LLM.RPS,
		Burst:       cfg.LLM.Burst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	resultCache := memory.NewLRUTTL[string, json.RawMessage](cfg.Cache.MaxEntries, cfg.Cache.MaxBytes, cfg.Cache.TTL)
	structuredSvc := structured.New(llmClient, logs, images, objects, resultCache, logger)

	authHandler := handler.NewAuthHandler(users, tokens, logger)
	imageHandler := handler.NewImageHandler(images, objects, logger)
	structuredHandler := handler.NewStructuredHandler(structuredSvc, logger)
	authn := middleware.NewAuthenticator(tokens, users)

	mux := server.NewMux(authHandler, imageHandler, structuredHandler, authn)
	srv := server.New(cfg.Port, mux, logger)

	return &App{
		server:    srv,
		db:        db,
		llmClient: llmClient,
		logger:    logger,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if a.llmClient != nil {
		_ = a.llmClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync()
	return err
}

func (a *App) Logger() *zap.Logger {
	return a.logger
}
