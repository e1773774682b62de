package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"calendar-assistant/internal/account"
	"calendar-assistant/internal/app"
	"calendar-assistant/internal/availability"
	"calendar-assistant/internal/classifier"
	"calendar-assistant/internal/config"
	"calendar-assistant/internal/dispatch"
	"calendar-assistant/internal/overlap"
	"calendar-assistant/internal/overlay"
	"calendar-assistant/internal/provider"
	"calendar-assistant/internal/reltime"
	"calendar-assistant/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store account.Store
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := account.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
	default:
		store = account.NewMemoryStore()
	}

	oauthCfg := provider.NewOAuthConfig(provider.OAuthSettings{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	var client provider.Client
	switch cfg.ProviderDriver {
	case config.DriverGoogle:
		client = provider.NewGoogle(oauthCfg, store)
	default:
		client = provider.NewMockClient()
	}

	timeOpts := reltime.Options{WeekdayIncludesToday: cfg.WeekdayIncludesToday}
	busy := overlay.New(store, client, overlay.Policy{
		ReaderCalendarsBlockMutations: cfg.ReaderCalendarsBlockMutations,
		Concurrency:                   cfg.OverlayConcurrency,
		CallTimeout:                   cfg.ProviderTimeout,
	}, logger)
	avail := availability.NewResolver(store, busy, logger)
	shared := overlap.NewResolver(store, avail, cfg.OverlapConcurrency, logger)
	dispatcher := dispatch.New(dispatch.Config{
		Accounts:     store,
		Overlay:      busy,
		Availability: avail,
		Overlap:      shared,
		Provider:     client,
		Options: dispatch.Options{
			DefaultMinDuration: cfg.DefaultMinDuration,
			SearchConcurrency:  cfg.OverlayConcurrency,
			ProviderTimeout:    cfg.ProviderTimeout,
			Time:               timeOpts,
		},
		Logger: logger,
	})

	appInstance := &app.App{
		Store:        store,
		Provider:     client,
		Availability: avail,
		Overlap:      shared,
		Dispatcher:   dispatcher,
		OAuth:        oauthCfg,
		Time:         timeOpts,
		Logger:       logger,
	}
	if cfg.ClassifierConfigured() {
		appInstance.Classifier = classifier.NewOpenAI(classifier.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set; /api/assistant is disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := app.NewRouter(appInstance, app.AuthMiddleware(app.AuthConfig{
		StaticTokens: cfg.StaticTokens,
		JWTSecret:    cfg.JWTHMACSecret,
	}))

	return server.Run(ctx, router, cfg.Port, logger)
}
