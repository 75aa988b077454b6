// Command chat-relay ingests a YouTube live chat into Postgres and fans it out
// to any number of streaming consumers. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the live chat fetcher (poll loop with broadcast recovery) and
//     OAuth token refreshers for the bot and streamer identities.
//   - Exposes an HTTP server with /messages, /messages/stream (SSE),
//     /auth/youtube/*, /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/config"
	"github.com/onnwee/chat-relay/db"
	"github.com/onnwee/chat-relay/oauth"
	"github.com/onnwee/chat-relay/server"
	"github.com/onnwee/chat-relay/telemetry"
	"github.com/onnwee/chat-relay/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Migrations: versioned (golang-migrate) first, embedded SQL as fallback for
	// deployments that predate the schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed successfully", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := &db.TokenStoreAdapter{DB: database}
	store := db.NewMessageStore(database)
	hub := chat.NewHub(cfg.SubscriberBuffer)
	ref := chat.NewLiveChatRef(cfg.YTLiveChatID)

	var (
		auth   map[string]*youtubeapi.Service
		sender server.Sender
	)
	if err := cfg.ValidateYouTubeReady(); err != nil {
		slog.Warn("youtube pipeline disabled", slog.Any("err", err))
	} else {
		streamerSvc := youtubeapi.New(cfg, tokens, youtubeapi.ProviderStreamer)
		botSvc := youtubeapi.New(cfg, tokens, youtubeapi.ProviderBot)
		auth = map[string]*youtubeapi.Service{
			"streamer": streamerSvc,
			"bot":      botSvc,
		}
		sender = youtubeapi.NewSender(botSvc, ref)

		fetcher := &chat.Fetcher{
			Client:          youtubeapi.NewLiveChatClient(streamerSvc),
			Store:           store,
			Hub:             hub,
			Ref:             ref,
			RecoveryBackoff: cfg.RecoveryBackoff,
		}
		go func() {
			if err := fetcher.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("fetcher exited", slog.Any("err", err))
			}
		}()

		// Centralized OAuth token refreshers, one per identity.
		oauth.StartRefresher(ctx, tokens, youtubeapi.ProviderStreamer, 10*time.Minute, 20*time.Minute, streamerSvc.Refresh)
		oauth.StartRefresher(ctx, tokens, youtubeapi.ProviderBot, 10*time.Minute, 20*time.Minute, botSvc.Refresh)
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	handlers := server.NewHandlers(ctx, database, store, hub, sender, auth)
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, handlers); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
