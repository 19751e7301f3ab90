package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/daiello/wabridge/internal/backend"
	"github.com/daiello/wabridge/internal/bridge"
	"github.com/daiello/wabridge/internal/config"
	"github.com/daiello/wabridge/internal/gateway"
	"github.com/daiello/wabridge/internal/handlers"
	"github.com/daiello/wabridge/internal/logger"
	"github.com/daiello/wabridge/internal/server"
	"github.com/daiello/wabridge/internal/speech"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideConversations,
			provideMediaGateway,
			provideSpeechBridge,
			provideSessionStore,
			provideTranslator,
			provideDispatcher,
			provideRelay,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServer,
		),
		fx.Invoke(
			startSessionSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideConversations(log *slog.Logger, cfg config.Config) bridge.Conversations {
	return backend.NewClient(
		log,
		cfg.Backend.BaseURL,
		cfg.Backend.Secret,
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
	)
}

func provideMediaGateway(log *slog.Logger, cfg config.Config) bridge.MediaGateway {
	return gateway.NewClient(log, gateway.Options{
		APIKey:    cfg.Gateway.APIKey,
		Source:    cfg.Gateway.Source,
		APIURL:    cfg.Gateway.APIURL,
		MediaURL:  cfg.Gateway.MediaURL,
		SendRate:  cfg.Gateway.SendRate,
		SendBurst: cfg.Gateway.SendBurst,
	})
}

func provideSpeechBridge(log *slog.Logger, cfg config.Config) bridge.SpeechBridge {
	return speech.NewClient(log, speech.Options{
		APIKey:   cfg.Speech.APIKey,
		BaseURL:  cfg.Speech.BaseURL,
		Language: cfg.Speech.Language,
		Voice:    cfg.Speech.Voice,
		MediaDir: cfg.Server.MediaDir,
	})
}

func provideSessionStore(log *slog.Logger, conv bridge.Conversations) *bridge.SessionStore {
	return bridge.NewSessionStore(log, conv)
}

func provideTranslator(log *slog.Logger, media bridge.MediaGateway, sp bridge.SpeechBridge, cfg config.Config) *bridge.Translator {
	return bridge.NewTranslator(log, media, sp, cfg.Gateway.AppName)
}

func provideDispatcher(log *slog.Logger, media bridge.MediaGateway, sp bridge.SpeechBridge, cfg config.Config) *bridge.Dispatcher {
	return bridge.NewDispatcher(log, media, sp, cfg.Server.MediaHome)
}

func provideRelay(log *slog.Logger, store *bridge.SessionStore, conv bridge.Conversations, dispatch *bridge.Dispatcher, cfg config.Config) *bridge.Relay {
	return bridge.NewRelay(log, store, conv, dispatch, cfg.Backend.BotID)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideWebhookHandler(log *slog.Logger, tr *bridge.Translator, relay *bridge.Relay, cfg config.Config) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, tr, relay, cfg.Server.TestStatus)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config.Server.Addr, params.Config.Server.MediaDir, params.ServerHandlers)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := os.MkdirAll(cfg.Server.MediaDir, 0o755); err != nil {
				return fmt.Errorf("media dir: %w", err)
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

// startSessionSweeper evicts idle conversation sessions on a cron schedule.
// Disabled unless sessions.idle_ttl_minutes is set.
func startSessionSweeper(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, store *bridge.SessionStore) error {
	if cfg.Sessions.IdleTTLMinutes <= 0 {
		return nil
	}
	ttl := time.Duration(cfg.Sessions.IdleTTLMinutes) * time.Minute

	c := cron.New()
	if _, err := c.AddFunc(cfg.Sessions.SweepSchedule, func() {
		store.Sweep(ttl)
	}); err != nil {
		return fmt.Errorf("sweep schedule: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stop := c.Stop()
			select {
			case <-stop.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}
