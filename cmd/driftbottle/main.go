package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	migrations "github.com/wuyan1003/driftbottle/db"
	"github.com/wuyan1003/driftbottle/internal/bottle"
	"github.com/wuyan1003/driftbottle/internal/channel"
	"github.com/wuyan1003/driftbottle/internal/channel/adapters/discord"
	"github.com/wuyan1003/driftbottle/internal/channel/adapters/telegram"
	"github.com/wuyan1003/driftbottle/internal/cloud"
	"github.com/wuyan1003/driftbottle/internal/config"
	"github.com/wuyan1003/driftbottle/internal/db"
	"github.com/wuyan1003/driftbottle/internal/handlers"
	"github.com/wuyan1003/driftbottle/internal/image"
	"github.com/wuyan1003/driftbottle/internal/logger"
	"github.com/wuyan1003/driftbottle/internal/plugin"
	"github.com/wuyan1003/driftbottle/internal/server"
	botsync "github.com/wuyan1003/driftbottle/internal/sync"
	"github.com/wuyan1003/driftbottle/internal/upload"
	"github.com/wuyan1003/driftbottle/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,

			provideStore,
			provideTracker,
			provideCloudClient,
			image.NewHandler,
			providePlugin,
			provideSyncService,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideBottlesHandler),
			provideServer,
		),
		fx.Invoke(
			startSyncService,
			startAdapters,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func runMigrate(args []string) error {
	cfg, err := provideConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	command := "up"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}
	migrationsFS, err := fs.Sub(migrations.MigrationsFS, "migrations")
	if err != nil {
		return err
	}
	return db.RunMigrate(logger.L, cfg.Postgres, migrationsFS, command, args)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (bottle.Store, error) {
	if cfg.Data.Backend == "postgres" {
		pool, err := db.Open(context.Background(), cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
		return bottle.NewPGStore(log, pool), nil
	}
	return bottle.NewJSONStore(log, cfg.Data.Dir)
}

func provideTracker(log *slog.Logger, cfg config.Config) (*upload.Tracker, error) {
	return upload.NewTracker(log, cfg.Data.Dir)
}

func provideCloudClient(log *slog.Logger, cfg config.Config) *cloud.Client {
	if strings.TrimSpace(cfg.Cloud.BaseURL) == "" {
		return nil
	}
	return cloud.NewClient(log, cfg.Cloud.BaseURL, cfg.Cloud.Timeout())
}

func providePlugin(log *slog.Logger, store bottle.Store, client *cloud.Client, images *image.Handler, cfg config.Config) *plugin.Plugin {
	var remote plugin.CloudClient
	if client != nil {
		remote = client
	}
	return plugin.New(log, store, remote, images, cfg.Limits)
}

func provideSyncService(log *slog.Logger, store bottle.Store, tracker *upload.Tracker, client *cloud.Client, cfg config.Config) *botsync.Service {
	if !cfg.Sync.Enabled || client == nil {
		return nil
	}
	return botsync.NewService(log, store, tracker, client, cfg.Sync)
}

func provideBottlesHandler(log *slog.Logger, store bottle.Store) *handlers.BottlesHandler {
	return handlers.NewBottlesHandler(log, store)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	if !params.Config.Server.Enabled {
		return nil
	}
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startSyncService(lc fx.Lifecycle, service *botsync.Service) {
	if service == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return service.Start()
		},
		OnStop: func(ctx context.Context) error {
			return service.Stop(ctx)
		},
	})
}

func startAdapters(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, p *plugin.Plugin) {
	var adapters []channel.Receiver
	if strings.TrimSpace(cfg.Telegram.BotToken) != "" {
		adapters = append(adapters, telegram.NewTelegramAdapter(log, cfg.Telegram.BotToken))
	}
	if strings.TrimSpace(cfg.Discord.BotToken) != "" {
		adapters = append(adapters, discord.NewDiscordAdapter(log, cfg.Discord.BotToken))
	}
	if len(adapters) == 0 {
		log.Warn("no channel adapters configured")
	}

	var connections []channel.Connection
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, adapter := range adapters {
				conn, err := adapter.Connect(context.WithoutCancel(ctx), p.Handle)
				if err != nil {
					return err
				}
				connections = append(connections, conn)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var errs []error
			for _, conn := range connections {
				if err := conn.Stop(ctx); err != nil && !errors.Is(err, channel.ErrStopNotSupported) {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting driftbottle %s\n", version.GetInfo())
	if srv == nil {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
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
