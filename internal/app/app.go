// Package app wires configuration, storage, the provisioning client and the
// Telegram handlers into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/esimbot/core/bootstrap"
	"github.com/m3rciful/esimbot/core/logger"
	"github.com/m3rciful/esimbot/core/telegram"
	"github.com/m3rciful/esimbot/core/telegram/router"
	"github.com/m3rciful/esimbot/core/telegram/state"
	"github.com/m3rciful/esimbot/internal/bot"
	"github.com/m3rciful/esimbot/internal/catalog"
	"github.com/m3rciful/esimbot/internal/config"
	"github.com/m3rciful/esimbot/internal/esim"
	"github.com/m3rciful/esimbot/internal/history"
	"github.com/m3rciful/esimbot/internal/ops"
	"github.com/m3rciful/esimbot/internal/purchase"
	"github.com/m3rciful/esimbot/internal/texts"
)

const (
	redisAttempts = 3
	redisBackoff  = 2 * time.Second
)

// App owns every long-lived resource of the process.
type App struct {
	cfg *config.Config

	db        *sqlx.DB
	redis     *redis.Client
	publisher *history.Publisher
	ops       *ops.Server

	store *purchase.Store
	bot   *bot.Bot
}

// New initializes logging, migrates and connects the database, opens the
// session backend and builds the handlers.
func New(cfg *config.Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:     cfg.CoreConfig(),
		Database:   cfg.Database,
		Migrations: history.Migrations(),
	})
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, db: res.DB}

	sessions, err := a.openSessions(context.Background())
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = purchase.NewStore(sessions)

	client, err := esim.New(esim.Config{
		BaseURL:    cfg.ESIM.BaseURL,
		AccessCode: cfg.ESIM.AccessCode,
		Timeout:    cfg.ESIM.RequestTimeout,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: esim client: %w", err)
	}

	repo := history.NewRepository(a.db)
	recorder := history.NewFanout().Add("postgres", repo)
	if pub := history.NewPublisher(history.PublisherOptions{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}); pub != nil {
		a.publisher = pub
		recorder.Add("kafka", pub)
	}

	cat := catalog.Default()
	wf := purchase.New(a.store, client, cat, recorder, purchase.Options{
		PollAttempts: cfg.ESIM.PollAttempts,
		PollInterval: cfg.ESIM.PollInterval,
	})
	a.bot = bot.New(bot.Deps{
		Workflow: wf,
		Store:    a.store,
		Catalog:  cat,
		Texts:    texts.Default(),
		Orders:   repo,
		Provider: client,
		Assets:   cfg.Assets.RegionImages,
	})

	a.ops, err = ops.Listen(cfg.Ops.Listen, map[string]ops.Pinger{
		"postgres": repo,
		"session":  a.store,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.L.With("component", "app").Info("app initialized",
		slog.String("event", "init"),
		slog.String("session_backend", cfg.Session.Backend),
		slog.Bool("kafka", a.publisher != nil),
		slog.Bool("ops", a.ops != nil),
	)
	return a, nil
}

func (a *App) openSessions(ctx context.Context) (state.Manager[purchase.Context], error) {
	s := a.cfg.Session
	if s.Backend != config.SessionRedis {
		return state.NewMemoryManager[purchase.Context](), nil
	}
	client, err := connectRedis(ctx, s.RedisURL)
	if err != nil {
		return nil, err
	}
	a.redis = client
	return state.NewRedisManager[purchase.Context](client, state.RedisOptions{
		Prefix: s.Prefix,
		TTL:    s.TTL,
	}), nil
}

// connectRedis retries the initial ping a few times so the bot can start
// alongside its Redis container.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("app: redis url: %w", err)
	}
	client := redis.NewClient(opts)
	var lastErr error
	for attempt := 1; attempt <= redisAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			logger.Session.Info("redis connected",
				slog.String("event", "session.connect"),
				slog.Int("attempt", attempt),
			)
			return client, nil
		}
		logger.Session.Warn("redis not ready",
			slog.String("event", "session.connect"),
			slog.String("status", "retry"),
			slog.Int("attempt", attempt),
			slog.String("err", logger.ErrAttr(lastErr)),
		)
		if attempt < redisAttempts {
			time.Sleep(redisBackoff)
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("app: redis not ready: %w", lastErr)
}

// TelegramRunOptions builds the registry, routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (telegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	reg := telegram.NewRegistry()
	if err := a.bot.Register(reg); err != nil {
		return telegram.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}
	reg.SetTextFallback(a.bot.UnknownText())

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: core.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{
		NotFound:     a.bot.UnknownCallback(),
		SelfAnswered: a.bot.SelfAnswered(),
	}))
	routes = append(routes, router.TextRoutes(a.bot.StateRouter(), reg, router.TextOptions{
		UnknownText:     a.bot.UnknownText(),
		UnknownDocument: a.bot.UnknownDocument(),
	})...)

	return telegram.RunOptions{
		Config:      core,
		Registry:    reg,
		Middlewares: telegram.DefaultMiddlewares(core, a.bot.OnRateLimited),
		Routes:      routes,
		OnStart: func(context.Context, telegram.Runtime) error {
			if a.ops != nil {
				a.ops.Start()
			}
			return nil
		},
		OnStop: func(ctx context.Context, _ telegram.Runtime) error {
			return a.ops.Shutdown(ctx)
		},
	}, nil
}

// Close releases storage and broker connections.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
