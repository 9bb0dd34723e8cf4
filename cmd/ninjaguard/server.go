package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ninjabot/ninjaguard/automod/authorstate"
	"github.com/ninjabot/ninjaguard/automod/cachestore"
	"github.com/ninjabot/ninjaguard/automod/consumer"
	"github.com/ninjabot/ninjaguard/automod/countstore"
	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/notify"
	"github.com/ninjabot/ninjaguard/automod/platform"
	"github.com/ninjabot/ninjaguard/automod/policy"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	SourceDiscord = "discord"
	SourceNats    = "nats"

	// captured lines outlive any plausible tracking window
	lineCacheTTL = 30 * time.Minute
	lineCacheCap = 50_000

	shutdownTimeout = 30 * time.Second
)

type Config struct {
	Source            string
	DiscordToken      string
	GuildID           snowflake.ID
	LogChannelID      snowflake.ID
	ModeratorRoles    []snowflake.ID
	NatsURL           string
	NatsSubject       string
	NatsQueue         string
	NatsCommandPrefix string
	RedisURL          string
	MemcachedServers  []string
	WebhookURL        string
	WebhookFormat     string
	Parallelism       int
	PolicyFile        string
	Moderation        engine.Config
	Logger            *slog.Logger
}

type Server struct {
	Engine *engine.Engine
	Source consumer.Source

	logger     *slog.Logger
	policyFile string
	// values the policy file is layered over on reload
	basePolicy engine.Config

	discord  bot.Client
	discordC *consumer.DiscordConsumer
	natsConn *nats.Conn
	redis    *redis.Client
}

func NewServer(ctx context.Context, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		logger:     logger,
		policyFile: config.PolicyFile,
		basePolicy: engine.DefaultConfig(),
	}

	var counters countstore.CountStore
	var lines cachestore.CacheStore
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		srv.redis = rdb
		counters = &countstore.RedisCountStore{Client: rdb}
		lines = cachestore.NewRedisCacheStoreFromClient(rdb, lineCacheTTL)
		logger.Info("using redis for counters and captured lines")
	} else {
		counters = countstore.NewMemCountStore()
		lines = cachestore.NewMemCacheStore(lineCacheCap, lineCacheTTL)
	}
	if len(config.MemcachedServers) > 0 {
		lines = cachestore.NewMemcachedCacheStore(lineCacheTTL, config.MemcachedServers...)
		logger.Info("using memcached for captured lines", "servers", config.MemcachedServers)
	}

	var (
		plat     engine.Platform
		reporter []notify.Reporter
		warner   engine.Warner
	)

	switch config.Source {
	case SourceDiscord, "":
		if config.DiscordToken == "" {
			return nil, fmt.Errorf("discord token is required for the discord source")
		}
		if config.GuildID == 0 {
			return nil, fmt.Errorf("discord guild ID is required for the discord source")
		}
		dc := consumer.NewDiscordConsumer(nil, config.GuildID, config.Parallelism, logger)
		dc.ModeratorRoles = config.ModeratorRoles
		dc.Lines = lines

		client, err := disgo.New(config.DiscordToken,
			bot.WithGatewayConfigOpts(gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
			)),
			bot.WithEventListeners(dc.Listener()),
		)
		if err != nil {
			return nil, fmt.Errorf("creating discord client: %w", err)
		}
		dc.ChannelName = func(id snowflake.ID) string {
			if ch, ok := client.Caches().Channel(id); ok {
				return ch.Name()
			}
			return ""
		}

		dp := &platform.DiscordPlatform{
			Rest:         client.Rest(),
			GuildID:      config.GuildID,
			LogChannelID: config.LogChannelID,
			Lines:        lines,
			Logger:       logger,
		}
		plat = dp
		warner = dp
		if config.LogChannelID != 0 {
			reporter = append(reporter, dp)
		}
		srv.discord = client
		srv.discordC = dc
		srv.Source = dc
	case SourceNats:
		nc, err := nats.Connect(config.NatsURL, nats.Name("ninjaguard"))
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		np := &platform.NatsPlatform{Conn: nc, Prefix: config.NatsCommandPrefix}
		plat = np
		warner = np
		reporter = append(reporter, np)
		srv.natsConn = nc
		srv.Source = consumer.NewNatsConsumer(nc, config.NatsSubject, config.NatsQueue, nil, logger)
	default:
		return nil, fmt.Errorf("unknown message source: %s", config.Source)
	}

	if config.WebhookURL != "" {
		wh, err := notify.NewWebhookReporter(config.WebhookURL, config.WebhookFormat, logger)
		if err != nil {
			return nil, err
		}
		reporter = append(reporter, wh)
	}
	if len(reporter) == 0 {
		logger.Warn("no report destination configured, reports go to the log only")
		reporter = append(reporter, &notify.LogReporter{Logger: logger})
	}

	eng, err := engine.NewEngine(config.Moderation, engine.Options{
		Logger:   logger,
		Store:    authorstate.NewStore(),
		Platform: plat,
		Reporter: &notify.MultiReporter{Reporters: reporter},
		Warner:   warner,
		Counters: counters,
	})
	if err != nil {
		return nil, err
	}
	srv.Engine = eng

	switch src := srv.Source.(type) {
	case *consumer.DiscordConsumer:
		src.Engine = eng
	case *consumer.NatsConsumer:
		src.Engine = eng
	}
	return srv, nil
}

// Runs until ctx is cancelled or a component fails, then shuts down in order: sources stop and drain, pending removals complete, connections close.
func (srv *Server) Run(ctx context.Context, bind, metricsListen string) error {
	if srv.discord != nil {
		if err := srv.discord.OpenGateway(ctx); err != nil {
			return fmt.Errorf("opening discord gateway: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Source.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-srv.Source.Ready():
		case <-gctx.Done():
			return nil
		}
		sourceReady.Set(1)
		// interval and TTL changes in the policy file apply from the next restart
		cfg := srv.Engine.Config()
		return authorstate.RunEvictionSweeper(gctx, srv.Engine.Store, cfg.SweepInterval, cfg.IdleTTL, srv.Engine.Clock, srv.logger)
	})

	if srv.policyFile != "" {
		g.Go(func() error {
			return policy.Watch(gctx, srv.policyFile, srv.basePolicy, srv.Engine, srv.logger)
		})
	}

	api := &adminAPI{engine: srv.Engine, source: srv.Source}
	if srv.discordC != nil {
		api.lastEvent = srv.discordC.LastEventAt
	}
	apiServer := &http.Server{
		Addr:              bind,
		Handler:           newAdminEcho(api, srv.logger, prometheus.DefaultRegisterer),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       5 * time.Second,
	}
	g.Go(func() error {
		return serveUntilDone(gctx, apiServer, srv.logger.With("server", "admin"))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		return serveUntilDone(gctx, metricsServer, srv.logger.With("server", "metrics"))
	})

	runErr := g.Wait()

	srv.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Engine.Shutdown(shutdownCtx); err != nil {
		srv.logger.Error("pending removals did not complete", "err", err)
	}
	if srv.discord != nil {
		srv.discord.Close(shutdownCtx)
	}
	if srv.natsConn != nil {
		srv.natsConn.Close()
	}
	if srv.redis != nil {
		if err := srv.redis.Close(); err != nil {
			srv.logger.Warn("closing redis", "err", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func serveUntilDone(ctx context.Context, s *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "bind", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server on %s: %w", s.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "err", err)
	}
	return nil
}
