package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod"
	"github.com/zeppelin-bot/zeppelin/automod/cachestore"
	"github.com/zeppelin-bot/zeppelin/automod/consumer"
	"github.com/zeppelin-bot/zeppelin/automod/cooldownstore"
	"github.com/zeppelin-bot/zeppelin/automod/counters"
	"github.com/zeppelin-bot/zeppelin/automod/countstore"
	"github.com/zeppelin-bot/zeppelin/automod/discord"
	"github.com/zeppelin-bot/zeppelin/automod/guildconfig"
	"github.com/zeppelin-bot/zeppelin/automod/modstore"
	"github.com/zeppelin-bot/zeppelin/automod/setstore"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	logger   *slog.Logger
	engine   *automod.Engine
	session  *discordgo.Session
	consumer *consumer.GatewayConsumer
	loader   *guildconfig.Loader
	mod      modstore.ModStore
	rdb      *redis.Client
	api      *API
	bind     string
}

type Config struct {
	Logger           *slog.Logger
	DiscordToken     string
	GuildConfigDir   string
	SetsFileJSON     string
	RedisURL         string
	SlackWebhookURL  string
	AdminToken       string
	Bind             string
	Workers          int
	MaxQueueDepth    int
	DiscordRateLimit float64
	AlertRateLimit   int
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	session, err := discordgo.New("Bot " + config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Client = &http.Client{
		Timeout:   20 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	session.StateEnabled = true
	me, err := session.User("@me")
	if err != nil {
		return nil, fmt.Errorf("fetching bot user (is the token valid?): %w", err)
	}
	logger.Info("authenticated with discord", "user", me.ID, "username", me.Username)

	sets := setstore.NewMemSetStore()
	if config.SetsFileJSON != "" {
		if err := sets.LoadFromFileJSON(config.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("initializing in-process setstore: %v", err)
		} else {
			logger.Info("loaded set config from JSON", "path", config.SetsFileJSON)
		}
	}

	mod, err := modstore.NewSQLModStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing modstore: %w", err)
	}

	var counts countstore.CountStore
	var cooldowns cooldownstore.CooldownStore
	var cache cachestore.CacheStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		_, err = rdb.Ping(context.TODO()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}

		counts = countstore.NewRedisCountStore(rdb)
		cooldowns = cooldownstore.NewRedisCooldownStore(rdb)
		cache = cachestore.NewRedisCacheStore(rdb, 30*time.Minute)
	} else {
		// counters are user-visible state, so they persist in the database even without redis
		cnt, err := countstore.NewSQLCountStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing sql countstore: %v", err)
		}
		counts = cnt
		cooldowns = cooldownstore.NewMemCooldownStore()
		cache = cachestore.NewMemCacheStore(50_000, 30*time.Minute)
	}

	platform := discord.NewPlatform(session, logger, config.DiscordRateLimit, 5)

	// the log channel sink looks up configs on the engine, which is built below
	var eng *automod.Engine
	logChannel := &discord.LogChannelSink{
		Platform: platform,
		Channel: func(guildID string) string {
			gc, ok := eng.GuildConfig(guildID)
			if !ok {
				return ""
			}
			return gc.LogChannel
		},
	}
	slogSink := &automod.LogNotifier{Logger: logger}
	alerters := automod.MultiAlerter{slogSink, logChannel}
	if config.SlackWebhookURL != "" {
		logger.Info("sending bot alerts to slack")
		alerters = append(alerters, automod.NewSlackNotifier(config.SlackWebhookURL))
	}

	eng = automod.NewEngine(logger, automod.Deps{
		Platform:   platform,
		Cases:      mod,
		Mutes:      mod,
		Antiraid:   mod,
		Counters:   counters.NewService(counts),
		Cooldowns:  cooldowns,
		Sets:       sets,
		Logs:       automod.MultiLogSink{slogSink, logChannel},
		Alerts:     automod.NewThrottledAlerter(alerters, time.Minute, int64(config.AlertRateLimit)),
		SelfUserID: me.ID,
	}, automod.EngineConfig{
		Workers:       config.Workers,
		MaxQueueDepth: config.MaxQueueDepth,
	})

	loader := &guildconfig.Loader{
		Dir:    config.GuildConfigDir,
		Engine: eng,
		Sets:   sets,
		Logger: logger,
	}

	builder := consumer.NewBuilder(&consumer.UserResolver{
		Cache:  cache,
		Logger: logger,
		Fetch:  session.User,
	})
	builder.Ignore = platform

	s := &Server{
		logger:  logger,
		engine:  eng,
		session: session,
		consumer: &consumer.GatewayConsumer{
			Logger:  logger,
			Session: session,
			Engine:  eng,
			Builder: builder,
		},
		loader: loader,
		mod:    mod,
		rdb:    rdb,
		bind:   config.Bind,
	}
	s.api = NewAPI(logger, eng, loader, mod, config.AdminToken, prometheus.DefaultRegisterer)
	return s, nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Runs the gateway consumer, the admin API, and background maintenance until ctx is cancelled, then drains the guild queues.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.loader.LoadAll(); err != nil {
		return err
	}
	configsLoaded.Set(float64(len(s.engine.Guilds())))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.consumer.Run(ctx)
	})
	g.Go(func() error {
		return s.engine.RunMuteExpiry(ctx, 15*time.Second)
	})
	g.Go(func() error {
		return s.api.Run(ctx, s.bind)
	})
	err := g.Wait()

	s.logger.Info("draining guild queues")
	s.engine.Shutdown()
	if s.rdb != nil {
		if cerr := s.rdb.Close(); cerr != nil {
			s.logger.Error("failed to close redis client", "err", cerr)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
