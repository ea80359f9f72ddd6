package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeppelin-bot/zeppelin/automod/guildconfig"
	"github.com/zeppelin-bot/zeppelin/automod/setstore"
	"github.com/zeppelin-bot/zeppelin/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "zeppelin",
		Usage:   "discord automod daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"ZEPPELIN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "guild-config-dir",
			Usage:   "directory holding one YAML config file per guild",
			Value:   "data/zeppelin/guilds",
			EnvVars: []string{"ZEPPELIN_GUILD_CONFIG_DIR"},
		},
		&cli.StringFlag{
			Name:    "sets-json-path",
			Usage:   "file path of JSON file containing static word sets",
			EnvVars: []string{"ZEPPELIN_SETS_JSON_PATH"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkConfigCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "discord-token",
			Usage:    "bot token for the Discord gateway and REST API",
			Required: true,
			EnvVars:  []string{"ZEPPELIN_DISCORD_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/zeppelin/zeppelin.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-metadb-connections",
			EnvVars: []string{"MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OpenTelemetry spans for database queries",
			EnvVars: []string{"ZEPPELIN_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL; if unset, counters and cooldowns are kept in-process or in the database",
			EnvVars: []string{"ZEPPELIN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"ZEPPELIN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"ZEPPELIN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token required for mutating admin API endpoints; if unset, they are disabled",
			EnvVars: []string{"ZEPPELIN_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook for bot alerts",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "number of guild queue workers",
			Value:   16,
			EnvVars: []string{"ZEPPELIN_WORKERS"},
		},
		&cli.IntFlag{
			Name:    "max-queue-depth",
			Usage:   "maximum pending events per guild before new events are rejected",
			Value:   500,
			EnvVars: []string{"ZEPPELIN_MAX_QUEUE_DEPTH"},
		},
		&cli.Float64Flag{
			Name:    "discord-rate-limit",
			Usage:   "max Discord REST mutations per second issued by automod actions",
			Value:   20,
			EnvVars: []string{"ZEPPELIN_DISCORD_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "alert-rate-limit",
			Usage:   "max bot alerts per guild per minute",
			Value:   10,
			EnvVars: []string{"ZEPPELIN_ALERT_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := cliutil.SetupSlog(cliutil.LogOptions{LogLevel: cctx.String("log-level")})
		if err != nil {
			return err
		}

		shutdownOTEL, err := configOTEL(ctx, "zeppelin")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-metadb-connections"), cctx.Bool("db-tracing"))
		if err != nil {
			return err
		}

		srv, err := NewServer(
			db,
			Config{
				Logger:           logger,
				DiscordToken:     cctx.String("discord-token"),
				GuildConfigDir:   cctx.String("guild-config-dir"),
				SetsFileJSON:     cctx.String("sets-json-path"),
				RedisURL:         cctx.String("redis-url"),
				SlackWebhookURL:  cctx.String("slack-webhook-url"),
				AdminToken:       cctx.String("admin-token"),
				Bind:             cctx.String("bind"),
				Workers:          cctx.Int("workers"),
				MaxQueueDepth:    cctx.Int("max-queue-depth"),
				DiscordRateLimit: cctx.Float64("discord-rate-limit"),
				AlertRateLimit:   cctx.Int("alert-rate-limit"),
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run automod service: %w", err)
		}
		return nil
	},
}

var checkConfigCmd = &cli.Command{
	Name:      "check-config",
	Usage:     "parse guild config files and report any errors, without connecting to Discord",
	ArgsUsage: "<file>...",
	Action: func(cctx *cli.Context) error {
		sets := setstore.NewMemSetStore()
		if p := cctx.String("sets-json-path"); p != "" {
			if err := sets.LoadFromFileJSON(p); err != nil {
				return fmt.Errorf("loading sets: %w", err)
			}
		}
		paths := cctx.Args().Slice()
		if len(paths) == 0 {
			return fmt.Errorf("need at least one config file")
		}
		failed := 0
		for _, p := range paths {
			raw, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			gc, err := guildconfig.Parse(guildconfig.GuildIDFromPath(p), raw, sets)
			if err != nil {
				fmt.Printf("%s: %s\n", p, err)
				failed++
				continue
			}
			fmt.Printf("%s: ok (%d rules, %d counters)\n", p, len(gc.Rules), len(gc.Counters))
		}
		if failed > 0 {
			return fmt.Errorf("%d invalid config files", failed)
		}
		return nil
	},
}
