package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ninjabot/ninjaguard/automod/capture"
	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/policy"

	"github.com/carlmjohnson/versioninfo"
	"github.com/disgoorg/snowflake/v2"
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
		Name:    "ninjaguard",
		Usage:   "chat moderation daemon (spam, invite links, leaked stream keys)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"NINJAGUARD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "policy-file",
			Usage:   "TOML file with moderation policy overrides; reloaded on change",
			EnvVars: []string{"NINJAGUARD_POLICY_FILE"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkPolicyCmd,
		replayCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cctx.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger, nil
}

// Engine defaults, overridden by the policy file if one is configured
func loadPolicy(cctx *cli.Context) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if p := cctx.String("policy-file"); p != "" {
		return policy.Load(p, cfg)
	}
	return cfg, nil
}

func parseSnowflakes(vals []string) ([]snowflake.ID, error) {
	var out []snowflake.ID
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		id, err := snowflake.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ID %q: %w", v, err)
		}
		out = append(out, id)
	}
	return out, nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "source",
			Usage:   "where messages come from: 'discord' (gateway) or 'nats'",
			Value:   "discord",
			EnvVars: []string{"NINJAGUARD_SOURCE"},
		},
		&cli.StringFlag{
			Name:    "discord-token",
			Usage:   "bot token for the Discord gateway and REST API",
			EnvVars: []string{"DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "discord-guild-id",
			Usage:   "the single guild (server) to moderate",
			EnvVars: []string{"DISCORD_GUILD_ID"},
		},
		&cli.StringFlag{
			Name:    "discord-log-channel-id",
			Usage:   "channel receiving moderation reports",
			EnvVars: []string{"DISCORD_LOG_CHANNEL_ID"},
		},
		&cli.StringSliceFlag{
			Name:    "moderator-role-id",
			Usage:   "role whose members are never moderated (repeatable)",
			EnvVars: []string{"DISCORD_MODERATOR_ROLE_IDS"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server for the message bridge",
			Value:   "nats://127.0.0.1:4222",
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-subject",
			Usage:   "subject carrying JSON message events",
			Value:   "chat.messages",
			EnvVars: []string{"NATS_SUBJECT"},
		},
		&cli.StringFlag{
			Name:    "nats-queue",
			Usage:   "optional queue group for the message subject",
			EnvVars: []string{"NATS_QUEUE"},
		},
		&cli.StringFlag{
			Name:    "nats-command-prefix",
			Usage:   "subject prefix for moderation commands sent back to the chat layer",
			Value:   "chat.moderation",
			EnvVars: []string{"NATS_COMMAND_PREFIX"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis for counters and captured message lines; in-process memory if unset",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringSliceFlag{
			Name:    "memcached-server",
			Usage:   "memcached servers for captured message lines (overrides redis for lines)",
			EnvVars: []string{"MEMCACHED_SERVERS"},
		},
		&cli.StringFlag{
			Name:    "report-webhook-url",
			Usage:   "also post reports to this incoming webhook",
			EnvVars: []string{"NINJAGUARD_REPORT_WEBHOOK_URL", "SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "report-webhook-format",
			Usage:   "webhook payload format: 'slack' or 'discord'",
			Value:   "slack",
			EnvVars: []string{"NINJAGUARD_REPORT_WEBHOOK_FORMAT"},
		},
		&cli.IntFlag{
			Name:    "parallelism",
			Usage:   "max messages processed concurrently",
			Value:   8,
			EnvVars: []string{"NINJAGUARD_PARALLELISM"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin API",
			Value:   ":3999",
			EnvVars: []string{"NINJAGUARD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"NINJAGUARD_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownOTEL, err := configOTEL(ctx, "ninjaguard")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		modCfg, err := loadPolicy(cctx)
		if err != nil {
			return err
		}

		guildID, err := parseSnowflakes([]string{cctx.String("discord-guild-id")})
		if err != nil {
			return fmt.Errorf("discord-guild-id: %w", err)
		}
		logChannel, err := parseSnowflakes([]string{cctx.String("discord-log-channel-id")})
		if err != nil {
			return fmt.Errorf("discord-log-channel-id: %w", err)
		}
		modRoles, err := parseSnowflakes(cctx.StringSlice("moderator-role-id"))
		if err != nil {
			return fmt.Errorf("moderator-role-id: %w", err)
		}

		srv, err := NewServer(ctx, Config{
			Source:            cctx.String("source"),
			DiscordToken:      cctx.String("discord-token"),
			GuildID:           first(guildID),
			LogChannelID:      first(logChannel),
			ModeratorRoles:    modRoles,
			NatsURL:           cctx.String("nats-url"),
			NatsSubject:       cctx.String("nats-subject"),
			NatsQueue:         cctx.String("nats-queue"),
			NatsCommandPrefix: cctx.String("nats-command-prefix"),
			RedisURL:          cctx.String("redis-url"),
			MemcachedServers:  cctx.StringSlice("memcached-server"),
			WebhookURL:        cctx.String("report-webhook-url"),
			WebhookFormat:     cctx.String("report-webhook-format"),
			Parallelism:       cctx.Int("parallelism"),
			PolicyFile:        cctx.String("policy-file"),
			Moderation:        modCfg,
			Logger:            logger,
		})
		if err != nil {
			return fmt.Errorf("failed to construct server: %v", err)
		}

		return srv.Run(ctx, cctx.String("bind"), cctx.String("metrics-listen"))
	},
}

func first(ids []snowflake.ID) snowflake.ID {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

var checkPolicyCmd = &cli.Command{
	Name:      "check-policy",
	Usage:     "validate a policy file and print the effective moderation policy",
	ArgsUsage: "<file>",
	Action: func(cctx *cli.Context) error {
		path := cctx.Args().First()
		if path == "" {
			path = cctx.String("policy-file")
		}
		if path == "" {
			return fmt.Errorf("need a policy file to check")
		}
		cfg, err := policy.Load(path, engine.DefaultConfig())
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

var replayCmd = &cli.Command{
	Name:      "replay",
	Usage:     "run a captured message stream through the moderation policy and summarize the decisions",
	ArgsUsage: "<capture-file>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected a single capture file")
		}
		if _, err := configLogger(cctx); err != nil {
			return err
		}
		cfg, err := loadPolicy(cctx)
		if err != nil {
			return err
		}
		c, err := capture.Load(cctx.Args().First())
		if err != nil {
			return err
		}
		sum, err := capture.Replay(cctx.Context, cfg, c)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}
