package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/identity"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/ledger"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/platform"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/relay"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/tickets"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "abilitywarsd",
		Usage:   "community moderation service (ban ledger, tickets, game relay)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/abilitywarsd/moderation.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		migrateCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the relay API",
			Value:   ":3820",
			EnvVars: []string{"ABILITYWARS_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3821",
			EnvVars: []string{"ABILITYWARS_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:     "relay-secret",
			Usage:    "shared secret expected from the game server",
			Required: true,
			EnvVars:  []string{"ABILITYWARS_RELAY_SECRET"},
		},
		&cli.StringFlag{
			Name:    "user-api-host",
			Usage:   "base URL of the game's user API",
			Value:   "https://users.roproxy.com",
			EnvVars: []string{"ABILITYWARS_USER_API_HOST"},
		},
		&cli.IntFlag{
			Name:    "user-api-rate-limit",
			Usage:   "max requests per second to the user API",
			Value:   10,
			EnvVars: []string{"ABILITYWARS_USER_API_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "identity-cache-size",
			Value:   50_000,
			EnvVars: []string{"ABILITYWARS_IDENTITY_CACHE_SIZE"},
		},
		&cli.StringFlag{
			Name:    "gateway-host",
			Usage:   "base URL of the bot gateway's REST bridge",
			EnvVars: []string{"ABILITYWARS_GATEWAY_HOST"},
		},
		&cli.StringFlag{
			Name:    "gateway-secret",
			Usage:   "bearer token for the bot gateway",
			EnvVars: []string{"ABILITYWARS_GATEWAY_SECRET"},
		},
		&cli.StringFlag{
			Name:    "report-category",
			Usage:   "channel category for report tickets",
			EnvVars: []string{"ABILITYWARS_REPORT_CATEGORY"},
		},
		&cli.StringFlag{
			Name:    "appeal-category",
			Usage:   "channel category for ban appeal tickets",
			EnvVars: []string{"ABILITYWARS_APPEAL_CATEGORY"},
		},
		&cli.StringFlag{
			Name:    "dispute-category",
			Usage:   "channel category for ban dispute tickets",
			EnvVars: []string{"ABILITYWARS_DISPUTE_CATEGORY"},
		},
		&cli.StringFlag{
			Name:    "blacklist-appeal-category",
			Usage:   "channel category for blacklist appeal tickets",
			EnvVars: []string{"ABILITYWARS_BLACKLIST_APPEAL_CATEGORY"},
		},
		&cli.StringFlag{
			Name:    "mod-log-channel",
			Usage:   "channel receiving command follow-up notices",
			EnvVars: []string{"ABILITYWARS_MOD_LOG_CHANNEL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		db, err := SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		led := ledger.NewService(db, logger)
		queue := relay.NewQueue(led, logger)

		resolver := identity.NewCachedResolver(
			identity.NewHTTPResolver(cctx.String("user-api-host"), cctx.Int("user-api-rate-limit"), logger),
			cctx.Int("identity-cache-size"),
			time.Hour*24,
			time.Minute*5,
		)

		if cctx.String("gateway-host") == "" {
			return fmt.Errorf("gateway-host is required to run the ticket service")
		}
		bridge := platform.NewBridgeClient(cctx.String("gateway-host"), cctx.String("gateway-secret"), logger)

		ticketSvc := tickets.NewService(db, bridge, resolver, queue, tickets.Config{
			Categories: map[tickets.Kind]string{
				tickets.KindReport:          cctx.String("report-category"),
				tickets.KindAppeal:          cctx.String("appeal-category"),
				tickets.KindDispute:         cctx.String("dispute-category"),
				tickets.KindBlacklistAppeal: cctx.String("blacklist-appeal-category"),
			},
			ModLogChannelID: cctx.String("mod-log-channel"),
		}, logger)

		if err := ticketSvc.Load(ctx); err != nil {
			return fmt.Errorf("loading ticket cache: %w", err)
		}
		if swept, err := ticketSvc.SweepDead(ctx); err != nil {
			return err
		} else if len(swept) > 0 {
			logger.Info("swept dead tickets at startup", "count", len(swept))
		}

		srv := relay.NewServer(queue, cctx.String("relay-secret"), logger)
		srv.OpenTicketCount = ticketSvc.OpenCount

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(cctx.String("bind"))
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "create or update database schema and exit",
	Action: func(cctx *cli.Context) error {
		_, err := SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		slog.Info("database schema up to date")
		return nil
	},
}
