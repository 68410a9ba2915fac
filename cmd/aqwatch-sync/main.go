package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aqwatch/aqwatch/pkg/alerts"
	"github.com/aqwatch/aqwatch/pkg/cmd"
	"github.com/aqwatch/aqwatch/pkg/ingest"
	"github.com/aqwatch/aqwatch/pkg/log"
	"github.com/aqwatch/aqwatch/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const defaultWindow = 24 * time.Hour

func main() {
	logger := log.WithModule("sync")

	command := &cli.Command{
		Name:                  "aqwatch-sync",
		Usage:                 "Pull measurements from the upstream source and evaluate alert rules",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "source-api-url",
				Usage:    "Base URL of the upstream air quality API",
				Required: true,
				Sources:  cli.EnvVars("SOURCE_API_URL"),
			},
			&cli.StringFlag{
				Name:    "source-api-key",
				Usage:   "API key for the upstream source",
				Sources: cli.EnvVars("SOURCE_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for recurring sync; empty runs a single pass",
				Sources: cli.EnvVars("SYNC_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "window",
				Usage:   "Trailing window of measurements to evaluate after each sync",
				Value:   defaultWindow,
				Sources: cli.EnvVars("SYNC_WINDOW"),
			},
			&cli.IntFlag{
				Name:    "demo-rules",
				Usage:   "Ensure up to N demo alert rules from stored measurements (0 disables)",
				Sources: cli.EnvVars("DEMO_RULES"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing aqwatch sync")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			graph := workflow.NewGraphService(persistence.WorkflowRepository())
			grants := workflow.NewGrantService(persistence.WorkflowRepository())

			_, err := workflow.SeedAlertWorkflow(ctx, graph, grants, logger)
			if err != nil {
				return err
			}

			client := ingest.NewClient(command.String("source-api-url"), command.String("source-api-key"))

			runner := &Runner{
				syncer:     ingest.NewSyncer(client, persistence, logger),
				evaluation: alerts.NewEvaluationService(persistence, graph, nil, logger),
				seeder:     alerts.NewDemoSeeder(persistence, logger),
				logger:     logger,
				window:     command.Duration("window"),
				demoRules:  command.Int("demo-rules"),
			}

			if schedule := command.String("schedule"); schedule != "" {
				return runner.RunScheduled(ctx, schedule)
			}

			return runner.RunOnce(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
