package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentracing/opentracing-go"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/config"
	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/internal/database"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/repository"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
	"github.com/customeros/lenderinbox/server"
	"github.com/customeros/lenderinbox/services"
	"github.com/customeros/lenderinbox/services/events"
)

type runtime struct {
	cfg    *config.Config
	log    logger.Logger
	db     *gorm.DB
	closer io.Closer
}

func main() {
	app := &cli.App{
		Name:  "lenderinbox",
		Usage: "ingest lender replies from application mailboxes into submissions",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "run-once",
				Usage:  "Process unseen messages in every mailbox once and print the summary",
				Action: runOnce,
			},
			{
				Name:   "daemon",
				Usage:  "Watch every mailbox until interrupted",
				Action: daemon,
			},
			{
				Name:   "server",
				Usage:  "Start the HTTP server, scheduled runs and the mailbox daemon",
				Action: serve,
			},
			{
				Name:  "request-run",
				Usage: "Ask running instances to process mailboxes now",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Value: "manual"},
					&cli.StringFlag{Name: "application-id"},
				},
				Action: requestRun,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(withTracer bool) (*runtime, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is empty")
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	rt := &runtime{cfg: cfg, log: appLogger}
	if withTracer {
		tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
		if err != nil {
			return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
		}
		opentracing.SetGlobalTracer(tracer)
		rt.closer = closer
	}
	return rt, nil
}

func (rt *runtime) openDatabase() error {
	db, err := database.InitDatabase(rt.cfg.DatabaseConfig)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	rt.db = db
	return nil
}

func (rt *runtime) close() {
	if rt.closer != nil {
		_ = rt.closer.Close()
	}
	_ = rt.log.Sync()
}

func migrate(_ *cli.Context) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.openDatabase(); err != nil {
		return err
	}
	if err := database.Migrate(rt.db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	rt.log.Info("Database migration completed successfully")
	return nil
}

func runOnce(c *cli.Context) error {
	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.openDatabase(); err != nil {
		return err
	}
	svcs, err := services.InitServices(rt.cfg, rt.log, repository.InitRepositories(rt.db))
	if err != nil {
		return err
	}
	defer svcs.EventsService.Close()

	ctx, cancel := context.WithTimeout(c.Context, rt.cfg.ListenerConfig.RunTimeout)
	defer cancel()
	ctx = utils.SetAppSourceInContext(ctx, "cli")

	summary, err := svcs.ListenerService.RunOnce(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

func daemon(c *cli.Context) error {
	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.openDatabase(); err != nil {
		return err
	}
	svcs, err := services.InitServices(rt.cfg, rt.log, repository.InitRepositories(rt.db))
	if err != nil {
		return err
	}
	defer svcs.EventsService.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.log.Info("lenderinbox daemon starting up...")
	return svcs.ListenerService.Run(ctx)
}

func serve(_ *cli.Context) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.openDatabase(); err != nil {
		return err
	}

	rt.log.Info("lenderinbox starting up...")
	srv, err := server.NewServer(rt.cfg, rt.log, rt.db)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	rt.log.Info("Shutdown complete")
	return nil
}

func requestRun(c *cli.Context) error {
	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.cfg.AppConfig.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required to request a run")
	}
	publisher, err := events.NewRabbitMQPublisher(rt.cfg.AppConfig.RabbitMQURL, rt.log, events.DefaultPublisherConfig())
	if err != nil {
		return err
	}
	defer publisher.Close()

	ctx := utils.SetAppSourceInContext(c.Context, "cli")
	return publisher.PublishRunRequested(ctx, dto.RunRequested{
		Reason:        c.String("reason"),
		ApplicationID: c.String("application-id"),
	})
}
