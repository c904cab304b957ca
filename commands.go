package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"pneumatic/analytics"
	"pneumatic/bizerror"
	"pneumatic/common"
	"pneumatic/domain/checklist"
	"pneumatic/domain/guest"
	"pneumatic/domain/workflow"
	"pneumatic/es"
	"pneumatic/event"
	"pneumatic/infra/tracing"
	"pneumatic/migrations"
	"pneumatic/notification"
	"pneumatic/outbox"
	"pneumatic/persistence"
	"pneumatic/scheduler"
	"pneumatic/session"
	"pneumatic/webhook"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the http api, the outbox consumers and the scheduled jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "Listen address of the http api",
				Value:   ":80",
				Sources: cli.EnvVars("HTTP_ADDR"),
			},
			&cli.StringFlag{
				Name:    "outbox-transport",
				Usage:   "Outbox transport (gochannel, kafka)",
				Value:   outbox.TransportGoChannel,
				Sources: cli.EnvVars("OUTBOX_TRANSPORT"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated kafka brokers, required by the kafka transport",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "elasticsearch-url",
				Usage:   "Elasticsearch url used to index workflow events, indexing is disabled when empty",
				Sources: cli.EnvVars("ELASTICSEARCH_URL"),
			},
			&cli.StringFlag{
				Name:    "webhook-rate",
				Usage:   "Maximum webhook deliveries per second",
				Value:   "10",
				Sources: cli.EnvVars("WEBHOOK_RATE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Report spans to jaeger, configured by the JAEGER_* variables",
				Sources: cli.EnvVars("TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			common.SetupLogger(command.String("log-level"), command.Bool("log-json"))
			logrus.Info("service start")

			webhookRate, err := strconv.ParseFloat(command.String("webhook-rate"), 64)
			if err != nil || webhookRate <= 0 {
				return fmt.Errorf("invalid webhook rate '%s'", command.String("webhook-rate"))
			}

			ds, err := startDataSource()
			if err != nil {
				return err
			}
			defer ds.Stop()
			if err := migrations.Migrate(ds.GormDB(ctx)); err != nil {
				return fmt.Errorf("database migration failed: %w", err)
			}

			if command.Bool("tracing") {
				closer, err := tracing.SetupGlobalTracer("pneumatic")
				if err != nil {
					return fmt.Errorf("setup tracer failed: %w", err)
				}
				defer closer.Close()
			}

			if url := command.String("elasticsearch-url"); url != "" {
				if _, err := es.CreateClient(url); err != nil {
					return fmt.Errorf("create elasticsearch client failed: %w", err)
				}
				event.EventHandlers = []event.EventHandler{event.IndexEventHandler}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := outbox.NewLogrusLoggerAdapter(logrus.WithField("component", "outbox"))
			var brokers []string
			if s := command.String("kafka-brokers"); s != "" {
				brokers = strings.Split(s, ",")
			}
			publisher, subscriber, err := outbox.NewTransport(outbox.TransportConfig{
				Transport:    command.String("outbox-transport"),
				KafkaBrokers: brokers,
			}, logger)
			if err != nil {
				return err
			}
			defer publisher.Close()

			deliverer := webhook.NewDeliverer(tracing.NewTracingClient(), webhookRate)
			router, err := outbox.NewRouter(subscriber, logger,
				outbox.Consumer{Name: "notifications", Topic: outbox.TopicNotifications, Handle: notification.Consume},
				outbox.Consumer{Name: "webhooks", Topic: outbox.TopicWebhooks, Handle: deliverer.Consume},
				outbox.Consumer{Name: "analytics", Topic: outbox.TopicAnalytics, Handle: analytics.Consume},
			)
			if err != nil {
				return err
			}
			if err := outbox.RunRouter(ctx, router); err != nil {
				return fmt.Errorf("start outbox router failed: %w", err)
			}
			outbox.ActivePublisher = publisher

			crontab, err := scheduler.StartCron()
			if err != nil {
				return fmt.Errorf("start scheduler failed: %w", err)
			}
			defer crontab.Stop()

			engine := gin.Default()
			engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling())
			engine.GET("/", func(c *gin.Context) {
				c.String(http.StatusOK, "pneumatic")
			})
			workflow.RegisterWorkflowsRestAPI(engine, guest.AuthFilter())
			checklist.RegisterChecklistRestAPI(engine, session.GatewayAuthFilter())
			guest.RegisterGuestTokensRestAPI(engine, session.GatewayAuthFilter())
			notification.RegisterNotificationsRestAPI(engine, session.GatewayAuthFilter())

			server := &http.Server{Addr: command.String("http-addr"), Handler: engine}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logrus.WithError(err).Error("http server shutdown failed")
				}
			}()

			logrus.WithField("addr", server.Addr).Info("http server listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			logrus.Info("service stopped")
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the database schema and exit",
		Action: func(ctx context.Context, command *cli.Command) error {
			common.SetupLogger(command.String("log-level"), command.Bool("log-json"))

			ds, err := startDataSource()
			if err != nil {
				return err
			}
			defer ds.Stop()

			if err := migrations.Migrate(ds.GormDB(ctx)); err != nil {
				return fmt.Errorf("database migration failed: %w", err)
			}
			return nil
		},
	}
}

// startDataSource connects the database configured by DB_DRIVER_TYPE and DB_DRIVER_ARGS,
// creating the mysql database first when it is missing.
func startDataSource() (*persistence.DataSourceManager, error) {
	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("parse database config failed: %w", err)
	}

	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			return nil, fmt.Errorf("failed to prepare database: %w", err)
		}
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	persistence.ActiveDataSourceManager = ds
	return ds, nil
}
