package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthstack/internal/config"
	"healthstack/internal/database"
	"healthstack/internal/infrastructure/broker"
	"healthstack/internal/infrastructure/catalog"
	"healthstack/internal/logging"
	"healthstack/internal/repo"
	"healthstack/internal/server"
	"healthstack/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "orderd",
		Short:        "order API: prices, stores and announces orders",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		serveCommand(),
		migrateCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	var store string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP order API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("orderd")
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, store)
		},
	}
	cmd.Flags().StringVar(&store, "store", "postgres", "order store: postgres or memory")
	return cmd
}

func serve(parent context.Context, cfg config.Config, store string) error {
	log := logging.New(cfg.ServiceName, cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		orders repo.OrderRepo
		health server.HealthChecker
	)
	switch store {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL (or BLUEPRINT_DB_*) is required for --store=postgres")
		}
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("close database")
			}
			log.Info("disconnected from database")
		}()
		orders = repo.NewOrderRepo(db.DB())
		health = db
	case "memory":
		log.Warn("using in-memory order store; orders are lost on exit")
		orders = repo.NewMemoryOrderRepo()
		health = server.InMemoryHealth
	default:
		return fmt.Errorf("unknown --store %q", store)
	}

	publisher := broker.NewAMQPPublisher(broker.AMQPDialer(cfg.RabbitMQ.URL()), cfg.RabbitMQ.Exchange, cfg.PublishTimeout, log)
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		_ = publisher.Run(pubCtx)
	}()

	orderService := service.NewOrderService(
		orders,
		catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout),
		publisher,
		log,
	)
	httpServer := server.NewServer(server.New(cfg.HTTPPort, orderService, health, cfg.CORSOrigins, log))

	// Run graceful shutdown in a separate goroutine
	done := make(chan struct{})
	go gracefulShutdown(ctx, httpServer, done, log)

	log.WithFields(logrus.Fields{
		"port":     cfg.HTTPPort,
		"store":    store,
		"exchange": cfg.RabbitMQ.Exchange,
	}).Info("http server starting")
	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-done
		stopPublisher()
		<-pubDone
		return fmt.Errorf("http server error: %w", err)
	}

	// Wait for the graceful shutdown to complete
	<-done
	// In-flight requests are drained, so nothing publishes any more.
	stopPublisher()
	<-pubDone
	log.Info("graceful shutdown complete")
	return nil
}

func gracefulShutdown(ctx context.Context, srv *http.Server, done chan<- struct{}, log *logrus.Entry) {
	defer close(done)
	<-ctx.Done()

	log.Info("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
}

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back the order schema",
	}
	cmd.AddCommand(
		migrateDirectionCommand(database.Up, "migrate all the way up"),
		migrateDirectionCommand(database.Down, "roll back every migration"),
	)
	return cmd
}

func migrateDirectionCommand(dir database.Direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(dir),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("orderd")
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL (or BLUEPRINT_DB_*) is required")
			}
			log := logging.New(cfg.ServiceName, cfg.LogLevel)

			changed, err := database.Migrate(cfg.DatabaseURL, dir)
			if err != nil {
				return err
			}
			if !changed {
				log.Info("no change in migration")
				return nil
			}
			log.WithField("direction", string(dir)).Info("migrated")
			return nil
		},
	}
}
