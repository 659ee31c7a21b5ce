package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"healthstack/internal/config"
	"healthstack/internal/domain"
	"healthstack/internal/infrastructure/broker"
	"healthstack/internal/logging"
	"healthstack/internal/notification"
	"healthstack/internal/worker"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load("notifier")
	if err != nil {
		logging.New("notifier", "info").WithError(err).Error("load config")
		os.Exit(1)
	}
	log := logging.New(cfg.ServiceName, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("notification worker stopped")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dedupe notification.Deduplicator
	if cfg.RedisURL != "" {
		rdb, err := notification.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, confirmation dedupe disabled")
		} else {
			defer rdb.Close()
			dedupe = notification.NewRedisDeduplicator(rdb, cfg.DedupeTTL)
		}
	}

	handler := notification.NewHandler(notification.NewLogNotifier(log), dedupe, log)
	topology := broker.Topology{
		Exchange:           cfg.RabbitMQ.Exchange,
		Queue:              cfg.NotificationQueue,
		RoutingKey:         domain.RoutingKeyOrderCreated,
		ConsumerTag:        cfg.ServiceName,
		DeadLetterExchange: cfg.DeadLetterExchange,
	}
	w := worker.NewNotificationWorker(
		broker.AMQPDialer(cfg.RabbitMQ.URL()),
		topology,
		handler,
		cfg.ConsumerRetryInterval,
		log,
	)

	log.WithFields(logrus.Fields{
		"queue":          topology.Queue,
		"retry_interval": cfg.ConsumerRetryInterval.String(),
		"dedupe":         dedupe != nil,
	}).Info("notifier starting")

	return w.Run(ctx)
}
