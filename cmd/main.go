package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shopify/sarama"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/practice-sem-2/chat-service/internal/broadcast"
	"github.com/practice-sem-2/chat-service/internal/config"
	"github.com/practice-sem-2/chat-service/internal/server"
	storage "github.com/practice-sem-2/chat-service/internal/storages"
	usecase "github.com/practice-sem-2/chat-service/internal/usecases"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	healthInterval  = 5 * time.Second
	shutdownTimeout = 15 * time.Second
)

func initLogger(level string) *logrus.Logger {

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
		logger.
			WithField("log_level", level).
			Warning("specified invalid log level")
	} else {
		logger.SetLevel(logLevel)
		logger.
			WithField("log_level", level).
			Infof("specified %s log level", logLevel.String())
	}

	return logger
}

func initDB(dsn string, logger *logrus.Logger) *sqlx.DB {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		logger.Fatalf("can't connect to database: %s", err.Error())
	}

	err = db.Ping()

	if err != nil {
		logger.Fatalf("database ping failed: %s", err.Error())
	}

	logger.Info("successfully connected to database")
	return db
}

func runMigrations(dir, dsn string, logger *logrus.Logger) {
	m, err := migrate.New(dir, dsn)
	if err != nil {
		logger.Fatalf("can't open migrations: %s", err.Error())
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("database schema is up to date")
		return
	}
	if err != nil {
		logger.Fatalf("migration failed: %s", err.Error())
	}
	logger.Info("database schema migrated")
}

func initProducer(brokers []string, logger *logrus.Logger) sarama.SyncProducer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	kafkaConfig.Producer.Timeout = 10 * time.Second
	kafkaConfig.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, kafkaConfig)

	if err != nil {
		logger.WithError(err).Fatalf("can't create producer")
	}

	return producer
}

func initAuthenticator(cfg *config.Config, users server.UserResolver, logger *logrus.Logger) *server.Authenticator {
	if cfg.JWTPublicKeyPath != "" {
		auth, err := server.NewRSAAuthenticatorFromFile(users, cfg.JWTPublicKeyPath)
		if err != nil {
			logger.Fatalf("verifier can't read public key: %s", err.Error())
		}
		return auth
	}
	logger.Warn("JWT_PUBLIC_KEY_PATH is not set, verifying tokens with JWT_SECRET")
	return server.NewHMACAuthenticator(users, []byte(cfg.JWTSecret))
}

func main() {
	var host string
	var port int
	var logLevel string

	flag.IntVar(&port, "port", 80, "port on which server will be started")
	flag.StringVar(&host, "host", "0.0.0.0", "host on which server will be started")
	flag.StringVar(&logLevel, "log", "info", "log level")

	flag.Parse()

	logger := initLogger(logLevel)

	if err := config.LoadDotEnv(); err != nil {
		logger.WithError(err).Warn("can't load .env file")
	}
	viper.AutomaticEnv()
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Fatalf("invalid configuration: %s", err.Error())
	}

	db := initDB(cfg.DatabaseDSN, logger)
	defer func(db *sqlx.DB) {
		err := db.Close()
		if err != nil {
			logger.Errorf("during db connection close an error occurred: %s", err.Error())
		}
	}(db)

	if cfg.MigrationsDir != "" {
		runMigrations(cfg.MigrationsDir, cfg.MigrationsDSN, logger)
	}

	hub := broadcast.NewHub(logger.WithField("component", "hub"))
	presence := broadcast.NewPresenceRegistry(hub, broadcast.PresenceTopic)
	publishers := broadcast.MultiPublisher{hub}

	if len(cfg.KafkaBrokers) > 0 {
		producer := initProducer(cfg.KafkaBrokers, logger)
		updates := storage.NewUpdatesStore(producer, &storage.UpdatesStoreConfig{
			UpdatesTopic: cfg.UpdatesTopic,
		})
		defer func() {
			if err := updates.Close(); err != nil {
				logger.WithError(err).Error("can't close kafka producer")
			}
		}()
		publishers = append(publishers, updates)
		logger.WithField("topic", cfg.UpdatesTopic).Info("relaying updates to kafka")
	} else {
		logger.Info("KAFKA_BROKERS is not set, updates stay in process")
	}

	store := storage.NewRegistry(db)
	broadcaster := broadcast.NewBroadcaster(publishers, logger.WithField("component", "broadcaster"))

	chatsUsecase := usecase.NewChatsUsecase(store)
	messagesUsecase := usecase.NewMessagesUsecase(store, broadcaster, usecase.PageConfig{
		DefaultSize: cfg.DefaultPageSize,
		MaxSize:     cfg.MaxPageSize,
	}, logger.WithField("component", "messages"))
	usersUsecase := usecase.NewUsersUsecase(store)

	auth := initAuthenticator(cfg, usersUsecase, logger)

	srv := server.NewServer(chatsUsecase, messagesUsecase, usersUsecase, hub, presence, auth, server.Config{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		WebhookSecret:  cfg.WebhookSecret,
	}, logger.WithField("component", "server"))

	address := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer stop()

	health := server.NewHealthServer(db, healthInterval, logger.WithField("component", "health"))
	healthLis, err := net.Listen("tcp", cfg.HealthAddress)
	if err != nil {
		logger.Fatalf("can't listen to health address: %s", err.Error())
	}
	go health.Watch(ctx)
	go func() {
		logger.Infof("health service listening on %s", cfg.HealthAddress)
		if err := health.Serve(healthLis); err != nil {
			logger.WithError(err).Error("health serving error")
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logger.Info("shutdown signal caught. Gracefully shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		health.GracefulStop()
		hub.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("http shutdown failed")
		}
	}()

	logger.Infof("start listening on %s", address)
	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http serving error: %s", err.Error())
	}
	<-done
}
