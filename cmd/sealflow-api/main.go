package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sealflow/internal/config"
	"sealflow/internal/database"
	"sealflow/internal/logging"
	"sealflow/internal/notify"
	"sealflow/internal/reminder"
	"sealflow/internal/server"
	"sealflow/internal/signing"
	"sealflow/internal/storage"
	"sealflow/internal/workflow"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "sealflow-api",
		Short: "Sealflow document signing service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Postgres connection string")
	cmd.PersistentFlags().String("migrations-url", defaults.GetString("database.migrations_url"), "Migrations source URL")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("nats-url", defaults.GetString("nats.url"), "NATS server URL for reminder events")
	cmd.PersistentFlags().Duration("reminder-poll-interval", defaults.GetDuration("reminder.poll_interval"), "Reminder scan interval")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "database.migrations_url", "migrations-url")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "nats.url", "nats-url")
	bindFlag(cmd, "reminder.poll_interval", "reminder-poll-interval")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := database.New(appConfig.DatabaseDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RunMigrations(appConfig.MigrationsURL); err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx, appConfig, logger)
	if err != nil {
		return err
	}

	sender, closeSender, err := newSender(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	assembler := signing.NewAssembler(signing.OpenPDF, logger)
	signingService := workflow.NewService(store, blobs, assembler, logger)
	scheduler := reminder.NewScheduler(store, sender, logger,
		reminder.WithPollInterval(appConfig.ReminderPollInterval),
		reminder.WithSendTimeout(appConfig.ReminderSendTimeout),
	)

	apiServer := server.New(appConfig, signingService, scheduler, store, logger)
	httpServer := apiServer.HTTPServer()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(signalCtx)
	go expiryLoop(signalCtx, signingService, appConfig.ReminderPollInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newBlobStore picks S3 when a bucket is configured, otherwise an
// in-memory store for local runs.
func newBlobStore(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (storage.BlobStore, error) {
	if cfg.S3Bucket == "" {
		logger.Warn("no S3 bucket configured, using in-memory blob store")
		return storage.NewMemBlobStore(), nil
	}
	return storage.NewS3BlobStore(ctx, storage.S3Config{
		Bucket:           cfg.S3Bucket,
		Region:           cfg.S3Region,
		Endpoint:         cfg.S3Endpoint,
		EncryptionKeyHex: cfg.S3EncryptionKey,
	})
}

// newSender publishes reminders to NATS when configured, with a
// log-only fallback.
func newSender(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (notify.Sender, func(), error) {
	if cfg.NATSURL == "" {
		logger.Warn("no NATS URL configured, reminders will only be logged")
		return notify.NewLogSender(logger), func() {}, nil
	}
	sender, err := notify.NewNATSSender(ctx, cfg.NATSURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return sender, sender.Close, nil
}

// expiryLoop periodically sweeps workflows past their deadline into the
// stored expired state.
func expiryLoop(ctx context.Context, svc *workflow.Service, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.ExpireOverdue(ctx); err != nil {
				logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}
