package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/app"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/config"
	applogger "github.com/eti-roma/verte-culture-connect-sub000/internal/logger"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"
	"github.com/eti-roma/verte-culture-connect-sub000/pkg/rabbitmq"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// Global flags
	configFile string
	accessLog  bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "verte",
	Short: "Verte Culture Connect API server",
	Long: `Backend for hydroponic fodder producers: sign-in by email or phone passcode,
culture records, photo diagnosis and notifications.

Settings come from defaults, then the --config file, then environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return err
		}
		if logger, err = applogger.New(cfg.LogLevel, cfg.LogDevelopment); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the disease catalog and the training modules",
	RunE:  runSeed,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a config file (yaml, json, toml or env)")
	serveCmd.Flags().BoolVar(&accessLog, "access-log", true, "log every HTTP request")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openDatabase() (*gorm.DB, error) {
	db, err := repositories.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := repositories.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// connectBroker dials RabbitMQ and falls back to in-process queues when it is unreachable.
func connectBroker() rabbitmq.Broker {
	client, err := rabbitmq.NewClient(rabbitmq.Config{
		URL:    cfg.RabbitMQURL,
		Queues: []string{rabbitmq.QueueAuthMessages, rabbitmq.QueueNotifications},
	}, logger.Named("rabbitmq"))
	if err != nil {
		logger.Warn("rabbitmq unavailable, using in-process queues", zap.Error(err))
		return rabbitmq.NewInProcess(1024)
	}
	return client
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	broker := connectBroker()
	defer broker.Close()

	a, err := app.New(app.Options{
		Config:    cfg,
		DB:        db,
		Broker:    broker,
		Logger:    logger,
		AccessLog: accessLog,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := a.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Listen(cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	if err := a.Shutdown(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("server gracefully stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if _, err := openDatabase(); err != nil {
		return err
	}
	logger.Info("database migrated", zap.String("driver", cfg.DatabaseDriver))
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	n, err := seedCatalog(commandContext(cmd), db, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d rows seeded\n", n)
	return nil
}
