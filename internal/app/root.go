package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailtriage/pkg/config"
	"mailtriage/pkg/db"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/otel"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

var (
	configEnv string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:           "mailtriage",
	Short:         "AI email triage backend",
	Long:          "Syncs Gmail into a Postgres cache, triages new mail with Gemini and bridges replies and calendar scheduling.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", config.GetConfigEnv(), "config environment (local, production)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.GetEnv("CONFIG_DIR", "config"), "directory holding base.yaml and <env>.yaml")

	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime holds what every command needs.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	close  func()
}

func bootstrap(ctx context.Context, component string) (*runtime, error) {
	cfg, err := config.Load(configEnv, configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With(zap.String("component", component))

	shutdownTracing, err := otel.Init(cfg.Otel, Version, log)
	if err != nil {
		log.Warn("OpenTelemetry init failed, continuing without tracing", zap.Error(err))
		shutdownTracing = func() {}
	}

	pool, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		shutdownTracing()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return &runtime{
		cfg:    cfg,
		logger: log,
		pool:   pool,
		close: func() {
			pool.Close()
			shutdownTracing()
			_ = log.Sync()
		},
	}, nil
}
