package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rteval-parser/internal/config"
	"github.com/JonMunkholm/rteval-parser/internal/database"
	"github.com/JonMunkholm/rteval-parser/internal/logging"
)

// app carries what every command needs once the root has loaded it.
type app struct {
	envFile string
	cfg     *config.Config
}

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands are registered here.
func RootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "rteval-parserd",
		Short:        "rteval-parserd registers submitted rteval reports in PostgreSQL.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env",
		"dotenv file overlaid on the environment, if it exists")

	cmd.AddCommand(
		runCmd(a),
		migrateCmd(a),
		queueCmd(a),
	)
	return cmd
}

// load applies the dotenv overlay, then reads and validates configuration.
func (a *app) load() error {
	// Overload overwrites existing env vars.
	if err := godotenv.Overload(a.envFile); err != nil {
		slog.Debug("no env file loaded, using environment variables", "file", a.envFile)
	} else {
		slog.Info("loaded env file (overwriting existing env vars)", "file", a.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	a.cfg = cfg
	return nil
}

func (a *app) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := database.Connect(ctx, a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return pool, nil
}
