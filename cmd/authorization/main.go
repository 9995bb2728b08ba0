package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/babisque/ecommerce-auth/config"
	"github.com/babisque/ecommerce-auth/database"
	"github.com/babisque/ecommerce-auth/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		envFile    string
	)

	root := &cobra.Command{
		Use:          "authorization",
		Short:        "User identity and token service",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AUTH_CONFIG"), "YAML config file (env AUTH_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before AUTH_* variables")

	load := func() (*config.Config, error) {
		return config.Load(configPath, envFile)
	}

	root.AddCommand(newServeCommand(load), newMigrateCommand(load))
	return root
}

func newServeCommand(load func() (*config.Config, error)) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			logger := app.GetLogger("app")
			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening on %s", cfg.HTTP.Addr)
				errCh <- app.Server().Listen(cfg.HTTP.Addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			return app.Server().ShutdownWithTimeout(shutdownTimeout)
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	return cmd
}

func newMigrateCommand(load func() (*config.Config, error)) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx := cmd.Context()
			db, err := database.Open(ctx, database.Config{
				Driver: cfg.Database.Driver,
				DSN:    cfg.Database.DSN,
			}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				err = database.Rollback(ctx, db, logger)
			} else {
				err = database.Migrate(ctx, db, logger)
			}
			if err != nil {
				return err
			}

			version, err := database.Version(ctx, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the latest migration")
	return cmd
}
