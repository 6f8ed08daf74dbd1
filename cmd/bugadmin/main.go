// Command bugadmin performs administrative tasks against the bug tracker
// database: schema migrations and account management, including role
// changes, which are not reachable over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/bug-tracker/internal/config"
	"github.com/spec-kit/bug-tracker/internal/observability"
	"github.com/spec-kit/bug-tracker/internal/persistence"
	"github.com/spec-kit/bug-tracker/internal/repository"
	"github.com/spec-kit/bug-tracker/internal/service"
)

var (
	dsnFlag    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "bugadmin",
	Short:         "Administer the bug tracker database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Postgres DSN (defaults to POSTGRES_DSN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddCommand(migrateCmd, userCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// adminEnv holds what every subcommand needs.
type adminEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
	users  *service.UserService
}

func openEnv(ctx context.Context) (*adminEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dsnFlag != "" {
		cfg.Postgres.DSN = dsnFlag
	}
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("a Postgres DSN is required (--dsn or POSTGRES_DSN)")
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &adminEnv{
		cfg:    cfg,
		logger: logger,
		pg:     pg,
		users:  service.NewUserService(repository.NewUserRepository(pg.PoolHandle()), cfg.Auth.BcryptCost, logger),
	}, nil
}

func (e *adminEnv) Close() {
	e.pg.Close()
	_ = e.logger.Sync()
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = env.cfg.Postgres.MigrationsDir
		}
		if err := persistence.RunMigrations(cmd.Context(), env.pg.PoolHandle(), dir, env.logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("dir", "", "Migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
}
