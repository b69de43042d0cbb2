package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/libris/libris/cmd/libris/cli"
	"github.com/libris/libris/internal/app"
	"github.com/libris/libris/internal/auth"
	"github.com/libris/libris/internal/platform/cache"
	"github.com/libris/libris/internal/platform/db"
	"github.com/libris/libris/internal/rbac"
	"github.com/libris/libris/internal/shared"
	"github.com/libris/libris/internal/tags"
	"github.com/libris/libris/jobs"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "libris",
		Short:        "Personal library server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	root.AddCommand(newServeCmd(), newSeedCmd(), newJobsCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func newSeedCmd() *cobra.Command {
	var opts cli.SeedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install the permission catalog, builtin tags and an optional admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				logger.Error("connect postgres", slog.Any("error", err))
				return err
			}
			defer pool.Close()

			var publisher rbac.Publisher
			if redisClient, err := cache.New(ctx, cfg.RedisAddr); err != nil {
				logger.Warn("redis unavailable, running servers keep cached permissions until ttl", slog.Any("error", err))
			} else {
				defer redisClient.Close()
				publisher = rbac.NewBroadcaster(redisClient, cfg.RBACInvalidationChannel, logger)
			}

			rbacRepo := rbac.NewRepository(pool)
			resolver := rbac.NewResolver(rbacRepo, rbac.NewPermissionCache(cfg.RBACCacheTTL, nil, nil))
			rbacService := rbac.NewService(rbacRepo, resolver, publisher, logger).WithAuditor(shared.NewAuditLogger(pool))

			seed := &cli.SeedCLI{
				Catalog: rbacService,
				Seeder:  rbacRepo,
				Roles:   rbacService,
				Tags:    tags.NewRepository(pool),
				Users:   auth.NewRepository(pool),
			}
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			if code := seed.Run(ctx, opts); code != 0 {
				return fmt.Errorf("seed exited with code %d", code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.AdminEmail, "admin-email", "", "email of the admin account to create")
	cmd.Flags().StringVar(&opts.AdminPassword, "admin-password", "", "password of the admin account")
	cmd.Flags().StringVar(&opts.AdminUsername, "admin-username", "", "optional username of the admin account")
	return cmd
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background jobs",
	}

	var grace time.Duration
	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a task immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer client.Close()
			if code := cli.NewJobsCLI(client, nil).TriggerCommand(cmd.Context(), args[0], grace, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return fmt.Errorf("trigger exited with code %d", code)
			}
			return nil
		},
	}
	trigger.Flags().DurationVar(&grace, "grace", 0, "keep sessions that expired less than this long ago")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer inspector.Close()
			if code := cli.NewJobsCLI(nil, inspector).StatsCommand(cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return fmt.Errorf("stats exited with code %d", code)
			}
			return nil
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}

func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}
