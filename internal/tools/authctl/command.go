package authctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/device-auth-service/internal/config"
	"github.com/sandeepkv93/device-auth-service/internal/database"
	"github.com/sandeepkv93/device-auth-service/internal/di"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
	"github.com/sandeepkv93/device-auth-service/internal/service"
	"github.com/sandeepkv93/device-auth-service/internal/tools/common"
	"github.com/sandeepkv93/device-auth-service/internal/tools/loadgen"
	"github.com/sandeepkv93/device-auth-service/internal/tools/obscheck"
	"github.com/sandeepkv93/device-auth-service/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	out     io.Writer
}

func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOutput(os.Stdout)
}

func NewRootCommandWithOutput(out io.Writer) *cobra.Command {
	opts := &options{out: out}
	cmd := &cobra.Command{
		Use:           "authd",
		Short:         "Credential and refresh session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional env file; environment variables take precedence")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newSessionsCommand(opts),
		newLoadgenCommand(opts),
		obscheck.NewCommand(),
	)
	return cmd
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(o.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := di.InitializeApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the users and refresh_sessions tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAdmin(cmd.Context(), "migrate", func(ctx context.Context, admin *di.SessionAdmin) ([]string, error) {
				return []string{"schema up to date"}, nil
			})
		},
	}
}

func newSessionsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Inspect and revoke refresh sessions"}
	cmd.AddCommand(newSessionsListCommand(opts), newSessionsRevokeAllCommand(opts))
	return cmd
}

func newSessionsListCommand(opts *options) *cobra.Command {
	var (
		userID   uint
		all      bool
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List refresh sessions for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return errors.New("--user-id is required")
			}
			var views []service.SessionView
			title := fmt.Sprintf("sessions list user_id=%d", userID)
			err := opts.withAdmin(cmd.Context(), title, func(ctx context.Context, admin *di.SessionAdmin) ([]string, error) {
				if !all {
					active, err := admin.Sessions.ListActive(ctx, userID)
					if err != nil {
						return nil, err
					}
					views = active
					return []string{fmt.Sprintf("active=%d", len(active))}, nil
				}
				res, err := admin.Sessions.ListHistory(ctx, userID, repository.PageRequest{Page: page, PageSize: pageSize})
				if err != nil {
					return nil, err
				}
				views = res.Items
				return []string{fmt.Sprintf("page=%d/%d total=%d", res.Page, res.TotalPages, res.Total)}, nil
			})
			if err != nil {
				return err
			}
			if !opts.ci {
				_, _ = fmt.Fprintln(opts.out, common.RenderSessionsTable(views))
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "owner of the sessions")
	cmd.Flags().BoolVar(&all, "all", false, "include rotated, revoked and expired sessions")
	cmd.Flags().IntVar(&page, "page", repository.DefaultPage, "page number when --all is set")
	cmd.Flags().IntVar(&pageSize, "page-size", repository.DefaultPageSize, "page size when --all is set")
	return cmd
}

func newSessionsRevokeAllCommand(opts *options) *cobra.Command {
	var userID uint
	cmd := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every usable refresh session of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return errors.New("--user-id is required")
			}
			title := fmt.Sprintf("sessions revoke-all user_id=%d", userID)
			return opts.withAdmin(cmd.Context(), title, func(ctx context.Context, admin *di.SessionAdmin) ([]string, error) {
				n, err := admin.Tokens.RevokeAll(ctx, userID)
				if err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("revoked=%d", n)}, nil
			})
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "owner of the sessions")
	return cmd
}

func newLoadgenCommand(opts *options) *cobra.Command {
	cfg := loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive register, login and refresh traffic against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := opts.run(cmd.Context(), "loadgen", func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				lines := []string{fmt.Sprintf("total=%d failures=%d", res.TotalRequests, res.Failures)}
				for class, n := range res.StatusClasses {
					lines = append(lines, fmt.Sprintf("%s=%d", class, n))
				}
				return lines, nil
			})
			return opts.report("loadgen", details, err)
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&cfg.Profile, "profile", "mixed", "traffic profile: auth, refresh or mixed")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to generate traffic")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "concurrent workers")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "seed for user names and operation mix")
	return cmd
}

// withAdmin builds the ledger object graph, runs fn and reports the outcome.
func (o *options) withAdmin(ctx context.Context, title string, fn func(context.Context, *di.SessionAdmin) ([]string, error)) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	details, err := o.run(ctx, title, func(ctx context.Context) ([]string, error) {
		admin, cleanup, err := di.InitializeSessionAdmin(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize: %w", err)
		}
		defer cleanup()
		defer func() { _ = database.Close(admin.DB) }()
		return fn(ctx, admin)
	})
	return o.report(title, details, err)
}

func (o *options) run(ctx context.Context, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if o.ci {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func (o *options) report(title string, details []string, err error) error {
	if o.ci {
		common.WriteCIResult(o.out, err == nil, title, details, err)
	}
	return err
}
