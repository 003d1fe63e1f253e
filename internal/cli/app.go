package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/imadgeboyega/kiekky-matchmaking/internal/common/database"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/config"
	notifications "github.com/imadgeboyega/kiekky-matchmaking/internal/notification"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/suggestion"
)

// App is what the commands operate on
type App struct {
	Service   suggestion.Service
	Repo      suggestion.Repository
	JWTSecret string
	Now       func() time.Time
	Out       io.Writer
	Close     func()
}

// Loader opens an App. Commands call it lazily so --help never touches the database.
type Loader func(ctx context.Context) (*App, error)

// ConnectFromEnv opens Postgres and Redis from the environment and builds the service
func ConnectFromEnv(ctx context.Context) (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.NewPostgresDBFromURL(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		return nil, err
	}

	closers := []func(){func() { db.Close() }}

	// Redis only dedups notifications; run without it
	var rc *redis.Client
	if cfg.RedisURL != "" {
		if rc, err = database.NewRedisClientFromURL(ctx, cfg.RedisURL); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v, continuing without Redis\n", err)
			rc = nil
		} else {
			closers = append(closers, func() { rc.Close() })
		}
	}

	dispatcher, err := notifications.NewDispatcherFromConfig(ctx, cfg, db, rc, nil)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, fmt.Errorf("failed to build notifier: %w", err)
	}

	repo := suggestion.NewPostgresRepository(db)
	svc := suggestion.NewService(repo, dispatcher, suggestion.Options{
		DefaultDeadline: cfg.SuggestionDeadline(),
		UrgentWindow:    cfg.UrgentDeadlineWindow,
		NotifyTimeout:   cfg.NotifyTimeout,
	})

	return &App{
		Service:   svc,
		Repo:      repo,
		JWTSecret: cfg.JWTSecret,
		Now:       time.Now,
		Out:       os.Stdout,
		Close: func() {
			for _, c := range closers {
				c()
			}
		},
	}, nil
}

// RootCmd builds the suggestionctl command tree
func RootCmd(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:   "suggestionctl",
		Short: "Operator tools for the suggestion lifecycle engine",
		Long: `suggestionctl runs the batch jobs the API does not run itself:
expiring suggestions past their response deadline and auditing waitlist ranks.
It also inspects single suggestions and mints tokens for local testing.`,
		SilenceUsage: true,
	}

	root.AddCommand(ExpireCmd(load))
	root.AddCommand(VerifyRanksCmd(load))
	root.AddCommand(ShowCmd(load))
	root.AddCommand(TokenCmd(load))

	return root
}

// withApp opens the App for one command run
func withApp(cmd *cobra.Command, load Loader, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := load(ctx)
	if err != nil {
		return err
	}
	if app.Close != nil {
		defer app.Close()
	}
	if app.Out == nil {
		app.Out = cmd.OutOrStdout()
	}
	if app.Now == nil {
		app.Now = time.Now
	}

	return fn(ctx, app)
}
