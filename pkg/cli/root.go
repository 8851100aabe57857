// Package cli is the famtasks command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/harrisonrobin/famtasks/pkg/api"
	"github.com/harrisonrobin/famtasks/pkg/auth"
	"github.com/harrisonrobin/famtasks/pkg/config"
	"github.com/harrisonrobin/famtasks/pkg/kv"
	"github.com/harrisonrobin/famtasks/pkg/resolver"
	"github.com/harrisonrobin/famtasks/pkg/tasksync"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "famtasks",
	Short:         "Family tasks from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/famtasks/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log sync and discovery details to stderr")
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, failStyle("Error:"), err)
		os.Exit(1)
	}
}

// app wires the client together from the config for one command run.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	store    kv.Store
	closer   io.Closer
	resolver *resolver.Resolver
	session  *auth.Session
	client   *api.Client
	engine   *tasksync.Engine
}

func newApp(opts ...tasksync.Option) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := log.New(io.Discard, "", 0)
	if verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	store, closer, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	res := resolver.New(store, resolver.Options{
		TunnelURL:    cfg.API.TunnelURL,
		FallbackURLs: cfg.API.FallbackURLs,
		DefaultURL:   cfg.API.DefaultURL,
		CheckTimeout: cfg.API.CheckTimeout,
		Freshness:    cfg.API.Freshness,
		Logger:       logger,
	})
	sess := auth.NewSession(store)
	client := api.NewClient(res.Current, sess.TokenSource(), api.WithTimeout(cfg.API.Timeout), api.WithLogger(logger))

	opts = append([]tasksync.Option{
		tasksync.WithLogger(logger),
		tasksync.WithInterval(cfg.Sync.Interval),
	}, opts...)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		closer:   closer,
		resolver: res,
		session:  sess,
		client:   client,
		engine:   tasksync.New(client, sess, store, opts...),
	}, nil
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func openStore(cfg *config.Config) (kv.Store, io.Closer, error) {
	if cfg.Store.Backend == "memory" {
		return kv.NewMemory(), nil, nil
	}
	path, err := cfg.StorePath()
	if err != nil {
		return nil, nil, err
	}
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := kv.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	default:
		f, err := kv.NewFile(path)
		if err != nil {
			return nil, nil, err
		}
		return f, nil, nil
	}
}

// withApp builds the app for a command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error, opts ...tasksync.Option) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(opts...)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}
}
