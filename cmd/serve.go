package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adalundhe/duet/core/bootstrap"
	"github.com/adalundhe/duet/core/config"
)

var (
	serveAddr    string
	serveNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket room server",
	Long: `Run the websocket room server. Each connection to /rooms/{room} starts a
conversation; /rooms reports live and recently closed rooms and /metrics
exposes Prometheus metrics.

Config file edits apply to conversations started afterwards.

Examples:
  duet serve
  duet serve --addr :9000
  duet serve --config ./duet.yaml --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides room.addr)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload config files on change")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, dirs, err := loadConfig()
	if err != nil {
		return err
	}
	defer mgr.Close()

	cfg := mgr.Get()
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if serveAddr != "" {
		applied := *cfg
		applied.Room.Addr = serveAddr
		cfg = &applied
	}

	if err := dirs.EnsureAll(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Dirs: dirs, Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()

	mgr.OnChange(func(next *config.Config) {
		if err := app.Reconfigure(next); err != nil {
			logger.Warn("reloaded configuration rejected", slog.String("error", err.Error()))
		}
	})

	srv, err := app.Server()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if !serveNoWatch {
		g.Go(func() error {
			return mgr.Watch(gctx, config.WatchOptions{Logger: logger})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("room server stopped")
	return nil
}
