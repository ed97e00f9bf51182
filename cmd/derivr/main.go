// Command derivr publishes width-bucketed image derivatives for objects
// uploaded to an S3-compatible bucket and removes them again when the
// original is deleted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/derivr/internal/cascade"
	"github.com/koustreak/derivr/internal/codec"
	"github.com/koustreak/derivr/internal/config"
	"github.com/koustreak/derivr/internal/derivative"
	"github.com/koustreak/derivr/internal/filestore"
	"github.com/koustreak/derivr/internal/logger"
	"github.com/koustreak/derivr/internal/router"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "derivr",
		Short:         "Image derivative pipeline for S3-compatible buckets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DERIVR_CONFIG"), "path to YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newProcessCmd(&configPath))
	return root
}

// app is the wired pipeline shared by every subcommand.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	store  filestore.Store
	router *router.Router
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(&cfg.Log)

	store, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return nil, err
	}
	log.With().Str("provider", string(cfg.Store.Provider)).Logger().Info("object store ready")

	gen := derivative.New(store, codec.New(cfg.Pipeline.JPEGQuality), log, cfg.GeneratorOptions())
	del := cascade.New(store, log)

	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		router: router.New(cfg.Rules(), gen, del, log),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.ErrorWith("failed to close object store", err, nil)
	}
}
