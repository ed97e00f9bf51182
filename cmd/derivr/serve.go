package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/derivr/internal/filestore/minio"
	"github.com/koustreak/derivr/internal/notify"
	"github.com/koustreak/derivr/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive bucket notifications over HTTP and, optionally, a MinIO listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var listener *notify.Listener
			if lc := a.cfg.Listener; lc.Enabled {
				src, ok := a.store.(*minio.Driver)
				if !ok {
					return fmt.Errorf("listener requires the minio provider, got %q", a.cfg.Store.Provider)
				}
				listener = notify.NewListener(src, a.router, notify.ListenerConfig{
					Bucket: lc.Bucket,
					Prefix: lc.Prefix,
				}, a.log)
			}

			srv := server.New(a.router, a.store, a.log, server.Options{WebhookPath: a.cfg.Server.WebhookPath})

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.ListenAndServe(ctx, a.cfg.Server.ListenAddr)
			})
			if listener != nil {
				g.Go(func() error {
					return listener.Run(ctx)
				})
			}
			return g.Wait()
		},
	}
}
