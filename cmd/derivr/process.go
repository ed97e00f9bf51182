package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koustreak/derivr/internal/router"
)

func newProcessCmd(configPath *string) *cobra.Command {
	var n router.Notification

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Route and handle a single object notification",
		Example: `  derivr process --bucket media --key assets/uploads/foobar/test.jpg --event ObjectCreated:Put
  derivr process --bucket media --key assets/foobar/originals/test.jpg --event ObjectRemoved:Delete`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			action, err := a.router.Dispatch(cmd.Context(), n)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), action)
			return nil
		},
	}

	cmd.Flags().StringVar(&n.Bucket, "bucket", "", "bucket name")
	cmd.Flags().StringVar(&n.Key, "key", "", "object key")
	cmd.Flags().StringVar(&n.EventKind, "event", router.DefaultCreationPrefix+"Put", "event name")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
