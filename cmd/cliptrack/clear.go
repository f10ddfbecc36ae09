package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all clipboard history",
		Long: `Deletes every stored record. Record ids are never reused, so ids issued after
a clear are larger than any issued before it.

The value currently on the clipboard is not recorded again unless the daemon
runs with --reset-on-clear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeConn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
			defer cancel()
			n, err := client.Clear(ctx)
			if err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s).\n", n)
			return nil
		},
	}
}
