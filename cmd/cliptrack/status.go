package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/structpb"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, store and poller statistics",
		Long: `Displays what the running daemon is doing: where the history lives, how many
records it holds, how often the clipboard is polled, and which viewers are
subscribed for change pulses.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}

	cmd.Flags().Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	resp, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.AsMap())
	}
	printStatus(out, resp)
	return nil
}

func printStatus(w io.Writer, resp *structpb.Struct) {
	m := resp.AsMap()
	poll, _ := m["poller"].(map[string]any)

	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%v\n", m["version"])
	fmt.Fprintf(tw, "Socket:\t%v\n", m["socket"])
	fmt.Fprintf(tw, "Database:\t%v\n", m["db"])
	fmt.Fprintf(tw, "Clipboard:\t%v\n", m["backend"])
	if t, err := time.Parse(time.RFC3339, fmt.Sprint(m["started_at"])); err == nil {
		fmt.Fprintf(tw, "Started:\t%s (%s)\n", t.UTC().Format(time.RFC3339), fmtAge(t))
	}
	fmt.Fprintf(tw, "Records:\t%v (last id %v)\n", m["records"], m["last_id"])
	if poll != nil {
		fmt.Fprintf(tw, "Polling:\tevery %v, %v ticks, %v captured, %v read failures\n",
			poll["interval"], poll["ticks"], poll["emitted"], poll["read_failures"])
	}
	fmt.Fprintf(tw, "Pulses:\t%v\n", m["pulses_published"])
	fmt.Fprintln(tw)
	_ = tw.Flush()

	subs, _ := m["subscribers"].([]any)
	if len(subs) == 0 {
		fmt.Fprintln(w, "No viewers subscribed.")
		return
	}
	st := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(st, "VIEWER\tSUBSCRIBED\tPULSES\n")
	_, _ = fmt.Fprintf(st, "------\t----------\t------\n")
	for _, s := range subs {
		sub, _ := s.(map[string]any)
		age := "-"
		if t, err := time.Parse(time.RFC3339, fmt.Sprint(sub["subscribed_at"])); err == nil {
			age = fmtAge(t)
		}
		_, _ = fmt.Fprintf(st, "%v\t%s\t%v\n", sub["name"], age, sub["pulses"])
	}
	_ = st.Flush()
}
