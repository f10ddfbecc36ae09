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

	"go.klb.dev/cliptrack/internal/store"
)

// previewWidth is how much of each record a table row shows.
const previewWidth = 72

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls"},
		Short:   "List recent clipboard captures, newest first",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runHistory(cmd, v) },
	}

	f := cmd.Flags()
	f.IntP("limit", "n", store.DefaultLimit, "maximum number of records")
	f.Bool("json", false, "output JSON")
	addConfigFlag(cmd)

	return cmd
}

func runHistory(cmd *cobra.Command, v *viper.Viper) error {
	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	recs, err := client.Recent(ctx, v.GetInt("limit"))
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		return writeJSON(out, recs)
	}
	printHistory(out, recs)
	return nil
}

type jsonRecord struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	CapturedAt string `json:"captured_at"`
}

func writeJSON(w io.Writer, recs []store.Record) error {
	out := make([]jsonRecord, len(recs))
	for i, r := range recs {
		out[i] = jsonRecord{ID: r.ID, Content: r.Content, CapturedAt: r.CapturedAt.UTC().Format(time.RFC3339Nano)}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printHistory(w io.Writer, recs []store.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No clipboard history.")
		return
	}
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tCAPTURED\tCONTENT\n")
	_, _ = fmt.Fprintf(tw, "--\t--------\t-------\n")
	for _, r := range recs {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", r.ID, fmtAge(r.CapturedAt), oneLine(r.Content, previewWidth))
	}
	_ = tw.Flush()
}
