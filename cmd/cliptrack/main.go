// cliptrack: clipboard history recorder.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/cliptrack/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cliptrack",
		Short: "Clipboard history recorder",
		Long: `cliptrack watches the system clipboard and keeps a history of every distinct
text value copied, in a local SQLite database.

Run "cliptrack daemon" once per desktop session. The other commands talk to the
daemon over a local socket (a named pipe on Windows):

  cliptrack history       list recent captures
  cliptrack watch         live view, refreshed whenever something is captured
  cliptrack restore ID    put a stored record back on the clipboard
  cliptrack clear         delete all history
  cliptrack status        daemon, store and poller statistics

Config file search order (first found wins):
  /etc/cliptrack/cliptrack.toml
  $HOME/.config/cliptrack/cliptrack.toml
  path supplied via --config

All flags can be set via CLIPTRACK_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newHistoryCmd(),
		newClearCmd(),
		newWatchCmd(),
		newRestoreCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cliptrack %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
