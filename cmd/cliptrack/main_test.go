package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"go.klb.dev/cliptrack/internal/store"
)

func TestDefaultDBPath_XDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, filepath.Join("/data", "cliptrack", "cliptrack.db"), defaultDBPath())
}

func TestDefaultDBPath_Home(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/someone")
	assert.Equal(t, filepath.Join("/home/someone", ".local", "share", "cliptrack", "cliptrack.db"), defaultDBPath())
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n  b\tc\n", 0))
	assert.Equal(t, "abcd…", oneLine("abcdefgh", 5))
	assert.Equal(t, "héllo", oneLine("héllo", 5))
}

func TestFmtAge(t *testing.T) {
	assert.Equal(t, "5s ago", fmtAge(time.Now().Add(-5*time.Second)))
	assert.Equal(t, "3m ago", fmtAge(time.Now().Add(-3*time.Minute)))
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Equal(t, "No clipboard history.\n", buf.String())

	buf.Reset()
	printHistory(&buf, []store.Record{
		{ID: 2, Content: "second\nvalue", CapturedAt: time.Now()},
		{ID: 1, Content: "first", CapturedAt: time.Now()},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[2], "second value")
	assert.True(t, strings.HasPrefix(lines[3], "1 "))
}

func TestWriteJSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, []store.Record{{ID: 9, Content: "x", CapturedAt: at}}))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.EqualValues(t, 9, got[0]["id"])
	assert.Equal(t, "2024-05-01T12:00:00Z", got[0]["captured_at"])
}

func TestWriteJSON_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, []store.Record{}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestPrintStatus(t *testing.T) {
	st, err := structpb.NewStruct(map[string]any{
		"version":          "1.2.3",
		"db":               "/tmp/h.db",
		"socket":           "/run/cliptrack.sock",
		"backend":          "fake",
		"started_at":       time.Now().UTC().Format(time.RFC3339),
		"records":          4,
		"last_id":          10,
		"pulses_published": 7,
		"poller":           map[string]any{"interval": "100ms", "ticks": 50, "emitted": 4, "read_failures": 0},
		"subscribers": []any{
			map[string]any{"name": "watch:local", "subscribed_at": time.Now().UTC().Format(time.RFC3339), "pulses": 3},
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	printStatus(&buf, st)
	out := buf.String()
	assert.Contains(t, out, "1.2.3")
	assert.Contains(t, out, "4 (last id 10)")
	assert.Contains(t, out, "every 100ms")
	assert.Contains(t, out, "watch:local")
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "cliptrack dev\n", buf.String())
}

func TestBindViper_EnvOverridesDefault(t *testing.T) {
	t.Setenv("CLIPTRACK_RESET_ON_CLEAR", "true")
	t.Setenv("HOME", t.TempDir())

	cmd := newDaemonCmd()
	v := viper.New()
	require.NoError(t, bindViper(cmd, v))
	assert.True(t, v.GetBool("reset-on-clear"))
	assert.Equal(t, 100*time.Millisecond, v.GetDuration("interval"))
}

func TestBindViper_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cliptrack.toml")
	require.NoError(t, os.WriteFile(path, []byte("interval = \"250ms\"\nnotify = false\n"), 0o600))

	cmd := newDaemonCmd()
	require.NoError(t, cmd.Flags().Set("config", path))
	v := viper.New()
	require.NoError(t, bindViper(cmd, v))
	assert.Equal(t, 250*time.Millisecond, v.GetDuration("interval"))
	assert.False(t, v.GetBool("notify"))
}

func TestRestoreCommand_RejectsBadID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"restore", "zero"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid record id")
}
