package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
	"github.com/Ddedalus/syringe-pump/internal/transcript"
)

func TestSendCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr error
		errMsg  string
	}{
		{
			name: "version",
			args: []string{"send", "--simulate", "version"},
			want: []string{"Firmware: Legato100 3.0.8", "[:] success"},
		},
		{
			name: "multi-word command",
			args: []string{"send", "--simulate", "irate", "2", "ml/min"},
			want: []string{"[:] success"},
		},
		{
			name:    "command error",
			args:    []string{"send", "--simulate", "bogus"},
			want:    []string{"Command error: bogus", "[:] command error"},
			wantErr: protocol.ErrCommand,
		},
		{
			name: "address prefix",
			args: []string{"send", "--simulate", "--address", "3", "version"},
			want: []string{"Pump address: 3", "[:] success"},
		},
		{
			name:   "without port",
			args:   []string{"send", "version"},
			errMsg: "port is required",
		},
		{
			name:   "without command",
			args:   []string{"send", "--simulate"},
			errMsg: "requires at least 1 arg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				require.NoError(t, err)
			}
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestSendCommandJSON(t *testing.T) {
	out, err := execute(t, "send", "--simulate", "--json", "tvolume")
	require.NoError(t, err)

	var res sendResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "tvolume", res.Command)
	assert.Equal(t, ":", res.Prompt)
	assert.Equal(t, []string{"Target volume not set"}, res.Message)
	assert.Equal(t, "success", res.Outcome)
	assert.Empty(t, res.State)
}

func TestInfoCommand(t *testing.T) {
	out, err := execute(t, "info", "--simulate")
	require.NoError(t, err)
	assert.Contains(t, out, "Legato100 3.0.8")
	assert.Contains(t, out, "SIM0001")
	assert.Contains(t, out, "Becton Dickinson Plasti-pak")

	out, err = execute(t, "info", "--simulate", "--json")
	require.NoError(t, err)

	var info pumpInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "SIM0001", info.Version.SerialNumber)
	assert.Equal(t, "10 ml", info.SyringeVolume)
	assert.Equal(t, "14.57 mm", info.Diameter)
	assert.Equal(t, "qs iw", info.QuickStartMode)
	assert.NotEmpty(t, info.Session)
}

func TestStatusCommand(t *testing.T) {
	out, err := execute(t, "status", "--simulate")
	require.NoError(t, err)
	assert.Contains(t, out, "idle [:]")
	assert.Contains(t, out, "Infusion Rate:    1 ml/min")
	assert.Contains(t, out, "Target Volume:    -")
	assert.NotContains(t, out, "Statistics:")

	out, err = execute(t, "status", "--simulate", "--json")
	require.NoError(t, err)

	var st pumpStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, "0 ul", st.InfusedVolume)
	assert.Nil(t, st.Statistics)
}

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr error
	}{
		{
			name: "default direction",
			args: []string{"run", "--simulate"},
			want: "infusing at 1 ml/min",
		},
		{
			name: "withdraw with rate and target",
			args: []string{"run", "withdraw", "--simulate", "--rate", "500 ul/min", "--target-volume", "2 ml", "--target-time", "90s", "--clear"},
			want: "withdrawing at 500 ul/min",
		},
		{
			name:    "unknown direction",
			args:    []string{"run", "sideways", "--simulate"},
			wantErr: protocol.ErrInvalidArgument,
		},
		{
			name:    "rate in wrong unit",
			args:    []string{"run", "--simulate", "--rate", "1 ml"},
			wantErr: protocol.ErrInvalidArgument,
		},
		{
			name:    "target beyond syringe",
			args:    []string{"run", "--simulate", "--target-volume", "20 ml"},
			wantErr: protocol.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}

	_, err := execute(t, "run", "--simulate", "--rate", "fast")
	assert.ErrorContains(t, err, "invalid --rate")
}

func TestStopCommand(t *testing.T) {
	out, err := execute(t, "stop", "--simulate")
	require.NoError(t, err)
	assert.Equal(t, "stopped\n", out)

	out, err = execute(t, "stop", "--simulate", "--restore")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")
}

func TestReplCommand(t *testing.T) {
	resetCmd()
	t.Setenv("HOME", t.TempDir())

	out := &strings.Builder{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(strings.NewReader("version\n\nbogus\nhelp\nirun\nexit\nversion\n"))
	rootCmd.SetArgs([]string{"repl", "--simulate"})

	require.NoError(t, rootCmd.Execute())

	text := out.String()
	assert.Contains(t, text, "pump> ")
	assert.Contains(t, text, "Firmware: Legato100 3.0.8")
	assert.Contains(t, text, "Command error: bogus")
	assert.Contains(t, text, "Built-ins:")
	assert.Contains(t, text, "[>] success")
	// Input after exit is not sent.
	assert.Equal(t, 1, strings.Count(text, "Firmware:"))
}

func TestReplCommandEOF(t *testing.T) {
	resetCmd()
	t.Setenv("HOME", t.TempDir())

	out := &strings.Builder{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(strings.NewReader("load\n"))
	rootCmd.SetArgs([]string{"repl", "--simulate", "--address", "2"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "pump 02> ")
	assert.Contains(t, out.String(), "qs iw")
}

// cancelReader cancels a context on its first read, as Ctrl-C does while
// the REPL waits for a line.
type cancelReader struct {
	cancel context.CancelFunc
	done   bool
}

func (r *cancelReader) Read(b []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	r.cancel()
	return copy(b, "version\n"), nil
}

func TestReplCommandStopsOnCancel(t *testing.T) {
	resetCmd()
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "transcript.yaml")
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgText := fmt.Sprintf("transcript:\n  enabled: true\n  file: %s\n", transcriptPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgText), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &strings.Builder{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(&cancelReader{cancel: cancel})
	rootCmd.SetArgs([]string{"--config", cfgPath, "repl", "--simulate"})

	err := rootCmd.ExecuteContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	f, err := os.Open(transcriptPath)
	require.NoError(t, err)
	defer f.Close()

	entries, err := transcript.ReadYAML(f)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)

	last := entries[len(entries)-2:]
	assert.Equal(t, "stp", last[0].Command)
	assert.Equal(t, "dim 15", last[1].Command)
	for _, e := range last {
		assert.Empty(t, e.Error)
	}
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config", "show", "--address", "7", "--port", "/dev/ttyACM1")
	require.NoError(t, err)
	assert.Contains(t, out, "address: 7")
	assert.Contains(t, out, "port: /dev/ttyACM1")

	path := filepath.Join(t.TempDir(), "pumplink", "config.yaml")
	out, err = execute(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "config", "init", "--path", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--path", path, "--force")
	assert.NoError(t, err)

	out, err = execute(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, path)
}

func TestTranscriptFromConfig(t *testing.T) {
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "transcript.yaml")
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgText := fmt.Sprintf("transcript:\n  enabled: true\n  file: %s\n", transcriptPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgText), 0644))

	_, err := execute(t, "--config", cfgPath, "send", "--simulate", "version")
	require.NoError(t, err)

	f, err := os.Open(transcriptPath)
	require.NoError(t, err)
	defer f.Close()

	entries, err := transcript.ReadYAML(f)
	require.NoError(t, err)

	var commands []string
	for _, e := range entries {
		commands = append(commands, e.Command)
		assert.Equal(t, entries[0].Session, e.Session)
	}
	assert.Equal(t, []string{"poll on", "nvram none", "load qs iw", "time " + entries[3].Message[0], "version"}, commands)
	assert.NotEmpty(t, entries[0].Session)
}
