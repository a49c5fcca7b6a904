package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cassiomorais/posqueue/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "posqueue", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"enqueue"},
		{"status"},
		{"list"},
		{"show"},
		{"sync"},
		{"retry-failed"},
		{"reset"},
		{"delete"},
		{"cleanup"},
		{"connectivity", "up"},
		{"connectivity", "down"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	assert.NotNil(t, cmd.PersistentFlags().Lookup("addr"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("token"))
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	listCmd, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)
	statusFlag := listCmd.Flags().Lookup("status")
	require.NotNil(t, statusFlag)
	assert.Equal(t, "s", statusFlag.Shorthand)

	enqueueCmd, _, err := cmd.Find([]string{"enqueue"})
	require.NoError(t, err)
	assert.NotNil(t, enqueueCmd.Flags().Lookup("file"))
	assert.NotNil(t, enqueueCmd.Flags().Lookup("idempotency-key"))

	cleanupCmd, _, err := cmd.Find([]string{"cleanup"})
	require.NoError(t, err)
	assert.NotNil(t, cleanupCmd.Flags().Lookup("older-than-days"))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad input")))

	wrapped := WrapExitError(ExitFailure, "sync", errors.New("boom"))
	assert.Equal(t, "sync: boom", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestOutputFormatter_Fail(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{
			name:     "api error with code",
			err:      &client.APIError{StatusCode: 409, Code: "in_flight", Message: "transaction is being submitted"},
			wantCode: "in_flight",
			wantExit: ExitFailure,
		},
		{
			name:     "api error without code",
			err:      &client.APIError{StatusCode: 502, Message: "bad gateway"},
			wantCode: "http_502",
			wantExit: ExitFailure,
		},
		{
			name:     "transport error",
			err:      errors.New("call control API: connection refused"),
			wantCode: ErrCodeUnreachable,
			wantExit: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "json", Writer: buf}

			err := f.Fail("op", tt.err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestOutputFormatter_VerboseGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	f.VerboseLog("control API: %s", "http://127.0.0.1:8765")
	assert.Empty(t, out.String())
	assert.Equal(t, "control API: http://127.0.0.1:8765\n", errOut.String())
}
