package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tracecap", cmd.Use)
	assert.Contains(t, cmd.Long, "input")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"record", "check", "trace", "sessions"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormatRejected(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"sessions", "--format", "xml", "--db", "unused.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCheckCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	checkCmd, _, err := cmd.Find([]string{"check"})
	require.NoError(t, err)

	for _, name := range []string{"video-frames", "video-fps", "video-duration", "db", "hotkey", "suppress-window"} {
		assert.NotNil(t, checkCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
	assert.Equal(t, "5", checkCmd.Flags().Lookup("suppress-window").DefValue)
}

func TestRecordCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	recordCmd, _, err := cmd.Find([]string{"record"})
	require.NoError(t, err)

	configFlag := recordCmd.Flags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.NotNil(t, recordCmd.Flags().Lookup("task"))
	assert.NotNil(t, recordCmd.Flags().Lookup("duration"))
}

func TestTraceCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	traceCmd, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)

	assert.NotNil(t, traceCmd.Flags().Lookup("type"))
	assert.NotNil(t, traceCmd.Flags().Lookup("simulated"))
}

func TestSessionsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sessionsCmd, _, err := cmd.Find([]string{"sessions"})
	require.NoError(t, err)

	dbFlag := sessionsCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	// --db is required, so default is empty
	assert.Equal(t, "", dbFlag.DefValue)
}
