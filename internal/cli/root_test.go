package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cadence", cmd.Use)
	assert.Contains(t, cmd.Long, "recurrence rules")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"serve", "create", "get", "edit", "delete", "list", "promote",
		"reconcile", "status", "export", "expand", "check",
	}

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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "cadence.yaml", configFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestScopeFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"edit", "delete"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		scope := sub.Flags().Lookup("scope")
		require.NotNil(t, scope, name)
		assert.Equal(t, "s", scope.Shorthand)
		assert.Empty(t, scope.DefValue, "%s has no default scope", name)
	}
}

func TestListCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	listCmd, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)

	for _, name := range []string{"role", "actor", "start", "end", "resource", "location"} {
		assert.NotNil(t, listCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "ADMIN", listCmd.Flags().Lookup("role").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "check"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}
