package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommandRuns(t *testing.T) {
	cmd := versionCommand()
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestServeCommandRequiresBackendBaseURL(t *testing.T) {
	cmd := serveCommand()
	cmd.SetArgs([]string{"--config", "/nonexistent/anthrobridge.yaml"})
	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "backend_base_url")
}

func TestServeCommandRegistersConfigFlag(t *testing.T) {
	cmd := serveCommand()
	flag := cmd.Flags().Lookup("config")
	require.NotNil(t, flag)
	require.Equal(t, "c", flag.Shorthand)
}
