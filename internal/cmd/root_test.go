package cmd

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/connectchat/internal/connect"
)

func TestNewServiceWithoutConnectCredentials(t *testing.T) {
	t.Setenv("PIPEDREAM_CLIENT_ID", "")
	t.Setenv("PIPEDREAM_CLIENT_SECRET", "")

	rt := testRuntime(t, &echoClient{})
	rt.cfg.ConnectDisable = false
	var logs bytes.Buffer
	rt.logger = log.New(&logs)

	require.NotNil(t, rt.newService(nil))
	require.Empty(t, logs.String())

	_, err := rt.connectTools()
	require.ErrorIs(t, err, connect.ErrMissingCredentials)
}

func TestConnectToolsDisabled(t *testing.T) {
	rt := testRuntime(t, &echoClient{})
	tools, err := rt.connectTools()
	require.NoError(t, err)
	require.Nil(t, tools)
}
