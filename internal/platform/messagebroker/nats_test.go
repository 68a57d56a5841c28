package messagebroker

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNATSClient_UnreachableServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewNATSClient("nats://127.0.0.1:1", logger, "test")
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestNATSClient_CloseIsSafeWithoutConnection(t *testing.T) {
	var client *NATSClient
	assert.NotPanics(t, client.Close)
	assert.NotPanics(t, (&NATSClient{}).Close)
}
