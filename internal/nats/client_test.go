package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

func TestConnectOptions(t *testing.T) {
	log := logger.NewNop()

	base, err := connectOptions(Config{}, log)
	require.NoError(t, err)

	withAuth, err := connectOptions(Config{Token: "secret", CAFile: "/etc/nats/ca.pem"}, log)
	require.NoError(t, err)
	assert.Len(t, withAuth, len(base)+2)

	mtls, err := connectOptions(Config{CAFile: "ca.pem", CertFile: "cert.pem", KeyFile: "key.pem"}, log)
	require.NoError(t, err)
	assert.Len(t, mtls, len(base)+2)

	_, err = connectOptions(Config{CertFile: "cert.pem"}, log)
	assert.ErrorContains(t, err, "must be set together")
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "nats://127.0.0.1:1"}, logger.NewNop())
	assert.Error(t, err)
}

func TestClient_NilConnection(t *testing.T) {
	c := &Client{}
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotConnected)
	c.Close()
}
