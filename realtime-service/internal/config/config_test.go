package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INSTANCE_ID", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 2*time.Minute, cfg.Presence.TTL)
	assert.NotEmpty(t, cfg.Server.InstanceID)
	assert.Equal(t, cfg.Server.InstanceID, cfg.PubSub.Kafka.InstanceID)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INSTANCE_ID", "rt-7")
	t.Setenv("PRESENCE_TTL", "90")
	t.Setenv("WEBSOCKET_PING_INTERVAL", "15s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rt-7", cfg.Server.InstanceID)
	assert.Equal(t, "rt-7", cfg.Log.InstanceID)
	assert.Equal(t, "rt-7", cfg.PubSub.Kafka.InstanceID)
	assert.Equal(t, 90*time.Second, cfg.Presence.TTL)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PingInterval)
}
