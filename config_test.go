package ringchat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	var writeConfig = func(t *testing.T, body string) string {
		var path = filepath.Join(t.TempDir(), "ringchat.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("should load a full configuration", func(t *testing.T) {
		// Arrange
		var path = writeConfig(t, `
node_id: 101
bind_host: 127.0.0.1
ring_port: 5001
client_port: 6001
multicast_addr: 224.1.1.1:50001
hello_interval: 500ms
heartbeat_interval: 1s
heartbeat_timeout: 3s
seed_peers:
  - id: 205
    host: 10.0.0.2
    ring_port: 5002
    client_port: 6002
`)

		// Act
		var cfg, err = LoadConfig(path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 101, cfg.NodeID)
		assert.Equal(t, "127.0.0.1", cfg.BindHost)
		assert.Equal(t, duration(3*time.Second), cfg.HeartbeatTimeout)
		require.Len(t, cfg.SeedPeers, 1)
		assert.Equal(t, 205, cfg.SeedPeers[0].ID)
	})

	t.Run("should map onto node options", func(t *testing.T) {
		// Arrange
		var path = writeConfig(t, `
node_id: 101
bind_host: 127.0.0.1
multicast_addr: 224.1.1.1:50001
heartbeat_timeout: 3s
seed_peers:
  - id: 205
    host: 10.0.0.2
    ring_port: 5002
    client_port: 6002
`)
		var cfg, err = LoadConfig(path)
		require.NoError(t, err)

		// Act
		var opts = defaultOptions()
		for _, opt := range cfg.Options() {
			opt(&opts)
		}

		// Assert
		assert.Equal(t, "127.0.0.1", opts.bindHost)
		assert.Equal(t, "224.1.1.1:50001", opts.multicastAddr)
		assert.Equal(t, 3*time.Second, opts.heartbeatTimeout)
		assert.Equal(t, 500*time.Millisecond, opts.watchInterval, "watchdog cadence derives from the timeout")
		assert.Equal(t, time.Second, opts.electionCooldown, "cooldown derives from the timeout")
		require.Len(t, opts.seedPeers, 1)
		assert.Equal(t, Identity{ID: 205, Host: "10.0.0.2", RingPort: 5002, ClientPort: 6002}, opts.seedPeers[0])
	})

	t.Run("should leave defaults for omitted fields", func(t *testing.T) {
		// Arrange
		var path = writeConfig(t, "node_id: 7\n")
		var cfg, err = LoadConfig(path)
		require.NoError(t, err)

		// Act
		var opts = defaultOptions()
		for _, opt := range cfg.Options() {
			opt(&opts)
		}

		// Assert
		assert.Equal(t, 7, cfg.NodeID)
		assert.Equal(t, defaultOptions().multicastAddr, opts.multicastAddr)
		assert.Equal(t, defaultOptions().heartbeatTimeout, opts.heartbeatTimeout)
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		// Act
		var _, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

		// Assert
		assert.Error(t, err)
	})

	t.Run("should reject a malformed duration", func(t *testing.T) {
		// Arrange
		var path = writeConfig(t, "heartbeat_timeout: banana\n")

		// Act
		var _, err = LoadConfig(path)

		// Assert
		assert.Error(t, err)
	})
}
