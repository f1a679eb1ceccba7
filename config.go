package ringchat

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the operator-facing YAML configuration. Zero values fall back to
// the built-in defaults.
type Config struct {
	NodeID            int        `yaml:"node_id"`
	BindHost          string     `yaml:"bind_host"`
	RingPort          int        `yaml:"ring_port"`
	ClientPort        int        `yaml:"client_port"`
	MulticastAddr     string     `yaml:"multicast_addr"`
	HelloInterval     duration   `yaml:"hello_interval"`
	HeartbeatInterval duration   `yaml:"heartbeat_interval"`
	HeartbeatTimeout  duration   `yaml:"heartbeat_timeout"`
	SeedPeers         []SeedPeer `yaml:"seed_peers"`
}

// SeedPeer is a statically configured cluster member.
type SeedPeer struct {
	ID         int    `yaml:"id"`
	Host       string `yaml:"host"`
	RingPort   int    `yaml:"ring_port"`
	ClientPort int    `yaml:"client_port"`
}

// duration accepts "2s"-style values in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var parsed, err = time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	var raw, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Options maps the configured fields onto node options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.BindHost != "" {
		opts = append(opts, WithBindHost(c.BindHost))
	}
	if c.RingPort != 0 {
		opts = append(opts, WithRingPort(c.RingPort))
	}
	if c.ClientPort != 0 {
		opts = append(opts, WithClientPort(c.ClientPort))
	}
	if c.MulticastAddr != "" {
		opts = append(opts, WithMulticastAddr(c.MulticastAddr))
	}
	if c.HelloInterval != 0 {
		opts = append(opts, WithHelloInterval(time.Duration(c.HelloInterval)))
	}
	if c.HeartbeatInterval != 0 {
		opts = append(opts, WithHeartbeatInterval(time.Duration(c.HeartbeatInterval)))
	}
	if c.HeartbeatTimeout != 0 {
		opts = append(opts, WithHeartbeatTimeout(time.Duration(c.HeartbeatTimeout)))
	}
	if len(c.SeedPeers) > 0 {
		var peers = make([]Identity, 0, len(c.SeedPeers))
		for _, p := range c.SeedPeers {
			peers = append(peers, Identity{
				ID:         p.ID,
				Host:       p.Host,
				RingPort:   p.RingPort,
				ClientPort: p.ClientPort,
			})
		}
		opts = append(opts, WithSeedPeers(peers))
	}
	return opts
}
