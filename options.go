package ringchat

import (
	"io"
	"log/slog"
	"time"
)

// options configures node behavior (internal only).
type options struct {
	bindHost          string
	ringPort          int
	clientPort        int
	multicastAddr     string
	helloInterval     time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	watchInterval     time.Duration
	dialTimeout       time.Duration
	electionCooldown  time.Duration
	settleDelay       time.Duration
	seedPeers         []Identity
	logger            *slog.Logger
}

// defaultOptions returns the intervals the protocol was tuned with: a 2s
// heartbeat circulated on the ring and a 6s recency timeout driving
// re-election.
func defaultOptions() options {
	return options{
		multicastAddr:     "224.1.1.1:50000",
		helloInterval:     time.Second,
		heartbeatInterval: 2 * time.Second,
		heartbeatTimeout:  6 * time.Second,
		watchInterval:     time.Second,
		dialTimeout:       2 * time.Second,
		electionCooldown:  2 * time.Second,
		settleDelay:       2 * time.Second,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option is a functional option for configuring a Node.
type Option func(*options)

// WithBindHost sets the address the node binds and advertises. By default the
// host is detected from the route toward the multicast group.
func WithBindHost(host string) Option {
	return func(o *options) {
		o.bindHost = host
	}
}

// WithRingPort fixes the ring listening port. DEFAULT: ephemeral.
func WithRingPort(port int) Option {
	return func(o *options) {
		o.ringPort = port
	}
}

// WithClientPort fixes the chat listening port. DEFAULT: ephemeral.
func WithClientPort(port int) Option {
	return func(o *options) {
		o.clientPort = port
	}
}

// WithMulticastAddr sets the discovery group, as "group:port".
func WithMulticastAddr(addr string) Option {
	return func(o *options) {
		o.multicastAddr = addr
	}
}

// WithHelloInterval sets the discovery beacon cadence.
func WithHelloInterval(interval time.Duration) Option {
	return func(o *options) {
		o.helloInterval = interval
	}
}

// WithHeartbeatInterval sets the leader's heartbeat emission cadence.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(o *options) {
		o.heartbeatInterval = interval
	}
}

// WithHeartbeatTimeout sets the recency bound after which the leader is
// suspected dead. The watchdog cadence and the election cooldown are derived
// from it so the failure detector scales with the timeout.
func WithHeartbeatTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.heartbeatTimeout = timeout
		o.watchInterval = timeout / 6
		o.electionCooldown = timeout / 3
	}
}

// WithDialTimeout bounds each connection attempt to the right neighbor.
func WithDialTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// WithSettleDelay sets how long after startup the first election is kicked
// off, giving discovery a moment to converge.
func WithSettleDelay(delay time.Duration) Option {
	return func(o *options) {
		o.settleDelay = delay
	}
}

// WithSeedPeers preloads membership with statically known peers, for networks
// where multicast does not reach every node.
func WithSeedPeers(peers []Identity) Option {
	return func(o *options) {
		o.seedPeers = append(o.seedPeers, peers...)
	}
}

// WithLogger sets the logger for the node.
// If the logger is nil, the node will use a no-op logger.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}

		o.logger = logger
	}
}
