package ringchat

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Node is one member of the cluster. It discovers peers over multicast,
// maintains its two ring edges, takes part in leader election, circulates
// heartbeats, and relays chat while it leads.
type Node struct {
	identity   Identity
	options    options
	membership *membership
	discovery  *discovery
	links      *ringLinks
	relay      *relay
	coord      *coordinator
	events     chan event

	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// New creates an unstarted node with the given operator-assigned id.
func New(id int, opts ...Option) *Node {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Node{
		identity: Identity{ID: id},
		options:  options,
		events:   make(chan event, 64),
	}
}

// Start binds the listeners, completes this node's identity, and launches the
// background loops. Failing to bind is the only fatal startup error.
func (n *Node) Start(ctx context.Context) error {
	var host = n.options.bindHost
	if host == "" {
		host = localIP(n.options.multicastAddr)
	}

	var ringLn, err = net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(n.options.ringPort)))
	if err != nil {
		return fmt.Errorf("bind ring listener: %w", err)
	}
	clientLn, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(n.options.clientPort)))
	if err != nil {
		ringLn.Close()
		return fmt.Errorf("bind client listener: %w", err)
	}

	n.identity.Host = host
	n.identity.RingPort = ringLn.Addr().(*net.TCPAddr).Port
	n.identity.ClientPort = clientLn.Addr().(*net.TCPAddr).Port

	n.membership = newMembership(n.identity)
	for _, seed := range n.options.seedPeers {
		if seed.ID != n.identity.ID {
			n.membership.add(seed)
		}
	}

	n.links = newRingLinks(n.identity.ID, ringLn, n.events, n.options)
	n.relay = newRelay(clientLn, n.options.logger)

	var (
		elect = newElection(n.identity.ID, n.links, n.options)
		hb    = newHeartbeat(n.options.heartbeatTimeout)
	)
	n.coord = newCoordinator(n.identity, n.membership, n.links, elect, hb, n.relay, n.events, n.options)

	n.discovery, err = newDiscovery(n.identity, n.membership, n.events, n.options)
	if err != nil {
		ringLn.Close()
		clientLn.Close()
		return fmt.Errorf("start discovery: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	group, groupCtx := errgroup.WithContext(runCtx)
	n.group = group

	group.Go(func() error { return n.coord.run(groupCtx) })
	group.Go(func() error { return n.discovery.beaconLoop(groupCtx) })
	group.Go(func() error { return n.discovery.listenLoop(groupCtx) })
	group.Go(func() error { return n.discovery.ackLoop(groupCtx) })
	group.Go(func() error { return n.links.acceptLoop(groupCtx) })
	group.Go(func() error { return n.relay.acceptLoop(groupCtx) })
	group.Go(func() error { return n.coord.heartbeatLoop(groupCtx) })
	group.Go(func() error { return n.coord.watchdogLoop(groupCtx) })
	group.Go(func() error { return n.kickoff(groupCtx) })
	group.Go(func() error {
		// Unblock every listener and connection once the group winds down.
		<-groupCtx.Done()
		n.discovery.close()
		n.links.close()
		n.relay.close()
		return nil
	})

	n.started = true
	n.options.logger.Info("node started",
		"node_id", n.identity.ID,
		"host", host,
		"ring_port", n.identity.RingPort,
		"client_port", n.identity.ClientPort)
	return nil
}

// kickoff schedules the first election once discovery has had a moment to
// settle.
func (n *Node) kickoff(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(n.options.settleDelay):
	}

	select {
	case n.events <- event{kind: evElectionKickoff}:
	case <-ctx.Done():
	}
	return nil
}

// Stop halts the node and waits for its loops. Departure is abrupt by
// design of the protocol: neighbors treat it as a failure.
func (n *Node) Stop() error {
	if !n.started {
		return fmt.Errorf("node not started")
	}

	n.cancel()
	var err = n.group.Wait()
	n.options.logger.Info("node stopped", "node_id", n.identity.ID)
	return err
}

// ForceElection asks the coordinator to start a new election round.
func (n *Node) ForceElection() {
	select {
	case n.events <- event{kind: evElectionKickoff}:
	default:
	}
}

// Identity returns this node's bound endpoints. Valid after Start.
func (n *Node) Identity() Identity {
	return n.identity
}

// Leader returns the currently known leader id, or -1 while none is known.
func (n *Node) Leader() int {
	return int(n.coord.leaderView.Load())
}

// IsLeader reports whether this node currently believes itself leader.
func (n *Node) IsLeader() bool {
	return n.Leader() == n.identity.ID
}

// String renders a status line for operator displays.
func (n *Node) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Node %d @ %s (ring:%d client:%d)\n",
		n.identity.ID, n.identity.Host, n.identity.RingPort, n.identity.ClientPort)

	switch leader := n.Leader(); {
	case leader == n.identity.ID:
		fmt.Fprintf(&b, "Leader: %d (this node)\n", leader)
	case leader == noLeader:
		b.WriteString("Leader: unknown\n")
	default:
		fmt.Fprintf(&b, "Leader: %d\n", leader)
	}

	var nb = n.membership.neighbors()
	if nb.left != nil && nb.right != nil {
		fmt.Fprintf(&b, "Neighbors: left=%d right=%d\n", nb.left.ID, nb.right.ID)
	} else {
		b.WriteString("Neighbors: none (alone)\n")
	}

	b.WriteString("Members:")
	for _, peer := range n.membership.snapshot() {
		fmt.Fprintf(&b, " %d", peer.ID)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Chat sessions: %d\n", n.relay.sessionCount())
	return b.String()
}
