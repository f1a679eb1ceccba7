package ringchat

import (
	"context"
	"fmt"
	"net"
	"time"
)

// discovery runs the multicast HELLO protocol: a periodic beacon announcing
// this node's endpoints and a group listener growing membership from peers'
// announcements. Discovery is best-effort and idempotent; it only ever grows
// the view.
type discovery struct {
	self       Identity
	membership *membership
	events     chan<- event
	options    options

	groupAddr  *net.UDPAddr
	groupConn  *net.UDPConn   // joined to the multicast group, receive side
	beaconConn net.PacketConn // send side, also receives HELLO-ACK replies
}

// newDiscovery joins the multicast group and opens the beacon socket.
func newDiscovery(self Identity, m *membership, events chan<- event, opts options) (*discovery, error) {
	var groupAddr, err = net.ResolveUDPAddr("udp4", opts.multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast group %s: %w", opts.multicastAddr, err)
	}

	groupConn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("join multicast group %s: %w", opts.multicastAddr, err)
	}

	beaconConn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		groupConn.Close()
		return nil, fmt.Errorf("open beacon socket: %w", err)
	}

	return &discovery{
		self:       self,
		membership: m,
		events:     events,
		options:    opts,
		groupAddr:  groupAddr,
		groupConn:  groupConn,
		beaconConn: beaconConn,
	}, nil
}

// close releases both sockets, unblocking the receive loops.
func (d *discovery) close() {
	d.groupConn.Close()
	d.beaconConn.Close()
}

// beaconLoop multicasts HELLO every helloInterval. Send failures are logged
// and retried on the next tick.
func (d *discovery) beaconLoop(ctx context.Context) error {
	var (
		ticker = time.NewTicker(d.options.helloInterval)
		body   = []byte(encodeHello(d.self, false))
	)
	defer ticker.Stop()

	for {
		if _, err := d.beaconConn.WriteTo(body, d.groupAddr); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.options.logger.Warn("discovery beacon failed",
				"node_id", d.self.ID,
				"error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// listenLoop consumes group datagrams until the socket is closed.
func (d *discovery) listenLoop(ctx context.Context) error {
	var buf = make([]byte, 1024)
	for {
		var n, src, err = d.groupConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery listener: %w", err)
		}
		d.handleDatagram(ctx, string(buf[:n]), src)
	}
}

// ackLoop consumes unicast HELLO-ACK replies addressed to the beacon socket.
func (d *discovery) ackLoop(ctx context.Context) error {
	var buf = make([]byte, 1024)
	for {
		var n, src, err = d.beaconConn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery ack listener: %w", err)
		}
		if udp, ok := src.(*net.UDPAddr); ok {
			d.handleDatagram(ctx, string(buf[:n]), udp)
		}
	}
}

// handleDatagram applies one discovery record. Malformed datagrams are
// ignored. A new peer grows membership and wakes the coordinator; a direct
// HELLO is answered with a unicast HELLO-ACK so the late joiner learns us
// without waiting a beacon round.
func (d *discovery) handleDatagram(ctx context.Context, body string, src *net.UDPAddr) {
	var rec, err = parseHello(body)
	if err != nil {
		d.options.logger.Debug("ignoring datagram",
			"node_id", d.self.ID,
			"error", err)
		return
	}
	if rec.id == d.self.ID {
		return
	}

	var peer = Identity{
		ID:         rec.id,
		Host:       src.IP.String(),
		RingPort:   rec.ringPort,
		ClientPort: rec.clientPort,
	}
	if !d.membership.add(peer) {
		return
	}

	d.options.logger.Info("discovered peer",
		"node_id", d.self.ID,
		"peer_id", peer.ID,
		"peer_addr", peer.ringAddr())

	select {
	case d.events <- event{kind: evPeerDiscovered, peer: peer}:
	case <-ctx.Done():
		return
	}

	if !rec.ack {
		var ack = []byte(encodeHello(d.self, true))
		if _, err := d.beaconConn.WriteTo(ack, src); err != nil {
			d.options.logger.Debug("hello ack failed",
				"node_id", d.self.ID,
				"peer_id", peer.ID,
				"error", err)
		}
	}
}

// Discover passively listens on the multicast group for wait and returns the
// identities heard, in ascending id order. This is the chat client's view of
// the cluster; a caller of Discover never joins the ring.
func Discover(ctx context.Context, multicastAddr string, wait time.Duration) ([]Identity, error) {
	var groupAddr, err = net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast group %s: %w", multicastAddr, err)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("join multicast group %s: %w", multicastAddr, err)
	}
	defer conn.Close()

	var deadline = time.Now().Add(wait)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set discovery deadline: %w", err)
	}

	var (
		found = make(map[int]Identity)
		buf   = make([]byte, 1024)
	)
	for {
		var n, src, readErr = conn.ReadFromUDP(buf)
		if readErr != nil {
			break
		}
		rec, parseErr := parseHello(string(buf[:n]))
		if parseErr != nil {
			continue
		}
		found[rec.id] = Identity{
			ID:         rec.id,
			Host:       src.IP.String(),
			RingPort:   rec.ringPort,
			ClientPort: rec.clientPort,
		}
	}

	var peers = make([]Identity, 0, len(found))
	for _, peer := range found {
		peers = append(peers, peer)
	}
	sortIdentities(peers)
	return peers, ctx.Err()
}

// localIP finds the address peers can reach us on, by routing a datagram
// toward the multicast group.
func localIP(multicastAddr string) string {
	var conn, err = net.Dial("udp4", multicastAddr)
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
