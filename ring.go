package ringchat

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// ringLinks owns this node's two ring edges: a persistent outbound TCP
// connection to the right neighbor and the listener accepting the left
// neighbor's inbound connection. TCP keeps each edge ordered and lossless,
// which the election depends on.
type ringLinks struct {
	mu      sync.Mutex
	right   *Identity
	conn    net.Conn
	dialSeq int // bumped on every retarget, aborts stale dial attempts
	inbound map[net.Conn]struct{}

	selfID   int
	listener net.Listener
	events   chan<- event
	options  options
}

// newRingLinks wraps an already-bound ring listener.
func newRingLinks(selfID int, listener net.Listener, events chan<- event, opts options) *ringLinks {
	return &ringLinks{
		inbound:  make(map[net.Conn]struct{}),
		selfID:   selfID,
		listener: listener,
		events:   events,
		options:  opts,
	}
}

// setRight retargets the outbound link. A change closes the current
// connection and abandons any in-flight dial; the next send dials lazily.
// Retargeting to the same neighbor is a no-op.
func (r *ringLinks) setRight(peer *Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if peer == nil && r.right == nil {
		return
	}
	if peer != nil && r.right != nil && *peer == *r.right {
		return
	}

	r.right = peer
	r.dialSeq++
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}

	if peer != nil {
		r.options.logger.Debug("right neighbor set",
			"node_id", r.selfID,
			"right_id", peer.ID,
			"right_addr", peer.ringAddr())
	}
}

// rightID returns the current right neighbor's id, if one is set.
func (r *ringLinks) rightID() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.right == nil {
		return 0, false
	}
	return r.right.ID, true
}

// sendRight delivers one ring record to the right neighbor, dialing lazily if
// no connection is up. A failure is returned, never retried transparently;
// the caller decides what a broken ring means.
func (r *ringLinks) sendRight(rec ringRecord) error {
	r.mu.Lock()
	if r.right == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: no right neighbor", ErrRingLink)
	}
	var (
		target = *r.right
		seq    = r.dialSeq
		conn   = r.conn
	)
	r.mu.Unlock()

	if conn == nil {
		var err error
		if conn, err = r.dial(target, seq); err != nil {
			return err
		}
	}

	if _, err := conn.Write([]byte(encodeRing(rec) + "\n")); err != nil {
		r.dropConn(conn)
		return fmt.Errorf("%w: send %s to node %d: %v", ErrRingLink, rec.kind, target.ID, err)
	}
	return nil
}

// dial connects to the target with bounded backoff, abandoning the attempt if
// the right neighbor changes underneath it. The lock is never held across a
// connection wait.
func (r *ringLinks) dial(target Identity, seq int) (net.Conn, error) {
	var (
		backoff = r.options.dialTimeout / 8
		lastErr error
	)

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		r.mu.Lock()
		if r.dialSeq != seq {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: right neighbor changed during dial", ErrRingLink)
		}
		if r.conn != nil {
			var existing = r.conn
			r.mu.Unlock()
			return existing, nil
		}
		r.mu.Unlock()

		var conn, err = net.DialTimeout("tcp", target.ringAddr(), r.options.dialTimeout)
		if err != nil {
			lastErr = err
			continue
		}

		r.mu.Lock()
		if r.dialSeq != seq {
			r.mu.Unlock()
			conn.Close()
			return nil, fmt.Errorf("%w: right neighbor changed during dial", ErrRingLink)
		}
		r.conn = conn
		r.mu.Unlock()
		return conn, nil
	}

	return nil, fmt.Errorf("%w: dial node %d at %s: %v", ErrRingLink, target.ID, target.ringAddr(), lastErr)
}

// dropConn closes conn and forgets it if it is still the installed one.
func (r *ringLinks) dropConn(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn.Close()
	if r.conn == conn {
		r.conn = nil
	}
}

// closeOutbound tears down the outbound link; the next send re-dials.
func (r *ringLinks) closeOutbound() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// close shuts the listener and every live ring connection.
func (r *ringLinks) close() {
	r.listener.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	for conn := range r.inbound {
		conn.Close()
	}
}

// acceptLoop serves inbound ring connections. The left neighbor holds at most
// one at a time, but a stale predecessor may linger briefly after a topology
// change.
func (r *ringLinks) acceptLoop(ctx context.Context) error {
	for {
		var conn, err = r.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ring accept: %w", err)
		}
		go r.readLoop(ctx, conn)
	}
}

// readLoop turns inbound ring lines into coordinator events until the
// connection drops. Malformed records are logged and dropped; the connection
// stays up.
func (r *ringLinks) readLoop(ctx context.Context, conn net.Conn) {
	r.mu.Lock()
	r.inbound[conn] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inbound, conn)
		r.mu.Unlock()
		conn.Close()
	}()

	var scanner = bufio.NewScanner(conn)
	for scanner.Scan() {
		var rec, err = parseRing(scanner.Text())
		if err != nil {
			r.options.logger.Warn("dropping ring record",
				"node_id", r.selfID,
				"error", err)
			continue
		}

		select {
		case r.events <- event{kind: evRingMessage, msg: rec}:
		case <-ctx.Done():
			return
		}
	}
}
