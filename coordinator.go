package ringchat

import (
	"context"
	"sync/atomic"
	"time"
)

// eventKind discriminates coordinator inputs.
type eventKind uint8

const (
	evPeerDiscovered eventKind = iota
	evRingMessage
	evLinkBroken
	evHeartbeatTick
	evTimeoutCheck
	evElectionKickoff
)

// event is one input to the coordinator loop.
type event struct {
	kind   eventKind
	peer   Identity   // evPeerDiscovered
	msg    ringRecord // evRingMessage
	peerID int        // evLinkBroken: the unreachable neighbor
}

// coordinator serializes every election, leadership and heartbeat transition.
// All mutable coordination state is touched from its run loop only, one event
// at a time, so transitions are atomic with respect to concurrently arriving
// ring messages.
type coordinator struct {
	self       Identity
	membership *membership
	links      *ringLinks
	election   *election
	hb         *heartbeat
	relay      *relay
	events     chan event
	options    options

	// leaderView mirrors the election's leader id for readers outside the
	// coordinator goroutine.
	leaderView atomic.Int64
}

// newCoordinator wires the coordination state together.
func newCoordinator(self Identity, m *membership, links *ringLinks, e *election, hb *heartbeat, relay *relay, events chan event, opts options) *coordinator {
	var c = &coordinator{
		self:       self,
		membership: m,
		links:      links,
		election:   e,
		hb:         hb,
		relay:      relay,
		events:     events,
		options:    opts,
	}
	c.leaderView.Store(noLeader)
	return c
}

// run consumes events until ctx is done.
func (c *coordinator) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// handle applies one event, then re-synchronizes the relay's leadership role
// and the externally visible leader id.
func (c *coordinator) handle(ev event) {
	switch ev.kind {
	case evPeerDiscovered:
		c.onPeerDiscovered()
	case evRingMessage:
		c.onRingMessage(ev.msg)
	case evLinkBroken:
		c.onLinkBroken(ev.peerID)
	case evHeartbeatTick:
		c.onHeartbeatTick()
	case evTimeoutCheck:
		c.onTimeoutCheck()
	case evElectionKickoff:
		c.startElection()
	}

	c.leaderView.Store(int64(c.election.leader()))
	c.relay.setLeadership(c.election.leader(), c.election.isLeader())
}

// onPeerDiscovered folds a membership change into the topology. A leaderless
// node with a fresh right neighbor tries to elect, cooldown permitting.
func (c *coordinator) onPeerDiscovered() {
	c.refreshNeighbors()
	if c.election.leader() == noLeader {
		c.startElection()
	}
}

// refreshNeighbors recomputes left/right from the membership snapshot and
// retargets the outbound link if the right neighbor moved.
func (c *coordinator) refreshNeighbors() {
	var n = c.membership.neighbors()
	c.links.setRight(n.right)
}

// startElection initiates a round, mapping a send failure onto link breakage.
func (c *coordinator) startElection() {
	if _, ok := c.links.rightID(); !ok {
		return
	}
	if err := c.election.initiate(); err != nil {
		c.onSendFailure(err)
	}
}

// onRingMessage routes one inbound ring record to the election or heartbeat
// logic. A failure while forwarding is evidence of a ring break.
func (c *coordinator) onRingMessage(msg ringRecord) {
	var err error
	switch msg.kind {
	case recElection:
		err = c.election.onElection(msg.id)
		if err == nil && c.election.isLeader() {
			// Fresh leadership also primes the recency clock.
			c.hb.observe()
		}
	case recLeader:
		err = c.election.onLeader(msg.id)
		c.hb.observe()
	case recHeartbeat:
		err = c.onHeartbeat(msg.id)
	}

	if err != nil {
		c.onSendFailure(err)
	}
}

// onHeartbeat refreshes leader recency and keeps the token circulating.
func (c *coordinator) onHeartbeat(id int) error {
	c.hb.observe()
	if id == c.self.ID {
		// Our own token returning is only meaningful while leading; a
		// non-leader seeing its own id resets and drops it.
		return nil
	}

	c.election.adopt(id)
	return c.links.sendRight(ringRecord{kind: recHeartbeat, id: id})
}

// onHeartbeatTick emits the liveness token when this node leads.
func (c *coordinator) onHeartbeatTick() {
	if !c.election.isLeader() {
		return
	}
	if err := c.links.sendRight(ringRecord{kind: recHeartbeat, id: c.self.ID}); err != nil {
		c.onSendFailure(err)
		return
	}
	c.hb.observe()
}

// onTimeoutCheck suspects the leader once its token has been quiet past the
// timeout. A leaderless node instead keeps nudging the election along,
// cooldown permitting, which also recovers rounds lost to a ring break.
func (c *coordinator) onTimeoutCheck() {
	if c.election.leader() == noLeader {
		c.startElection()
		return
	}
	if c.election.isLeader() {
		return
	}
	if !c.hb.expired(time.Now()) {
		return
	}

	c.options.logger.Warn("leader heartbeat timed out",
		"node_id", c.self.ID,
		"leader_id", c.election.leader())
	c.election.clearLeader()
	c.startElection()
}

// onLinkBroken removes the unreachable neighbor from the view (the only path
// that ever shrinks membership), re-derives the ring around the gap, and
// starts a fresh election.
func (c *coordinator) onLinkBroken(peerID int) {
	c.options.logger.Warn("ring link broken",
		"node_id", c.self.ID,
		"peer_id", peerID)

	c.links.closeOutbound()
	c.membership.remove(peerID)
	if c.election.leader() == peerID {
		c.election.clearLeader()
	}
	c.refreshNeighbors()
	c.startElection()
}

// onSendFailure maps a failed forward onto breakage of the current right
// link.
func (c *coordinator) onSendFailure(err error) {
	c.options.logger.Warn("ring send failed",
		"node_id", c.self.ID,
		"error", err)

	var rid, ok = c.links.rightID()
	if !ok {
		return
	}
	c.onLinkBroken(rid)
}
