package ringchat

import (
	"time"
)

// ringSender is the slice of the ring links the election needs.
type ringSender interface {
	sendRight(rec ringRecord) error
}

// election owns the Chang-Roberts state for this node. It is driven
// exclusively by the coordinator goroutine, so it does no locking of its own.
type election struct {
	selfID    int
	phase     electionPhase
	leaderID  int
	lastStart time.Time
	links     ringSender
	options   options
}

// newElection creates the state machine with no known leader.
func newElection(selfID int, links ringSender, opts options) *election {
	return &election{
		selfID:   selfID,
		leaderID: noLeader,
		links:    links,
		options:  opts,
	}
}

// initiate nominates this node, unless an initiation is already in flight
// within the cooldown window. The cooldown keeps topology churn during
// convergence from restarting rounds on every membership update.
func (e *election) initiate() error {
	var now = time.Now()
	if now.Sub(e.lastStart) < e.options.electionCooldown {
		return nil
	}
	e.lastStart = now

	e.options.logger.Info("initiating election", "node_id", e.selfID)
	e.phase = phaseParticipant
	return e.links.sendRight(ringRecord{kind: recElection, id: e.selfID})
}

// onElection applies one received ELECTION record by the Chang-Roberts rules.
func (e *election) onElection(id int) error {
	switch {
	case id == e.selfID:
		// Own id made it all the way around the ring: this node wins and
		// announces itself.
		e.leaderID = e.selfID
		e.phase = phaseIdle
		e.options.logger.Info("won election", "node_id", e.selfID)
		return e.links.sendRight(ringRecord{kind: recLeader, id: e.selfID})

	case id > e.selfID:
		// A higher candidacy: yield and forward it unchanged.
		e.phase = phaseParticipant
		return e.links.sendRight(ringRecord{kind: recElection, id: id})

	case e.phase == phaseParticipant:
		// Already championing a value at least this large: suppress.
		return nil

	default:
		// A lower candidacy while idle: substitute our own.
		e.phase = phaseParticipant
		return e.links.sendRight(ringRecord{kind: recElection, id: e.selfID})
	}
}

// onLeader adopts an announced leader and propagates the announcement once
// around the ring. An announcement returning to its origin stops; that is the
// sole termination condition.
func (e *election) onLeader(id int) error {
	e.leaderID = id
	e.phase = phaseIdle

	if id == e.selfID {
		return nil
	}
	e.options.logger.Info("leader announced",
		"node_id", e.selfID,
		"leader_id", id)
	return e.links.sendRight(ringRecord{kind: recLeader, id: id})
}

// adopt records a leader learned from its circulating heartbeat.
func (e *election) adopt(id int) {
	e.leaderID = id
}

// leader returns the currently known leader id, or noLeader.
func (e *election) leader() int {
	return e.leaderID
}

// isLeader reports whether this node believes itself leader.
func (e *election) isLeader() bool {
	return e.leaderID == e.selfID
}

// clearLeader forgets the current leader, typically after its heartbeats
// stop.
func (e *election) clearLeader() {
	e.leaderID = noLeader
}
