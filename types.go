package ringchat

import (
	"errors"
	"net"
	"strconv"
)

var (
	// ErrProtocol reports a malformed wire record. The offending input is
	// dropped and the transport stays open.
	ErrProtocol = errors.New("malformed protocol record")

	// ErrRingLink reports a connect or send failure on the link to the right
	// neighbor. Never fatal to the process; the coordinator reacts by
	// re-deriving neighbors and starting a fresh election.
	ErrRingLink = errors.New("ring link failure")

	// ErrNotLeader is returned when no reachable node admits a chat client.
	ErrNotLeader = errors.New("node is not the leader")
)

// Identity describes one node's listening endpoints. Immutable once the
// process has bound its listeners. ID is the ring sort key and the election
// key; cluster-wide uniqueness is the operator's responsibility.
type Identity struct {
	ID         int
	Host       string
	RingPort   int
	ClientPort int
}

func (id Identity) ringAddr() string {
	return net.JoinHostPort(id.Host, strconv.Itoa(id.RingPort))
}

func (id Identity) clientAddr() string {
	return net.JoinHostPort(id.Host, strconv.Itoa(id.ClientPort))
}

// neighbors holds the ring-adjacent peers derived from the membership
// snapshot: the view sorted by ascending id, wrapping at the ends.
type neighbors struct {
	left  *Identity
	right *Identity
}

// electionPhase is this node's local election state.
type electionPhase uint8

const (
	// phaseIdle means no election is in progress locally.
	phaseIdle electionPhase = iota
	// phaseParticipant means this node has forwarded a candidacy and awaits
	// its return or a competing one.
	phaseParticipant
)

// noLeader marks the leader as unknown.
const noLeader = -1
