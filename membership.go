package ringchat

import (
	"sort"
	"sync"
)

// membership is this node's view of the cluster: id -> endpoints. Discovery
// grows it; only ring link failures shrink it. It always contains self. The
// view is eventually consistent across nodes, never strongly so.
type membership struct {
	mu      sync.RWMutex
	selfID  int
	members map[int]Identity
}

// newMembership creates a view containing only self.
func newMembership(self Identity) *membership {
	var m = &membership{
		selfID:  self.ID,
		members: make(map[int]Identity),
	}
	m.members[self.ID] = self
	return m
}

// add records a peer. Returns true if the peer was not known before;
// re-announcements of a known id are no-ops.
func (m *membership) add(peer Identity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, known := m.members[peer.ID]; known {
		return false
	}
	m.members[peer.ID] = peer
	return true
}

// remove drops a peer from the view. Self is never removed.
func (m *membership) remove(id int) {
	if id == m.selfID {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, id)
}

// get looks up a member by id.
func (m *membership) get(id int) (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var peer, ok = m.members[id]
	return peer, ok
}

// size returns the number of known members, self included.
func (m *membership) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

// snapshot returns all known identities in ascending id order.
func (m *membership) snapshot() []Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all = make([]Identity, 0, len(m.members))
	for _, peer := range m.members {
		all = append(all, peer)
	}
	sortIdentities(all)
	return all
}

// sortIdentities orders identities by ascending id, the ring order.
func sortIdentities(peers []Identity) {
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID < peers[j].ID
	})
}

// neighbors derives the ring-adjacent peers of self from the current view.
// The smallest id's left is the largest, the largest id's right is the
// smallest. Both are unset while self is alone.
func (m *membership) neighbors() neighbors {
	var all = m.snapshot()
	if len(all) < 2 {
		return neighbors{}
	}

	var idx = -1
	for i, peer := range all {
		if peer.ID == m.selfID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return neighbors{}
	}

	var (
		left  = all[(idx-1+len(all))%len(all)]
		right = all[(idx+1)%len(all)]
	)
	return neighbors{left: &left, right: &right}
}
