package ringchat

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// relay is the leader-role chat fan-out. The listener stays bound for the
// whole process lifetime, since its port is advertised in HELLO long before
// any election settles; only the acceptance policy follows leadership. A
// non-leader politely refuses with NOT_LEADER.
type relay struct {
	mu       sync.Mutex
	leading  bool
	leaderID int
	sessions map[string]net.Conn

	listener net.Listener
	logger   *slog.Logger
}

// newRelay wraps an already-bound client listener.
func newRelay(listener net.Listener, logger *slog.Logger) *relay {
	return &relay{
		sessions: make(map[string]net.Conn),
		listener: listener,
		logger:   logger,
	}
}

// setLeadership flips the relay between leader and bystander roles. Losing
// leadership drops every open session; the listener stays bound.
func (r *relay) setLeadership(leaderID int, leading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaderID = leaderID
	if leading == r.leading {
		return
	}
	r.leading = leading

	if !leading {
		for sid, conn := range r.sessions {
			conn.Close()
			delete(r.sessions, sid)
		}
		r.logger.Info("chat relay deactivated")
	} else {
		r.logger.Info("chat relay activated", "leader_id", leaderID)
	}
}

// sessionCount returns the number of open chat sessions.
func (r *relay) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// close shuts the listener and every open session.
func (r *relay) close() {
	r.listener.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, conn := range r.sessions {
		conn.Close()
		delete(r.sessions, sid)
	}
}

// acceptLoop admits chat clients while leading and refuses them otherwise.
func (r *relay) acceptLoop(ctx context.Context) error {
	for {
		var conn, err = r.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client accept: %w", err)
		}

		r.mu.Lock()
		if !r.leading {
			r.mu.Unlock()
			conn.Write([]byte(recNotLeader + "\n"))
			conn.Close()
			continue
		}
		if _, err := conn.Write([]byte(recWelcome + "\n")); err != nil {
			r.mu.Unlock()
			conn.Close()
			continue
		}
		var sid = uuid.NewString()
		r.sessions[sid] = conn
		r.mu.Unlock()

		r.logger.Info("chat client connected",
			"session_id", sid,
			"remote", conn.RemoteAddr().String())
		go r.serveSession(sid, conn)
	}
}

// serveSession relays one client's lines until it disconnects.
func (r *relay) serveSession(sid string, conn net.Conn) {
	var scanner = bufio.NewScanner(conn)
	for scanner.Scan() {
		var text = scanner.Text()
		if text == "" {
			continue
		}
		r.broadcast(text)
	}
	r.drop(sid)
}

// broadcast sends one tagged line to every open session, the sender included.
// Holding the session lock for the whole fan-out serializes broadcasts, so
// lines never interleave mid-message. A failed write prunes only that
// session.
func (r *relay) broadcast(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var line = []byte(formatChat(r.leaderID, text) + "\n")
	for sid, conn := range r.sessions {
		if _, err := conn.Write(line); err != nil {
			r.logger.Warn("pruning chat session",
				"session_id", sid,
				"error", err)
			conn.Close()
			delete(r.sessions, sid)
		}
	}
}

// drop removes one session after its read side ended.
func (r *relay) drop(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.sessions[sid]; ok {
		conn.Close()
		delete(r.sessions, sid)
	}
}
