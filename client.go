package ringchat

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// ChatClient is a connection to the leader's chat relay. Clients never take
// part in ring or election traffic; they find the cluster via Discover and
// the leader via DialLeader.
type ChatClient struct {
	// Peer is the node that admitted this client.
	Peer Identity

	conn   net.Conn
	reader *bufio.Reader
}

// DialLeader tries each candidate's chat port in ascending id order and
// returns a client for whichever node greets it with WELCOME. Nodes that
// refuse with NOT_LEADER, or that cannot be reached, are skipped.
func DialLeader(peers []Identity, timeout time.Duration) (*ChatClient, error) {
	var candidates = make([]Identity, len(peers))
	copy(candidates, peers)
	sortIdentities(candidates)

	for _, peer := range candidates {
		var conn, err = net.DialTimeout("tcp", peer.clientAddr(), timeout)
		if err != nil {
			continue
		}

		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			conn.Close()
			continue
		}

		var reader = bufio.NewReader(conn)
		greeting, err := reader.ReadString('\n')
		if err != nil || strings.TrimSpace(greeting) != recWelcome {
			conn.Close()
			continue
		}

		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			conn.Close()
			continue
		}
		return &ChatClient{Peer: peer, conn: conn, reader: reader}, nil
	}

	return nil, ErrNotLeader
}

// Send submits one chat line for broadcast.
func (c *ChatClient) Send(text string) error {
	if _, err := c.conn.Write([]byte(text + "\n")); err != nil {
		return fmt.Errorf("send chat line: %w", err)
	}
	return nil
}

// Recv blocks for the next broadcast line, returned without its newline.
func (c *ChatClient) Recv() (string, error) {
	var line, err = c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("receive chat line: %w", err)
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// Close drops the connection.
func (c *ChatClient) Close() error {
	return c.conn.Close()
}
