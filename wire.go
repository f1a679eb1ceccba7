package ringchat

import (
	"fmt"
	"strconv"
	"strings"
)

// Record tags of the line-oriented wire protocols. Discovery datagrams carry
// HELLO/HELLO-ACK; ring links carry ELECTION/LEADER/HEARTBEAT; the chat
// handshake answers WELCOME or NOT_LEADER.
const (
	recHello     = "HELLO"
	recHelloAck  = "HELLO-ACK"
	recElection  = "ELECTION"
	recLeader    = "LEADER"
	recHeartbeat = "HEARTBEAT"
	recWelcome   = "WELCOME"
	recNotLeader = "NOT_LEADER"
)

// helloRecord is the payload of a discovery datagram. The sender's host is
// taken from the datagram source address, not the payload.
type helloRecord struct {
	ack        bool
	id         int
	ringPort   int
	clientPort int
}

// ringRecord is one message circulating on the ring. It travels strictly to
// the right neighbor; the ring forwards it onward.
type ringRecord struct {
	kind string
	id   int
}

// encodeHello formats a discovery datagram body.
func encodeHello(self Identity, ack bool) string {
	var tag = recHello
	if ack {
		tag = recHelloAck
	}
	return fmt.Sprintf("%s %d %d %d", tag, self.ID, self.RingPort, self.ClientPort)
}

// parseHello decodes a discovery datagram body.
func parseHello(body string) (helloRecord, error) {
	var fields = strings.Fields(body)
	if len(fields) != 4 {
		return helloRecord{}, fmt.Errorf("%w: %q", ErrProtocol, body)
	}
	if fields[0] != recHello && fields[0] != recHelloAck {
		return helloRecord{}, fmt.Errorf("%w: unknown datagram %q", ErrProtocol, body)
	}

	var (
		rec = helloRecord{ack: fields[0] == recHelloAck}
		err error
	)
	if rec.id, err = strconv.Atoi(fields[1]); err != nil {
		return helloRecord{}, fmt.Errorf("%w: bad id in %q", ErrProtocol, body)
	}
	if rec.ringPort, err = strconv.Atoi(fields[2]); err != nil {
		return helloRecord{}, fmt.Errorf("%w: bad ring port in %q", ErrProtocol, body)
	}
	if rec.clientPort, err = strconv.Atoi(fields[3]); err != nil {
		return helloRecord{}, fmt.Errorf("%w: bad client port in %q", ErrProtocol, body)
	}
	return rec, nil
}

// encodeRing formats one ring record, without the trailing newline.
func encodeRing(rec ringRecord) string {
	return fmt.Sprintf("%s %d", rec.kind, rec.id)
}

// parseRing decodes one newline-stripped ring record.
func parseRing(line string) (ringRecord, error) {
	var fields = strings.Fields(line)
	if len(fields) != 2 {
		return ringRecord{}, fmt.Errorf("%w: %q", ErrProtocol, line)
	}
	switch fields[0] {
	case recElection, recLeader, recHeartbeat:
	default:
		return ringRecord{}, fmt.Errorf("%w: unknown record %q", ErrProtocol, line)
	}

	var id, err = strconv.Atoi(fields[1])
	if err != nil {
		return ringRecord{}, fmt.Errorf("%w: bad id in %q", ErrProtocol, line)
	}
	return ringRecord{kind: fields[0], id: id}, nil
}

// formatChat tags a client line with the relaying leader's id.
func formatChat(leaderID int, text string) string {
	return fmt.Sprintf("[%d] %s", leaderID, text)
}
