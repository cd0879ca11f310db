package server

import (
	"net"
	"sync"

	"github.com/sevag-tafnakaji/sol-broker/internal/metrics"
)

// Client is a connected, CONNECT-registered peer. It implements
// registry.Destroyable: Destroy closes the socket and accounts the
// disconnect in metrics. Purging this client's subscriber entries is
// the caller's responsibility, since the two paths that tear a Client
// down disagree on when to do it: a second CONNECT displacing this one
// (handleConnect) must purge unconditionally, while a graceful
// DISCONNECT (handleDisconnect) purges only if the session was
// cleansession=true. internal/topic's weak pointers are defense in
// depth for whatever either path leaves behind, not a substitute for
// either purge.
type Client struct {
	ID      string
	Conn    net.Conn
	Session *Session

	hasWill     bool
	WillTopic   string
	WillMessage []byte
	WillQoS     byte
	WillRetain  bool

	subMu    sync.Mutex
	subTopic map[string]struct{}

	writeMu sync.Mutex
	srv     *Server
}

func newClient(id string, conn net.Conn, session *Session, srv *Server) *Client {
	return &Client{ID: id, Conn: conn, Session: session, srv: srv, subTopic: make(map[string]struct{})}
}

func (c *Client) trackSubscribe(topic string) {
	c.subMu.Lock()
	c.subTopic[topic] = struct{}{}
	c.subMu.Unlock()
}

func (c *Client) untrackSubscribe(topic string) {
	c.subMu.Lock()
	delete(c.subTopic, topic)
	c.subMu.Unlock()
}

func (c *Client) trackedTopics() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	out := make([]string, 0, len(c.subTopic))
	for t := range c.subTopic {
		out = append(out, t)
	}
	return out
}

// purgeSubscriptions unconditionally removes every subscriber entry
// this client left behind, across every topic it ever subscribed to.
// handleConnect calls this before displacing a prior same-id client
// (always, regardless of that client's cleansession flag); handleDisconnect
// calls it only when the disconnecting client's session was
// cleansession=true.
func (c *Client) purgeSubscriptions() {
	for _, name := range c.trackedTopics() {
		if t, ok := c.srv.topics.Get(name); ok {
			t.Unsubscribe(c)
		}
	}
}

// Destroy closes the socket and accounts the disconnect in metrics. It
// does not purge subscriber entries — see purgeSubscriptions and the
// Client doc comment for why that's the caller's job.
func (c *Client) Destroy() {
	c.Conn.Close()
	c.srv.disconnectedTotal.Add(1)
	metrics.ClientsConnected.Dec()
	metrics.ClientsDisconnectedTotal.Inc()
}

// write serializes pkt and sends it to the client, updating the
// broker's bytes/messages-sent counters. Concurrent fan-out deliveries
// from multiple topics can target the same client at once, hence the
// per-client write lock — the source's single-threaded loop needed no
// equivalent.
func (c *Client) write(pkt interface{ Encode() ([]byte, error) }) error {
	wire, err := pkt.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	n, err := c.Conn.Write(wire)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	c.srv.bytesSent.Add(uint64(n))
	c.srv.messagesSent.Add(1)
	metrics.BytesSent.Add(float64(n))
	return nil
}
