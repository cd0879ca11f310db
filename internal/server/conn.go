package server

import (
	"context"
	"fmt"
	"net"

	"github.com/sevag-tafnakaji/sol-broker/internal/metrics"
	"github.com/sevag-tafnakaji/sol-broker/internal/mqtt"
)

// acceptor is the eventloop.Closure wrapping the listening socket — the
// Go reformulation of the source's on_accept closure. Its Run loops
// Accept() until ctx is canceled, registering one conn closure per
// accepted socket.
type acceptor struct {
	srv *Server
	ln  net.Listener
}

func (a *acceptor) ID() string { return "acceptor" }

func (a *acceptor) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		a.ln.Close()
	}()

	for {
		nc, err := a.ln.Accept()
		if err != nil {
			return
		}
		if tc, ok := nc.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		metrics.ConnectionsTotal.Inc()
		id := fmt.Sprintf("conn-%d", a.srv.connSeq.Add(1))
		a.srv.loop.Register(&conn{id: id, srv: a.srv, netConn: nc})
	}
}

func (a *acceptor) Destroy() { a.ln.Close() }

// conn is the per-connection closure: the source's on_read / dispatch /
// on_write cycle collapsed into one goroutine's sequential loop, since
// Go's blocking net.Conn reads make the non-blocking EAGAIN dance
// unnecessary. Exactly one handler is ever in flight per connection, by
// construction — the Go expression of the one-shot re-arm guarantee.
type conn struct {
	id      string
	srv     *Server
	netConn net.Conn
	client  *Client
}

func (c *conn) ID() string { return c.id }

func (c *conn) Run(ctx context.Context) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.netConn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		h, body, err := mqtt.ReadPacket(c.netConn, c.srv.cfg.MaxRequestSize)
		if err != nil {
			if c.client != nil {
				c.srv.log.Debugf("%s: %s disconnected: %v", c.id, c.client.ID, err)
			} else {
				c.srv.log.Debugf("%s: closed before CONNECT: %v", c.id, err)
			}
			return
		}

		n := uint64(1 + len(body))
		c.srv.bytesReceived.Add(n)
		metrics.BytesReceived.Add(float64(n))

		pkt, err := mqtt.Decode(h, body)
		if err != nil {
			c.srv.log.Warnf("%s: decode error: %v", c.id, err)
			return
		}
		metrics.MessagesReceived.WithLabelValues(h.Type.String()).Inc()
		c.srv.messagesReceived.Add(1)

		done, err := c.dispatch(pkt)
		if err != nil {
			c.srv.log.Warnf("%s: %v", c.id, err)
			return
		}
		if done {
			return
		}
	}
}

// dispatch runs the handler for one decoded packet and reports whether
// the connection should close after it (a rejected CONNECT, or a
// graceful DISCONNECT).
func (c *conn) dispatch(pkt mqtt.Packet) (bool, error) {
	switch p := pkt.(type) {
	case *mqtt.ConnectPacket:
		client, ack := c.srv.handleConnect(c.netConn, p)
		if err := c.writeDirect(ack); err != nil {
			return true, err
		}
		if client == nil {
			return true, nil
		}
		c.client = client
		return false, nil

	case *mqtt.SubscribePacket:
		if c.client == nil {
			return true, errProtocolViolation
		}
		ack := c.srv.handleSubscribe(c.client, p)
		return false, c.client.write(ack)

	case *mqtt.UnsubscribePacket:
		if c.client == nil {
			return true, errProtocolViolation
		}
		ack := c.srv.handleUnsubscribe(c.client, p)
		return false, c.client.write(ack)

	case *mqtt.PublishPacket:
		if c.client == nil {
			return true, errProtocolViolation
		}
		return false, c.srv.handlePublish(c.client, p)

	case *mqtt.PubrelPacket:
		if c.client == nil {
			return true, errProtocolViolation
		}
		return false, c.client.write(&mqtt.PubcompPacket{PacketID: p.PacketID})

	case *mqtt.PubackPacket, *mqtt.PubrecPacket, *mqtt.PubcompPacket:
		return false, nil // accepted, no response

	case *mqtt.PingreqPacket:
		resp := mqtt.NewPingresp()
		if c.client != nil {
			return false, c.client.write(resp)
		}
		return false, c.writeDirect(resp)

	case *mqtt.DisconnectPacket:
		if c.client != nil {
			c.srv.handleDisconnect(c.client)
		}
		return true, nil

	default:
		return false, nil
	}
}

// writeDirect writes a packet before a Client exists yet (the CONNACK
// for a connection that has not registered, successfully or not).
func (c *conn) writeDirect(pkt interface{ Encode() ([]byte, error) }) error {
	wire, err := pkt.Encode()
	if err != nil {
		return err
	}
	n, err := c.netConn.Write(wire)
	if err != nil {
		return err
	}
	c.srv.bytesSent.Add(uint64(n))
	c.srv.messagesSent.Add(1)
	metrics.BytesSent.Add(float64(n))
	return nil
}

// Destroy deregisters this connection's client, if it registered one and
// the registry still holds it — Registry.Delete invokes Client.Destroy,
// which closes the socket (it does not purge subscriber entries). A
// connection that never completed CONNECT, or whose client was already
// removed or displaced by a newer same-id CONNECT, closes its own socket
// directly.
func (c *conn) Destroy() {
	owned := false
	if c.client != nil {
		cur, ok := c.srv.clients.Get(c.client.ID)
		owned = ok && cur == c.client
	}
	if owned {
		c.srv.clients.Delete(c.client.ID)
	} else {
		c.netConn.Close()
	}
}
