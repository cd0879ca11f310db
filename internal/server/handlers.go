package server

import (
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/sevag-tafnakaji/sol-broker/internal/metrics"
	"github.com/sevag-tafnakaji/sol-broker/internal/mqtt"
	"github.com/sevag-tafnakaji/sol-broker/internal/topic"
)

// CONNACK return codes, spec.md §4.E.
const (
	connackAccepted           = 0x00
	connackIdentifierRejected = 0x02
)

// handleConnect registers (or rejects) a new client. A second CONNECT
// for the same client_id displaces the prior registration: its
// subscriber entries are purged unconditionally (independent of its
// own session's cleansession flag — a stronger rule than DISCONNECT's
// conditional purge, see Client.purgeSubscriptions), and Registry.Put
// stores the new client in its place and then closes the prior socket
// and accounts it in metrics.
func (s *Server) handleConnect(nc net.Conn, p *mqtt.ConnectPacket) (*Client, *mqtt.ConnackPacket) {
	if p.ClientID == "" && !p.CleanSession {
		return nil, &mqtt.ConnackPacket{SessionPresent: false, ReturnCode: connackIdentifierRejected}
	}

	clientID := p.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("sol-auto-%d", s.autoID.Add(1))
	}

	if old, ok := s.clients.Get(clientID); ok {
		old.purgeSubscriptions()
	}

	client := newClient(clientID, nc, newSession(p.CleanSession), s)
	if p.WillFlag {
		client.hasWill = true
		client.WillTopic = p.WillTopic
		client.WillMessage = p.WillMessage
		client.WillQoS = p.WillQoS
		client.WillRetain = p.WillRetain
	}

	s.clients.Put(clientID, client)
	metrics.ClientsConnected.Inc()
	s.log.Infof("CONNECT %s (clean_session=%v)", clientID, p.CleanSession)

	return client, &mqtt.ConnackPacket{SessionPresent: false, ReturnCode: connackAccepted}
}

// handleSubscribe grants every requested (topic, qos) tuple — this core
// never refuses a subscription, so every return code is the requested
// QoS, never SubackReturnCodeFailure.
func (s *Server) handleSubscribe(client *Client, p *mqtt.SubscribePacket) *mqtt.SubackPacket {
	codes := make([]byte, len(p.Subs))
	for i, sub := range p.Subs {
		t := s.topics.GetOrCreate(sub.Topic)
		t.Subscribe(client, sub.QoS)
		client.trackSubscribe(sub.Topic)
		if !client.Session.CleanSession {
			client.Session.addSubscription(sub.Topic)
		}
		metrics.SubscriptionsActive.Inc()
		metrics.TopicsActive.Set(float64(s.topics.Len()))
		codes[i] = sub.QoS
		s.log.Debugf("SUBSCRIBE %s %s qos=%d", client.ID, sub.Topic, sub.QoS)
	}
	return &mqtt.SubackPacket{PacketID: p.PacketID, ReturnCodes: codes}
}

// handleUnsubscribe removes the caller's Subscriber entry from every
// named topic.
func (s *Server) handleUnsubscribe(client *Client, p *mqtt.UnsubscribePacket) *mqtt.UnsubackPacket {
	for _, name := range p.Topics {
		if t, ok := s.topics.Get(name); ok {
			t.Unsubscribe(client)
			metrics.SubscriptionsActive.Dec()
		}
		client.untrackSubscribe(name)
		client.Session.removeSubscription(name)
		s.log.Debugf("UNSUBSCRIBE %s %s", client.ID, name)
	}
	return &mqtt.UnsubackPacket{PacketID: p.PacketID}
}

// handlePublish acknowledges (for QoS 1/2) and fans the message out to
// every Subscriber of p.Topic.
func (s *Server) handlePublish(client *Client, p *mqtt.PublishPacket) error {
	switch p.QoS {
	case 1:
		if err := client.write(&mqtt.PubackPacket{PacketID: p.PacketID}); err != nil {
			return err
		}
	case 2:
		if err := client.write(&mqtt.PubrecPacket{PacketID: p.PacketID}); err != nil {
			return err
		}
	}
	s.fanOut(p)
	return nil
}

// fanOut delivers p concurrently to every live Subscriber of its topic.
// A publish to a topic nobody has created yet is silently dropped, per
// spec.md §8's boundary behavior. Delivery QoS is min(publisher qos,
// subscriber qos); dup and retain are always cleared (retained messages
// are a non-goal of this core).
func (s *Server) fanOut(p *mqtt.PublishPacket) {
	t, ok := s.topics.Get(p.Topic)
	if !ok {
		return
	}

	var g errgroup.Group
	t.Each(func(sub topic.Subscriber[Client]) {
		c := sub.Client()
		if c == nil {
			return
		}
		g.Go(func() error {
			qos := p.QoS
			if sub.QoS < qos {
				qos = sub.QoS
			}
			pktID := p.PacketID
			if qos == 0 {
				pktID = 0
			}
			out := &mqtt.PublishPacket{
				Dup:      false,
				QoS:      qos,
				Retain:   false,
				Topic:    p.Topic,
				PacketID: pktID,
				Payload:  p.Payload,
			}
			if err := c.write(out); err != nil {
				s.log.Warnf("fan-out to %s on %s failed: %v", c.ID, p.Topic, err)
			}
			return nil
		})
	})
	g.Wait()
}

// handleDisconnect performs a graceful close: subscriber entries are
// purged only for a cleansession=true client, matching spec.md's
// DISCONNECT rule exactly (a cleansession=false client's entries are
// left in place; a later CONNECT with the same id does not re-attach
// them, and fan-out skips them once the client is collected, via the
// topic index's weak pointers).
func (s *Server) handleDisconnect(client *Client) {
	s.log.Infof("DISCONNECT %s", client.ID)
	if client.Session.CleanSession {
		client.purgeSubscriptions()
	}
	s.clients.Delete(client.ID)
}
