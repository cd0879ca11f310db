// Package integration drives sol-broker over real TCP sockets with the
// paho client, the way a deployed broker would actually be exercised,
// complementing internal/server's net.Pipe-based unit tests.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sevag-tafnakaji/sol-broker/internal/config"
	"github.com/sevag-tafnakaji/sol-broker/internal/logx"
	"github.com/sevag-tafnakaji/sol-broker/internal/server"
)

// startTestServer boots a broker on an OS-assigned loopback port and
// returns it already listening, plus a teardown func.
func startTestServer(t *testing.T, cfg *config.Config) (*server.Server, string, func()) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Hostname = "127.0.0.1"
	cfg.Port = "0"

	srv := server.New(cfg, logx.New(logx.Error))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("timed out waiting for broker to start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}

	brokerURL := fmt.Sprintf("tcp://%s", srv.Addr().String())
	cleanup := func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Log("broker did not shut down within 2s")
		}
	}
	return srv, brokerURL, cleanup
}

func newPahoClient(t *testing.T, brokerURL, clientID string, cleanSession bool) mqtt.Client {
	t.Helper()
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(cleanSession).
		SetAutoReconnect(false).
		SetConnectTimeout(2 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(3 * time.Second) {
		t.Fatal("timed out connecting to broker")
	}
	if err := token.Error(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		if client.IsConnected() {
			client.Disconnect(100)
		}
	})
	return client
}

// TestConnectAcceptsGeneratedClientID covers the CONNECT rule: an
// empty client id with clean_session=true is accepted with a
// broker-generated id, not rejected.
func TestConnectAcceptsGeneratedClientID(t *testing.T) {
	_, brokerURL, cleanup := startTestServer(t, nil)
	defer cleanup()

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("").
		SetCleanSession(true).
		SetConnectTimeout(2 * time.Second)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(3 * time.Second) {
		t.Fatal("timed out connecting to broker")
	}
	if err := token.Error(); err != nil {
		t.Fatalf("expected connect to succeed with generated id, got: %v", err)
	}
	client.Disconnect(100)
}

// TestConnectRejectsEmptyClientIDWithCleanSessionFalse covers CONNACK
// rc=2: identifier rejected when client_id is empty and clean_session
// is false.
func TestConnectRejectsEmptyClientIDWithCleanSessionFalse(t *testing.T) {
	_, brokerURL, cleanup := startTestServer(t, nil)
	defer cleanup()

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("").
		SetCleanSession(false).
		SetConnectTimeout(2 * time.Second)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.WaitTimeout(3 * time.Second)
	if err := token.Error(); err == nil {
		t.Fatal("expected connect to fail with identifier rejected")
	}
}

// TestSubscribePublishFanOut exercises a QoS-1 subscriber receiving a
// publish from another client at min(pub_qos, sub_qos).
func TestSubscribePublishFanOut(t *testing.T) {
	_, brokerURL, cleanup := startTestServer(t, nil)
	defer cleanup()

	sub := newPahoClient(t, brokerURL, "sub-1", true)
	pub := newPahoClient(t, brokerURL, "pub-1", true)

	received := make(chan mqtt.Message, 1)
	subToken := sub.Subscribe("sensors/room1/temp", 1, func(_ mqtt.Client, m mqtt.Message) {
		received <- m
	})
	if !subToken.WaitTimeout(3 * time.Second) || subToken.Error() != nil {
		t.Fatalf("subscribe failed: %v", subToken.Error())
	}

	pubToken := pub.Publish("sensors/room1/temp", 1, false, "25.5")
	if !pubToken.WaitTimeout(3 * time.Second) || pubToken.Error() != nil {
		t.Fatalf("publish failed: %v", pubToken.Error())
	}

	select {
	case m := <-received:
		if m.Topic() != "sensors/room1/temp" || string(m.Payload()) != "25.5" {
			t.Fatalf("unexpected message: topic=%s payload=%s", m.Topic(), m.Payload())
		}
		if m.Qos() != 1 {
			t.Fatalf("expected qos 1, got %d", m.Qos())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for fan-out delivery")
	}
}

// TestUnsubscribeStopsDelivery checks that a published message no
// longer reaches a client after it unsubscribes from the topic.
func TestUnsubscribeStopsDelivery(t *testing.T) {
	_, brokerURL, cleanup := startTestServer(t, nil)
	defer cleanup()

	sub := newPahoClient(t, brokerURL, "sub-2", true)
	pub := newPahoClient(t, brokerURL, "pub-2", true)

	received := make(chan mqtt.Message, 1)
	subToken := sub.Subscribe("home/status", 0, func(_ mqtt.Client, m mqtt.Message) {
		received <- m
	})
	subToken.WaitTimeout(3 * time.Second)

	unsubToken := sub.Unsubscribe("home/status")
	if !unsubToken.WaitTimeout(3 * time.Second) || unsubToken.Error() != nil {
		t.Fatalf("unsubscribe failed: %v", unsubToken.Error())
	}

	pubToken := pub.Publish("home/status", 0, false, "online")
	pubToken.WaitTimeout(3 * time.Second)

	select {
	case m := <-received:
		t.Fatalf("expected no delivery after unsubscribe, got: %s", m.Payload())
	case <-time.After(500 * time.Millisecond):
	}
}

// TestPingKeepsConnectionAlive verifies the broker answers PINGREQ so
// the client-side keepalive never fires a connection-lost callback.
func TestPingKeepsConnectionAlive(t *testing.T) {
	_, brokerURL, cleanup := startTestServer(t, nil)
	defer cleanup()

	lost := make(chan error, 1)
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("ping-client").
		SetCleanSession(true).
		SetKeepAlive(1 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetConnectTimeout(2 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { lost <- err })

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(3 * time.Second) || token.Error() != nil {
		t.Fatalf("connect failed: %v", token.Error())
	}
	defer client.Disconnect(100)

	select {
	case err := <-lost:
		t.Fatalf("connection unexpectedly lost during keepalive window: %v", err)
	case <-time.After(3 * time.Second):
	}
	if !client.IsConnected() {
		t.Fatal("expected client to still be connected after PINGREQ/PINGRESP exchange")
	}
}

// TestOversizedPacketDropsConnection checks that a publish larger than
// max_request_size gets the connection dropped rather than processed.
func TestOversizedPacketDropsConnection(t *testing.T) {
	cfg := config.Default()
	cfg.MaxRequestSize = 64
	_, brokerURL, cleanup := startTestServer(t, cfg)
	defer cleanup()

	lost := make(chan error, 1)
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("big-client").
		SetCleanSession(true).
		SetConnectTimeout(2 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { lost <- err })

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(3 * time.Second) || token.Error() != nil {
		t.Fatalf("connect failed: %v", token.Error())
	}
	defer func() {
		if client.IsConnected() {
			client.Disconnect(100)
		}
	}()

	oversized := make([]byte, 4096)
	pubToken := client.Publish("oversized/topic", 0, false, oversized)
	pubToken.WaitTimeout(3 * time.Second)

	select {
	case <-lost:
	case <-time.After(3 * time.Second):
		t.Fatal("expected connection to be dropped after an oversized packet")
	}
}

// TestStatsPublishedWithinInterval checks that a subscriber to a $SOL
// stats topic receives a publish within roughly one
// stats_pub_interval tick.
func TestStatsPublishedWithinInterval(t *testing.T) {
	cfg := config.Default()
	cfg.StatsPubInterval = 1 * time.Second
	_, brokerURL, cleanup := startTestServer(t, cfg)
	defer cleanup()

	sub := newPahoClient(t, brokerURL, "stats-sub", true)

	received := make(chan mqtt.Message, 1)
	subToken := sub.Subscribe("$SOL/broker/clients/connected/", 0, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case received <- m:
		default:
		}
	})
	if !subToken.WaitTimeout(3 * time.Second) || subToken.Error() != nil {
		t.Fatalf("subscribe failed: %v", subToken.Error())
	}

	select {
	case m := <-received:
		if m.Topic() != "$SOL/broker/clients/connected/" {
			t.Fatalf("unexpected stats topic: %s", m.Topic())
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for stats publish")
	}
}
