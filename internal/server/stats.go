package server

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/sevag-tafnakaji/sol-broker/internal/mqtt"
)

// solSecondsPerSecond is the "seconds in a SOL" divisor from
// original_source/src/server.c — an in-universe easter egg (a Martian
// sol is 88775.24 Earth seconds), carried over as server behavior
// rather than discarded as a source artifact.
const solSecondsPerSecond = 88775.24

// sysTopics is the fixed sequence of $SOL/... topics published every
// stats_pub_interval, exactly spec.md §6's list.
var sysTopics = []string{
	"$SOL/",
	"$SOL/broker/",
	"$SOL/broker/clients/",
	"$SOL/broker/bytes/",
	"$SOL/broker/messages/",
	"$SOL/broker/uptime/",
	"$SOL/broker/uptime/sol",
	"$SOL/broker/clients/connected/",
	"$SOL/broker/clients/disconnected/",
	"$SOL/broker/bytes/sent/",
	"$SOL/broker/bytes/received/",
	"$SOL/broker/messages/sent/",
	"$SOL/broker/messages/received/",
	"$SOL/broker/memory/used",
}

// seedStatsTopics creates every SYS topic in the index up front, so the
// stats publisher's per-tick work is a Get, not a GetOrCreate — mirrors
// the source's one-time topic registration at startup.
func (s *Server) seedStatsTopics() {
	for _, name := range sysTopics {
		s.topics.GetOrCreate(name)
	}
}

// publishStats synthesizes one QoS-0 PUBLISH per SYS topic, carrying
// the textual stat values spec.md §4.E's handler table names, plus the
// memory and bytes/received/clients-disconnected values this
// expansion's SPEC_FULL.md adds.
func (s *Server) publishStats(_ context.Context) {
	uptime := time.Since(s.startedAt).Seconds()
	connected := uint64(s.clients.Len())
	disconnected := s.disconnectedTotal.Load()
	bytesSent := s.bytesSent.Load()
	bytesReceived := s.bytesReceived.Load()
	messagesSent := s.messagesSent.Load()
	messagesReceived := s.messagesReceived.Load()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	values := map[string]string{
		"$SOL/":                           "sol-broker",
		"$SOL/broker/":                    "sol-broker",
		"$SOL/broker/clients/":            strconv.FormatUint(connected, 10),
		"$SOL/broker/bytes/":              strconv.FormatUint(bytesSent+bytesReceived, 10),
		"$SOL/broker/messages/":           strconv.FormatUint(messagesSent+messagesReceived, 10),
		"$SOL/broker/uptime/":             strconv.FormatInt(int64(uptime), 10),
		"$SOL/broker/uptime/sol":          strconv.FormatFloat(uptime/solSecondsPerSecond, 'f', 6, 64),
		"$SOL/broker/clients/connected/":  strconv.FormatUint(connected, 10),
		"$SOL/broker/clients/disconnected/": strconv.FormatUint(disconnected, 10),
		"$SOL/broker/bytes/sent/":         strconv.FormatUint(bytesSent, 10),
		"$SOL/broker/bytes/received/":     strconv.FormatUint(bytesReceived, 10),
		"$SOL/broker/messages/sent/":      strconv.FormatUint(messagesSent, 10),
		"$SOL/broker/messages/received/":  strconv.FormatUint(messagesReceived, 10),
		"$SOL/broker/memory/used":         strconv.FormatUint(mem.Alloc, 10),
	}

	for _, name := range sysTopics {
		payload := values[name]
		s.fanOut(&mqtt.PublishPacket{QoS: 0, Topic: name, Payload: []byte(payload)})
	}
}
