package server

import "errors"

// errProtocolViolation is returned when a client sends SUBSCRIBE,
// UNSUBSCRIBE, PUBLISH or PUBREL before a successful CONNECT. PINGREQ and
// PUBACK/PUBREC/PUBCOMP are accepted before CONNECT.
var errProtocolViolation = errors.New("server: packet received before CONNECT")
