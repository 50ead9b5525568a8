// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ENGINE.IO PACKETS
// =============================================================================

// Engine.IO packet types. Each WebSocket text frame carries exactly one.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

// =============================================================================
// SOCKET.IO PACKETS
// =============================================================================

// PacketType is the Socket.IO packet type.
type PacketType byte

const (
	PacketConnect      PacketType = '0'
	PacketDisconnect   PacketType = '1'
	PacketEvent        PacketType = '2'
	PacketAck          PacketType = '3'
	PacketConnectError PacketType = '4'
	PacketBinaryEvent  PacketType = '5'
	PacketBinaryAck    PacketType = '6'
)

// String returns the protocol name of the packet type.
func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketEvent:
		return "EVENT"
	case PacketAck:
		return "ACK"
	case PacketConnectError:
		return "CONNECT_ERROR"
	case PacketBinaryEvent:
		return "BINARY_EVENT"
	case PacketBinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN(" + string(rune(t)) + ")"
	}
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string // "/" when omitted on the wire
	ID        int    // ack id, -1 when absent
	Data      json.RawMessage
}

// ErrMalformedPacket is returned for frames that do not parse.
var ErrMalformedPacket = errors.New("malformed socket.io packet")

// Encode renders the packet in Socket.IO text format, without the Engine.IO
// message prefix.
func (p Packet) Encode() string {
	var b strings.Builder
	b.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID >= 0 {
		b.WriteString(strconv.Itoa(p.ID))
	}
	if len(p.Data) > 0 {
		b.Write(p.Data)
	}
	return b.String()
}

// DecodePacket parses a Socket.IO text packet (Engine.IO prefix removed).
func DecodePacket(s string) (Packet, error) {
	if s == "" {
		return Packet{}, ErrMalformedPacket
	}

	p := Packet{Type: PacketType(s[0]), Namespace: "/", ID: -1}
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return Packet{}, fmt.Errorf("%w: type %q", ErrMalformedPacket, s[0])
	}
	rest := s[1:]

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return Packet{}, fmt.Errorf("%w: binary packets are not supported", ErrMalformedPacket)
	}

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.Atoi(rest[:i])
		if err != nil {
			return Packet{}, fmt.Errorf("%w: ack id: %v", ErrMalformedPacket, err)
		}
		p.ID = id
		rest = rest[i:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, fmt.Errorf("%w: invalid JSON payload", ErrMalformedPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// NewEvent builds an EVENT packet for the given namespace.
func NewEvent(namespace, event string, args ...any) (Packet, error) {
	items := make([]any, 0, len(args)+1)
	items = append(items, event)
	items = append(items, args...)
	data, err := json.Marshal(items)
	if err != nil {
		return Packet{}, fmt.Errorf("encode event %q: %w", event, err)
	}
	return Packet{Type: PacketEvent, Namespace: namespace, ID: -1, Data: data}, nil
}

// Event splits an EVENT packet into its name and arguments.
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != PacketEvent {
		return "", nil, fmt.Errorf("%w: %s is not an event", ErrMalformedPacket, p.Type)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(p.Data, &items); err != nil {
		return "", nil, fmt.Errorf("%w: event payload: %v", ErrMalformedPacket, err)
	}
	if len(items) == 0 {
		return "", nil, fmt.Errorf("%w: empty event", ErrMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrMalformedPacket, err)
	}
	return name, items[1:], nil
}
