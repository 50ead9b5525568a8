// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socketio

import (
	"errors"
	"testing"
)

func TestPacket_Encode(t *testing.T) {
	tests := []struct {
		name string
		pkt  Packet
		want string
	}{
		{"connect no auth", Packet{Type: PacketConnect, ID: -1}, "0"},
		{"connect auth", Packet{Type: PacketConnect, ID: -1, Data: []byte(`{"token":"t"}`)}, `0{"token":"t"}`},
		{"namespaced event", Packet{Type: PacketEvent, Namespace: "/admin", ID: -1, Data: []byte(`["a"]`)}, `2/admin,["a"]`},
		{"event with ack id", Packet{Type: PacketEvent, Namespace: "/", ID: 12, Data: []byte(`["a"]`)}, `212["a"]`},
		{"disconnect", Packet{Type: PacketDisconnect, Namespace: "/", ID: -1}, "1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pkt.Encode(); got != tc.want {
				t.Errorf("Encode() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodePacket(t *testing.T) {
	pkt, err := DecodePacket(`2/chat,7["stream_chunk",{"content":"Hi"}]`)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if pkt.Type != PacketEvent || pkt.Namespace != "/chat" || pkt.ID != 7 {
		t.Errorf("unexpected packet %+v", pkt)
	}

	name, args, err := pkt.Event()
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	if name != "stream_chunk" || len(args) != 1 || string(args[0]) != `{"content":"Hi"}` {
		t.Errorf("Event() = %q, %s", name, args)
	}

	pkt, err = DecodePacket(`4{"message":"Authentication required"}`)
	if err != nil {
		t.Fatalf("DecodePacket connect error: %v", err)
	}
	if pkt.Type != PacketConnectError || pkt.Namespace != "/" || pkt.ID != -1 {
		t.Errorf("unexpected packet %+v", pkt)
	}
	if ce := rejection(pkt.Data); ce.Message != "Authentication required" || !ce.Rejected {
		t.Errorf("rejection() = %+v", ce)
	}
}

func TestDecodePacket_Malformed(t *testing.T) {
	for _, raw := range []string{"", "9", `2["unterminated`, `51-["bin",{"_placeholder":true,"num":0}]`} {
		if _, err := DecodePacket(raw); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("DecodePacket(%q) err = %v, want ErrMalformedPacket", raw, err)
		}
	}
}

func TestNewEvent_RoundTrip(t *testing.T) {
	pkt, err := NewEvent("/", "join_conversation", map[string]string{"conversation_id": "c1"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if got := pkt.Encode(); got != `2["join_conversation",{"conversation_id":"c1"}]` {
		t.Errorf("Encode() = %s", got)
	}

	empty, _ := NewEvent("/", "ping_me")
	name, args, err := empty.Event()
	if err != nil || name != "ping_me" || len(args) != 0 {
		t.Errorf("Event() = %q, %v, %v", name, args, err)
	}
}

func TestClient_Endpoint(t *testing.T) {
	c := New(Config{URL: "https://chat.example.com/base/", Query: map[string][]string{"token": {"abc"}}})
	got, err := c.endpoint()
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	want := "wss://chat.example.com/base/socket.io/?EIO=4&token=abc&transport=websocket"
	if got != want {
		t.Errorf("endpoint() = %q, want %q", got, want)
	}

	if _, err := New(Config{URL: "ftp://x"}).endpoint(); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
