// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sockettest provides an in-process Socket.IO server for tests.
package sockettest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/mariechat/internal/socketio"
)

// Event is one EVENT packet received from a client.
type Event struct {
	Name    string
	Payload json.RawMessage
	Conn    *Conn
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Options tunes the fake server.
type Options struct {
	// Authorize decides the CONNECT verdict. A nil func accepts everyone.
	Authorize func(r *http.Request, auth json.RawMessage) (ok bool, reason string)

	// OnEvent is called on the connection's read goroutine for every event.
	OnEvent func(ev Event)

	// HTTP serves every request outside /socket.io/, so one server can stand
	// in for both the REST API and the socket endpoint.
	HTTP http.Handler

	// PingInterval and PingTimeout are advertised in the open packet.
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// Server is a minimal Socket.IO server speaking Engine.IO v4 over WebSocket.
type Server struct {
	*httptest.Server

	opts     Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*Conn
	accepted int
	pongs    int

	connCh chan *Conn
	events chan Event
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 20 * time.Second
	}

	s := &Server{
		opts:   opts,
		connCh: make(chan *Conn, 16),
		events: make(chan Event, 1024),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(func() {
		s.DropAll()
		s.Server.Close()
	})
	return s
}

// Accepted returns how many CONNECT handshakes succeeded.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Pongs returns how many Engine.IO pongs clients sent.
func (s *Server) Pongs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pongs
}

// WaitConn returns the next accepted connection.
func (s *Server) WaitConn(t testing.TB, timeout time.Duration) *Conn {
	t.Helper()
	select {
	case c := <-s.connCh:
		return c
	case <-time.After(timeout):
		t.Fatalf("no client connected within %v", timeout)
		return nil
	}
}

// WaitEvent returns the next event with the given name, discarding others.
func (s *Server) WaitEvent(t testing.TB, name string, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-s.events:
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("event %q not received within %v", name, timeout)
			return Event{}
		}
	}
}

// NoEvent fails the test if an event with the given name arrives within wait.
func (s *Server) NoEvent(t testing.TB, name string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case ev := <-s.events:
			if ev.Name == name {
				t.Fatalf("unexpected event %q: %s", name, ev.Payload)
			}
		case <-deadline:
			return
		}
	}
}

// Broadcast emits an event to every live connection.
func (s *Server) Broadcast(event string, args ...any) {
	s.mu.Lock()
	conns := append([]*Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Emit(event, args...)
	}
}

// DropAll closes every connection without a disconnect packet.
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Drop()
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.opts.HTTP != nil && !strings.HasPrefix(r.URL.Path, socketio.DefaultPath) {
		s.opts.HTTP.ServeHTTP(w, r)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Conn{ws: ws, Request: r}

	open := fmt.Sprintf(`0{"sid":"eio-%d","upgrades":[],"pingInterval":%d,"pingTimeout":%d,"maxPayload":1000000}`,
		time.Now().UnixNano(), s.opts.PingInterval.Milliseconds(), s.opts.PingTimeout.Milliseconds())
	if err := c.write(open); err != nil {
		ws.Close()
		return
	}

	_, data, err := ws.ReadMessage()
	if err != nil || len(data) < 2 || string(data[:2]) != "40" {
		ws.Close()
		return
	}
	pkt, err := socketio.DecodePacket(string(data[1:]))
	if err != nil {
		ws.Close()
		return
	}
	c.Auth = pkt.Data

	if s.opts.Authorize != nil {
		if ok, reason := s.opts.Authorize(r, pkt.Data); !ok {
			msg, _ := json.Marshal(map[string]string{"message": reason})
			_ = c.write("44" + string(msg))
			ws.Close()
			return
		}
	}
	if err := c.write(fmt.Sprintf(`40{"sid":"sio-%d"}`, time.Now().UnixNano())); err != nil {
		ws.Close()
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.accepted++
	s.mu.Unlock()
	s.connCh <- c

	defer s.remove(c)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == "3" {
			s.mu.Lock()
			s.pongs++
			s.mu.Unlock()
			continue
		}
		if len(data) < 2 || data[0] != '4' {
			continue
		}
		pkt, err := socketio.DecodePacket(string(data[1:]))
		if err != nil {
			continue
		}
		switch pkt.Type {
		case socketio.PacketDisconnect:
			ws.Close()
			return
		case socketio.PacketEvent:
			name, args, err := pkt.Event()
			if err != nil {
				continue
			}
			ev := Event{Name: name, Payload: json.RawMessage("null"), Conn: c}
			if len(args) > 0 {
				ev.Payload = args[0]
			}
			if s.opts.OnEvent != nil {
				s.opts.OnEvent(ev)
			}
			s.events <- ev
		}
	}
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cc := range s.conns {
		if cc == c {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			return
		}
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	ws  *websocket.Conn
	wmu sync.Mutex

	// Request is the upgrade request.
	Request *http.Request

	// Auth is the raw CONNECT payload.
	Auth json.RawMessage
}

// Emit sends an event to the client.
func (c *Conn) Emit(event string, args ...any) error {
	pkt, err := socketio.NewEvent("/", event, args...)
	if err != nil {
		return err
	}
	return c.write("4" + pkt.Encode())
}

// Ping sends an Engine.IO ping.
func (c *Conn) Ping() error {
	return c.write("2")
}

// Disconnect sends a Socket.IO DISCONNECT and closes the transport.
func (c *Conn) Disconnect() {
	_ = c.write("41")
	c.ws.Close()
}

// Drop closes the transport abruptly.
func (c *Conn) Drop() {
	c.ws.Close()
}

func (c *Conn) write(frame string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}
