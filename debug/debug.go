// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debug provides point-in-time introspection of a running
// scheduler: a structured Snapshot, a go-spew pretty-printed Dump of
// it, and a small HTTP surface that pushes snapshots over a websocket
// and exposes a golang.org/x/net/trace event log, the same
// /debug/requests style surface the teacher module's RPC servers
// expose for their own call tracing.
package debug

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/websocket"
	"golang.org/x/net/trace"

	"github.com/vanadium/pintos-core/sched"
)

// ThreadInfo is one thread's state in a Snapshot.
type ThreadInfo struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Status    string      `json:"status"`
	Base      int         `json:"base_priority"`
	Effective int         `json:"effective_priority"`
	Nice      int         `json:"nice"`
	RecentCPU int         `json:"recent_cpu"`
	Donors    []int64     `json:"donors,omitempty"`
}

// Snapshot is a point-in-time view of every thread the scheduler
// knows about.
type Snapshot struct {
	Ticks    int64        `json:"ticks"`
	LoadAvg  int          `json:"load_avg"`
	Threads  []ThreadInfo `json:"threads"`
	Captured time.Time    `json:"captured"`
}

// Take captures a Snapshot of the scheduler's current state.
func Take() Snapshot {
	threads := sched.AllThreads()
	snap := Snapshot{
		Ticks:    sched.Ticks(),
		LoadAvg:  sched.GetLoadAvg(),
		Threads:  make([]ThreadInfo, 0, len(threads)),
		Captured: time.Now(),
	}
	for _, t := range threads {
		snap.Threads = append(snap.Threads, ThreadInfo{
			ID:        t.ID(),
			Name:      t.Name(),
			Status:    t.Status().String(),
			Base:      t.BasePriority(),
			Effective: t.EffectivePriority(),
			Nice:      t.Nice(),
			RecentCPU: t.RecentCPUHundredths(),
			Donors:    t.DonorIDs(),
		})
	}
	return snap
}

// Dump pretty-prints a Snapshot with go-spew, for interactive
// debugging sessions where JSON's quoting noise gets in the way.
func Dump(snap Snapshot) string {
	return spew.Sdump(snap)
}

// Server pushes a Snapshot to every connected websocket client once
// per tick-sampling interval and serves golang.org/x/net/trace's
// /debug/requests handler for per-operation event tracing.
type Server struct {
	mu       sync.Mutex
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]struct{}
	interval time.Duration
	events   trace.EventLog
}

// NewServer returns a Server sampling snapshots every interval.
func NewServer(interval time.Duration) *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
		interval: interval,
		events:   trace.NewEventLog("pintos-core", "scheduler"),
	}
}

// ServeHTTP implements http.Handler, upgrading /snapshot requests to a
// websocket push stream and delegating everything else (including
// /debug/requests) to x/net/trace's registered handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/snapshot" {
		http.DefaultServeMux.ServeHTTP(w, r)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.events.Errorf("websocket upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.events.Printf("client connected: %s", r.RemoteAddr)

	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// Run pushes a snapshot to every connected client every interval,
// until stop is closed.
func (s *Server) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.broadcast(Take())
		case <-stop:
			return
		}
	}
}

func (s *Server) broadcast(snap Snapshot) {
	body, err := json.Marshal(snap)
	if err != nil {
		s.events.Errorf("marshal snapshot: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			s.events.Errorf("write to client failed: %v", err)
		}
	}
}

// Close finishes every client connection and retires the event log.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	s.events.Finish()
	return nil
}

// Serve starts an HTTP server on addr running Server, returning a
// closer that shuts both down. Intended for cmd/schedctl; this
// module's own tests never start a real listener.
func Serve(addr string) (io.Closer, error) {
	s := NewServer(time.Second / time.Duration(sched.TimerFreq))
	stop := make(chan struct{})
	go s.Run(stop)

	httpServer := &http.Server{Addr: addr, Handler: s}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		close(stop)
		return nil, fmt.Errorf("debug: listen on %s: %w", addr, err)
	}
	go httpServer.Serve(ln)

	return &serveCloser{stop: stop, httpServer: httpServer, debugServer: s}, nil
}

type serveCloser struct {
	stop        chan struct{}
	httpServer  *http.Server
	debugServer *Server
}

func (c *serveCloser) Close() error {
	close(c.stop)
	c.debugServer.Close()
	return c.httpServer.Close()
}
