// Package console is the local operator surface: a WebSocket stream of pass
// reports and a room-resolution endpoint that demonstrates the startup gate
// every interactive collaborator goes through.
package console

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mudgate.gg/internal/recon"
)

type Server struct {
	log       *log.Logger
	ready     func(ctx context.Context) error
	directory func() *recon.Directory

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

func NewServer(ready func(ctx context.Context) error, directory func() *recon.Directory, logger *log.Logger) *Server {
	return &Server{
		log:       logger,
		ready:     ready,
		directory: directory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // local operator endpoint
		},
		conns: make(map[*websocket.Conn]chan []byte),
	}
}

// Broadcast fans a pass report out to every connected console. Consoles that
// cannot keep up are dropped rather than allowed to block the reconciler.
func (s *Server) Broadcast(rep recon.PassReport) {
	b, err := json.Marshal(rep)
	if err != nil {
		s.log.Printf("encode report: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, out := range s.conns {
		select {
		case out <- b:
		default:
			s.log.Printf("console client lagging, dropping")
			close(out)
			delete(s.conns, conn)
		}
	}
}

// StreamHandler upgrades to a WebSocket and streams pass reports until the
// client goes away.
func (s *Server) StreamHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		out := make(chan []byte, 16)
		s.mu.Lock()
		s.conns[conn] = out
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			if _, ok := s.conns[conn]; ok {
				delete(s.conns, conn)
				close(out)
			}
			s.mu.Unlock()
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				// Reads only detect close; the console never sends payloads.
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case b, ok := <-out:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}

// ResolveHandler translates a logical room id into its live channel id using
// the last completed pass's directory. Requests issued before the first pass
// block on the startup gate, exactly like interactive commands do.
func (s *Server) ResolveHandler() http.HandlerFunc {
	type resp struct {
		Room    string `json:"room"`
		Channel string `json:"channel_id"`
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(rw, "missing room parameter", http.StatusBadRequest)
			return
		}
		if err := s.ready(r.Context()); err != nil {
			http.Error(rw, "sync not ready", http.StatusServiceUnavailable)
			return
		}
		ch, ok := s.directory().Resolve(room)
		if !ok {
			http.Error(rw, "room not resolved", http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp{Room: room, Channel: ch})
	}
}
