// Package stream serves a live spectator feed over WebSocket. Connected
// clients receive periodic match snapshots plus capture/kill/end events as
// they happen. Clients that cannot keep up are dropped rather than allowed
// to stall the broadcaster.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/pkg/core"
)

const (
	clientSendSize = 256
	writeWait      = 10 * time.Second
)

// Message types sent to spectators.
const (
	TypeSnapshot        = "snapshot"
	TypeZoneCaptured    = "zone_captured"
	TypeCombatantKilled = "combatant_killed"
	TypeMatchEnded      = "match_ended"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Snapshot is the periodic state push.
type Snapshot struct {
	Tick         uint64         `json:"tick"`
	Phase        string         `json:"phase"`
	TicketsUS    float64        `json:"ticketsUS"`
	TicketsOPFOR float64        `json:"ticketsOPFOR"`
	Combatants   int            `json:"combatants"`
	TierHigh     int            `json:"tierHigh"`
	TierMedium   int            `json:"tierMedium"`
	TierLow      int            `json:"tierLow"`
	TierCulled   int            `json:"tierCulled"`
	Zones        []ZoneSnapshot `json:"zones"`
}

// ZoneSnapshot is one zone's display state.
type ZoneSnapshot struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Owner    string  `json:"owner"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	US       int     `json:"us"`
	OPFOR    int     `json:"opfor"`
}

// Source supplies the periodic snapshot data.
type Source interface {
	Snapshot() core.TickSample
	ZoneStatuses() []core.ZoneStatus
}

type client struct {
	conn *ws.Conn
	send chan []byte
}

// Server accepts spectator connections and broadcasts the feed.
type Server struct {
	cfg    config.StreamConfig
	source Source
	log    *slog.Logger

	upgrader ws.Upgrader
	srv      *http.Server
	addr     string

	mu      sync.Mutex
	clients map[*client]struct{}

	done chan struct{}
}

// NewServer creates the spectator stream server.
func NewServer(cfg config.StreamConfig, source Source, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		source:  source,
		log:     log,
		clients: make(map[*client]struct{}),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Spectator feed is read-only and unauthenticated.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
}

// Start listens on the configured address and begins the snapshot loop.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/spectate", s.handleSpectate)

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("spectator stream listen failed: %w", err)
	}
	s.addr = ln.Addr().String()

	s.srv = &http.Server{Handler: mux}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("spectator stream serve failed", "error", err)
		}
	}()

	go s.snapshotLoop()
	s.log.Info("spectator stream listening", "address", s.addr)
	return nil
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	return s.addr
}

// Close stops the snapshot loop, disconnects clients and shuts the listener.
func (s *Server) Close() error {
	close(s.done)

	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()

	if s.srv != nil {
		return s.srv.Close()
	}
	return nil
}

// ClientCount returns the number of connected spectators.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// BroadcastZoneCapture pushes a capture event to all spectators.
func (s *Server) BroadcastZoneCapture(e core.ZoneCaptureEvent) {
	s.broadcast(TypeZoneCaptured, map[string]any{
		"tick":     e.Tick,
		"zoneId":   e.ZoneID,
		"zoneName": e.ZoneName,
		"from":     e.PrevOwner.String(),
		"to":       e.NewOwner.String(),
	})
}

// BroadcastKill pushes a kill event to all spectators.
func (s *Server) BroadcastKill(e core.KillEvent) {
	s.broadcast(TypeCombatantKilled, map[string]any{
		"tick":     e.Tick,
		"killer":   e.Killer.String(),
		"victim":   e.Victim.String(),
		"killerId": e.KillerID,
		"victimId": e.VictimID,
		"distance": e.Distance,
	})
}

// BroadcastMatchEnd pushes the final result to all spectators.
func (s *Server) BroadcastMatchEnd(r core.MatchResult) {
	s.broadcast(TypeMatchEnded, map[string]any{
		"tick":   r.Tick,
		"winner": r.Winner.String(),
		"reason": r.Reason.String(),
	})
}

// AddZoneCapture lets the server act as a HUD notification sink; the capture
// is pushed to spectators as a display notification.
func (s *Server) AddZoneCapture(zoneName string, wasLostByPlayerFaction bool) {
	s.broadcast(TypeZoneCaptured, map[string]any{
		"zoneName":     zoneName,
		"lostByPlayer": wasLostByPlayerFaction,
	})
}

// AddMatchEnd pushes the end-of-match notification to spectators.
func (s *Server) AddMatchEnd(winner core.Faction, reason core.VictoryReason) {
	s.broadcast(TypeMatchEnded, map[string]any{
		"winner": winner.String(),
		"reason": reason.String(),
	})
}

func (s *Server) handleSpectate(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("spectator upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.log.Debug("spectator connected", "remote", conn.RemoteAddr().String())
	go s.writeLoop(c)
	go s.readLoop(c)
}

// writeLoop drains the client's send queue. One writer per connection.
func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
			s.drop(c)
			return
		}
	}
}

// readLoop discards inbound frames; its job is detecting disconnects.
func (s *Server) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *Server) snapshotLoop() {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.broadcastSnapshot()
		}
	}
}

func (s *Server) broadcastSnapshot() {
	if s.source == nil {
		return
	}

	sample := s.source.Snapshot()
	snap := Snapshot{
		Tick:         sample.Tick,
		Phase:        sample.Phase.String(),
		TicketsUS:    sample.TicketsUS,
		TicketsOPFOR: sample.TicketsOPFOR,
		Combatants:   sample.Combatants,
		TierHigh:     sample.TierHigh,
		TierMedium:   sample.TierMedium,
		TierLow:      sample.TierLow,
		TierCulled:   sample.TierCulled,
	}
	for _, z := range s.source.ZoneStatuses() {
		snap.Zones = append(snap.Zones, ZoneSnapshot{
			ID:       z.ID,
			Name:     z.Name,
			Owner:    z.Owner.String(),
			State:    z.State.String(),
			Progress: z.Progress,
			US:       z.Occupancy.US,
			OPFOR:    z.Occupancy.OPFOR,
		})
	}
	s.broadcast(TypeSnapshot, snap)
}

func (s *Server) broadcast(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal broadcast payload failed", "type", msgType, "error", err)
		return
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		s.log.Error("marshal broadcast envelope failed", "type", msgType, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer; disconnect instead of blocking the match.
			delete(s.clients, c)
			close(c.send)
			s.log.Warn("spectator too slow, dropping", "remote", c.conn.RemoteAddr().String())
		}
	}
}
