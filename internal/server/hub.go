package server

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"planetfall-server/internal/telemetry"
)

const (
	DefaultMaxConnsPerIP = 5
	DefaultMaxConns      = 1000
)

// Hub is the set of live sessions and the global broadcaster.
type Hub struct {
	Logger        zerolog.Logger
	Metrics       *telemetry.Metrics
	MaxConnsPerIP int
	MaxConns      int

	mu       sync.RWMutex
	sessions map[string]*Session

	// connection limiting, accessed from accept paths
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates an empty hub with the default connection limits
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		Logger:        logger.With().Str("component", "hub").Logger(),
		MaxConnsPerIP: DefaultMaxConnsPerIP,
		MaxConns:      DefaultMaxConns,
		sessions:      make(map[string]*Session),
		ipConns:       make(map[string]int),
	}
}

// CanAccept reports whether another connection from ip fits the limits
func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= h.MaxConns {
		return false
	}
	return h.ipConns[ip] < h.MaxConnsPerIP
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	h.Metrics.SessionOpened()
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	if ok {
		h.Metrics.SessionClosed()
	}
}

// BroadcastAll marshals msg once and queues it on every authenticated
// session. Sessions that are full or closed are skipped.
func (h *Hub) BroadcastAll(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.Logger.Error().Err(err).Msg("marshal broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.Authenticated() {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, s := range targets {
		if !s.SendRaw(data) {
			dropped++
		}
	}
	h.Metrics.Broadcast(dropped)
}

// EnsureSingleSessionForPlayer closes every session other than keep that is
// bound to playerID. Teardown runs to completion before it returns.
func (h *Hub) EnsureSingleSessionForPlayer(playerID int64, keep *Session) int {
	h.mu.RLock()
	var stale []*Session
	for _, s := range h.sessions {
		if s == keep {
			continue
		}
		if p := s.Player(); p != nil && p.ID == playerID {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.Logger.Info().Str("session", s.ID).Int64("player", playerID).Msg("closing older session for player")
		s.Close()
	}
	return len(stale)
}

// SessionForPlayer returns the session bound to playerID, if any
func (h *Hub) SessionForPlayer(playerID int64) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if p := s.Player(); p != nil && p.ID == playerID {
			return s
		}
	}
	return nil
}

// Sessions returns a snapshot of the live sessions ordered by id
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll tears down every session, used on shutdown
func (h *Hub) CloseAll() {
	for _, s := range h.Sessions() {
		s.Close()
	}
}
