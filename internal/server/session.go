package server

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"planetfall-server/internal/game"
	"planetfall-server/internal/player"
	"planetfall-server/internal/protocol"
	"planetfall-server/internal/store"
)

const (
	DefaultSendBuffer        = 256
	DefaultMessagesPerSecond = 50
	DefaultMessageBurst      = 100
	saveTimeout              = 5 * time.Second
)

// Session is one connected client. Messages are read and handled one at a
// time in arrival order; outgoing messages go through a bounded queue drained
// by the write pump.
type Session struct {
	ID     string
	Logger zerolog.Logger

	srv     *Server
	conn    Conn
	send    chan []byte
	limiter *rate.Limiter

	mu      sync.Mutex
	player  *player.Player
	game    *game.Instance
	closing bool
	// set while a destroyed ship waits to respawn
	respawning bool

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(srv *Server, conn Conn) *Session {
	id := uuid.NewString()
	return &Session{
		ID:      id,
		Logger:  srv.Logger.With().Str("session", id).Str("transport", conn.Transport()).Str("ip", conn.RemoteIP()).Logger(),
		srv:     srv,
		conn:    conn,
		send:    make(chan []byte, srv.opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(srv.opts.MessagesPerSecond), srv.opts.MessageBurst),
		done:    make(chan struct{}),
	}
}

// Player returns the authenticated player, or nil
func (s *Session) Player() *player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// Authenticated reports whether the session is bound to a player
func (s *Session) Authenticated() bool {
	return s.Player() != nil
}

// Game returns the active ground instance, or nil when in space
func (s *Session) Game() *game.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game
}

// Done is closed once teardown finished
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// inSpace reports whether the player should currently have a ship
func (s *Session) inSpace() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil && s.game == nil && !s.respawning && !s.closing
}

// SendJSON marshals and queues msg
func (s *Session) SendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.Logger.Error().Err(err).Msg("marshal error")
		return
	}
	if !s.SendRaw(data) {
		s.srv.Metrics.Dropped()
	}
}

// SendRaw queues pre-marshaled bytes without blocking. It reports false when
// the message was dropped because the queue is full or the session closed.
func (s *Session) SendRaw(data []byte) (ok bool) {
	if s.closed.Load() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Session) sendError(request, message string) {
	s.SendJSON(protocol.NewError(request, message))
}

// run starts the write pump and blocks in the read loop until the
// connection ends, then tears the session down.
func (s *Session) run() {
	go s.writePump()
	s.readLoop()
}

func (s *Session) readLoop() {
	defer s.Close()
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.Logger.Debug().Err(err).Msg("read ended")
			}
			return
		}
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if !s.limiter.Allow() {
				s.Logger.Warn().Msg("rate limit exceeded, disconnecting")
				return
			}
			s.handle(line)
			if s.closed.Load() {
				return
			}
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(msg); err != nil {
				s.Logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				return
			}
		}
	}
}

// handle decodes and dispatches one message. Panics in handlers are reported
// to the client and do not end the session.
func (s *Session) handle(raw []byte) {
	typ, err := protocol.DecodeType(raw)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("discarding malformed message")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error().Interface("panic", r).Str("type", typ).Msg("handler panicked")
			s.sendError(typ, "internal error")
		}
	}()
	s.srv.dispatch.Dispatch(s, typ, raw)
}

// Close tears the session down once; concurrent callers wait for the first
// teardown to finish. Each step is isolated so a failing step never prevents
// the next.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		p, g := s.player, s.game
		s.mu.Unlock()

		s.step("registry cleanup", func() { s.dropShip(p) })
		s.step("leave game", func() { s.leaveGame(p, g) })
		s.step("persist player", func() { s.persist(p) })
		s.step("logout", func() {
			if p != nil {
				s.srv.Events.Track(store.EventLogout, p.ID, s.ID, "")
			}
			s.srv.Auth.Logout(p)
			s.srv.Hub.unregister(s)
			s.srv.Hub.TrackDisconnect(s.conn.RemoteIP())
		})
		s.step("release socket", func() {
			s.closed.Store(true)
			close(s.send)
			s.conn.Close()
		})

		s.mu.Lock()
		s.player, s.game = nil, nil
		s.mu.Unlock()
		close(s.done)
		s.Logger.Info().Msg("session closed")
	})
	<-s.done
}

func (s *Session) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error().Interface("panic", r).Str("step", name).Msg("teardown step failed")
		}
	}()
	fn()
}

// dropShip remembers where the ship was and removes it from space
func (s *Session) dropShip(p *player.Player) {
	if p == nil {
		return
	}
	if sh := s.srv.Registry.ShipForPlayer(p.ID); sh != nil {
		pose := sh.Pose()
		p.SetSpacePose(pose.X, pose.Y, pose.Angle)
	}
	s.srv.Registry.SetLanded(p.ID)
}

func (s *Session) leaveGame(p *player.Player, g *game.Instance) {
	if p == nil || g == nil {
		return
	}
	if err := g.Leave(p.ID); err != nil {
		s.Logger.Debug().Err(err).Str("game", g.GameID).Msg("leave on teardown")
	}
}

func (s *Session) persist(p *player.Player) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := p.Save(ctx); err != nil {
		s.Logger.Warn().Err(err).Int64("player", p.ID).Msg("saving player")
	}
}

// bind attaches an authenticated player to the session
func (s *Session) bind(p *player.Player) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.player = p
	s.respawning = false
	return true
}

// logout runs the first teardown steps but keeps the connection open
func (s *Session) logout() {
	s.mu.Lock()
	p, g := s.player, s.game
	s.player, s.game, s.respawning = nil, nil, false
	s.mu.Unlock()

	s.step("registry cleanup", func() { s.dropShip(p) })
	s.step("leave game", func() { s.leaveGame(p, g) })
	s.step("persist player", func() { s.persist(p) })
	s.step("logout", func() {
		if p != nil {
			s.srv.Events.Track(store.EventLogout, p.ID, s.ID, "")
		}
		s.srv.Auth.Logout(p)
	})
}

// enterGame records the instance after a successful join. It reports false
// when the session started closing meanwhile; the caller must then leave.
func (s *Session) enterGame(g *game.Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing || s.player == nil {
		return false
	}
	s.game = g
	return true
}

// exitGame clears g as the active instance; false if it was not active
func (s *Session) exitGame(g *game.Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game != g || s.game == nil {
		return false
	}
	s.game = nil
	return true
}

func (s *Session) setRespawning(v bool) {
	s.mu.Lock()
	s.respawning = v
	s.mu.Unlock()
}

func (s *Session) isRespawning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.respawning
}
