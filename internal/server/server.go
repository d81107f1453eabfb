// Package server accepts client connections and turns their messages into
// operations on the world.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"planetfall-server/internal/auth"
	"planetfall-server/internal/combat"
	"planetfall-server/internal/game"
	"planetfall-server/internal/physics"
	"planetfall-server/internal/registry"
	"planetfall-server/internal/ship"
	"planetfall-server/internal/sim"
	"planetfall-server/internal/store"
	"planetfall-server/internal/telemetry"
	"planetfall-server/internal/terrain"
)

const (
	DefaultRespawnDelay = 3 * time.Second

	// respawned ships appear this far outside the nearest planet's rim
	respawnOffset = 200.0
)

// Options tunes transport limits and gameplay timing.
type Options struct {
	PublicURL         string
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	RespawnDelay      time.Duration
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = DefaultMessageBurst
	}
	if o.RespawnDelay <= 0 {
		o.RespawnDelay = DefaultRespawnDelay
	}
}

// Server binds sessions to the simulation.
type Server struct {
	Logger   zerolog.Logger
	Metrics  *telemetry.Metrics
	Events   *store.Recorder
	Hub      *Hub
	Auth     *auth.Auth
	World    *sim.World
	Registry *registry.Registry
	Combat   *combat.Manager
	Games    *game.Directory

	opts     Options
	dispatch *Dispatcher
}

// New wires a server over an assembled world. The hub must be the
// broadcaster the world's registry and combat manager were built with.
func New(opts Options, hub *Hub, a *auth.Auth, w *sim.World, logger zerolog.Logger) *Server {
	opts.defaults()
	s := &Server{
		Logger:   logger.With().Str("component", "server").Logger(),
		Hub:      hub,
		Auth:     a,
		World:    w,
		Registry: w.Registry,
		Combat:   w.Combat,
		Games:    w.Games,
		opts:     opts,
	}
	s.dispatch = NewDispatcher(s.Logger)
	s.registerHandlers()

	s.Combat.OnDestroyed(s.shipDestroyed)
	s.Games.OnKilled = s.playerKilled
	return s
}

// Routes configures the HTTP endpoints
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealth)
	mux.HandleFunc("/connect.png", s.serveConnectQR)
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r)
	if !s.Hub.CanAccept(ip) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("upgrade error")
		return
	}
	go s.accept(newWSConn(conn, ip))
}

// ServeTCP accepts line-transport clients until ctx is cancelled or the
// listener fails.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.Logger.Info().Str("addr", ln.Addr().String()).Msg("tcp listener started")
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		ip := hostOf(c.RemoteAddr().String())
		if !s.Hub.CanAccept(ip) {
			s.Logger.Warn().Str("ip", ip).Msg("rejecting tcp connection over limit")
			c.Close()
			continue
		}
		go s.accept(newLineConn(c))
	}
}

// accept registers a session for conn and runs it until it ends
func (s *Server) accept(conn Conn) {
	s.Hub.TrackConnect(conn.RemoteIP())
	sess := newSession(s, conn)
	s.Hub.register(sess)
	sess.Logger.Info().Msg("session opened")
	sess.run()
}

type health struct {
	Status   string           `json:"status"`
	Sessions int              `json:"sessions"`
	Ships    int              `json:"ships"`
	Games    []instanceHealth `json:"games"`
}

type instanceHealth struct {
	GameID  string `json:"gameId"`
	Planet  string `json:"planet"`
	Players int    `json:"players"`
	Tick    uint64 `json:"tick"`
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	h := health{
		Status:   "ok",
		Sessions: s.Hub.Count(),
		Ships:    s.Registry.Count(),
		Games:    []instanceHealth{},
	}
	for _, g := range s.Games.Instances() {
		h.Games = append(h.Games, instanceHealth{
			GameID:  g.GameID,
			Planet:  g.Planet.Name,
			Players: g.PlayerCount(),
			Tick:    g.Tick(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}

// serveConnectQR renders the WebSocket URL as a QR code for mobile clients
func (s *Server) serveConnectQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(s.connectURL(r), qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "could not render code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(png)
}

func (s *Server) connectURL(r *http.Request) string {
	if s.opts.PublicURL != "" {
		return s.opts.PublicURL
	}
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws"
}

// shipDestroyed takes a destroyed player ship out of play and schedules its
// respawn near the closest planet.
func (s *Server) shipDestroyed(sh *ship.Ship, destroyerID string) {
	if !sh.IsPlayer() {
		return
	}
	sess := s.Hub.SessionForPlayer(sh.OwnerPlayerID)
	if sess == nil {
		return
	}
	sess.setRespawning(true)
	p := sh.Pose()
	sess.Logger.Info().Str("destroyer", destroyerID).Msg("ship destroyed, respawning")
	s.Events.Track(store.EventShipDestroyed, sh.OwnerPlayerID, sess.ID, destroyerID)

	s.World.After(s.opts.RespawnDelay.Seconds(), func() {
		if !sess.isRespawning() || sess.Player() == nil || sess.Game() != nil {
			return
		}
		sess.setRespawning(false)
		s.launch(sess, s.respawnPose(p.X, p.Y))
	})
}

func (s *Server) respawnPose(x, y float64) physics.Pose {
	b := s.Registry.Bounds()
	near := s.Games.Galaxy().PlanetsInArea(x, y, b.MaxX-b.MinX+b.MaxY-b.MinY)
	if len(near) == 0 {
		cx, cy := b.Center()
		return physics.Pose{X: cx, Y: cy}
	}
	pl := near[0]
	rx, ry := b.Clamp(pl.X+pl.Radius+respawnOffset, pl.Y)
	return physics.Pose{X: rx, Y: ry}
}

// playerKilled sends a player killed on the ground back to space
func (s *Server) playerKilled(victim *game.Member, killerID int64) {
	sess, ok := victim.Session.(*Session)
	if !ok || sess == nil {
		return
	}
	inst := sess.Game()
	if inst == nil || !sess.exitGame(inst) {
		return
	}
	sess.Logger.Info().Int64("killer", killerID).Str("game", inst.GameID).Msg("killed on the ground")
	s.Events.Track(store.EventPlayerKilled, victim.Player.ID, sess.ID, strconv.FormatInt(killerID, 10))
	s.launch(sess, s.spacePose(sess, inst.Planet))
}

// spacePose is where a player leaving pl appears: the saved pose when it
// is set, otherwise just outside the planet.
func (s *Server) spacePose(sess *Session, pl terrain.Planet) physics.Pose {
	p := sess.Player()
	x, y, a := p.SpacePose()
	if x == 0 && y == 0 {
		x, y = s.Registry.Bounds().Clamp(pl.X+pl.Radius+respawnOffset, pl.Y)
	}
	return physics.Pose{X: x, Y: y, Angle: a}
}

// launch puts the session's ship into space and persists the pose
func (s *Server) launch(sess *Session, pose physics.Pose) {
	p := sess.Player()
	if p == nil {
		return
	}
	s.Registry.SetLaunched(p.ID, pose)
	p.SetSpacePose(pose.X, pose.Y, pose.Angle)
	sess.persist(p)
}
