package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"planetfall-server/internal/auth"
	"planetfall-server/internal/combat"
	"planetfall-server/internal/game"
	"planetfall-server/internal/physics"
	"planetfall-server/internal/player"
	"planetfall-server/internal/protocol"
	"planetfall-server/internal/registry"
	"planetfall-server/internal/store"
	"planetfall-server/internal/terrain"
)

const (
	authTimeout = 10 * time.Second

	// largest area a client may query at once
	maxPlanetsRadius = 20000.0
)

func (s *Server) registerHandlers() {
	d := s.dispatch
	d.Register(protocol.MsgRegister, s.handleRegister, Public(), Logged())
	d.Register(protocol.MsgLogin, s.handleLogin, Public(), Logged())
	d.Register(protocol.MsgTokenLogin, s.handleTokenLogin, Public(), Logged())
	d.Register(protocol.MsgLogout, s.handleLogout, Logged())
	d.Register(protocol.MsgJoinGame, s.handleJoinGame, Logged())
	d.Register(protocol.MsgLeaveGame, s.handleLeaveGame, Logged())
	d.Register(protocol.MsgPlayerUpdate, s.handlePlayerUpdate)
	d.Register(protocol.MsgShipUpdate, s.handleShipUpdate)
	d.Register(protocol.MsgFire, s.handleFire)
	d.Register(protocol.MsgAttack, s.handleAttack)
	d.Register(protocol.MsgPlayerAttack, s.handleAttack)
	d.Register(protocol.MsgChunk, s.handleChunk)
	d.Register(protocol.MsgPalette, s.handlePalette)
	d.Register(protocol.MsgPlanetsArea, s.handlePlanetsArea)
}

// decode unmarshals raw into v, answering with an error when it fails
func decode(sess *Session, msgType string, raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		sess.Logger.Warn().Err(err).Str("type", msgType).Msg("bad payload")
		sess.sendError(msgType, "invalid message")
		return false
	}
	return true
}

// authMessage is the client-facing text for an auth failure
func authMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidPassword),
		errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrRateLimited),
		errors.Is(err, auth.ErrInvalidToken):
		return err.Error()
	}
	return "internal error"
}

func (s *Server) handleRegister(sess *Session, raw []byte) {
	var msg protocol.CredentialsMsg
	if !decode(sess, protocol.MsgRegister, raw, &msg) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	p, err := s.Auth.Register(ctx, msg.Username, msg.Password)
	if err != nil {
		if authMessage(err) == "internal error" {
			sess.Logger.Error().Err(err).Msg("register failed")
		}
		sess.SendJSON(protocol.RegisterResponse{Type: protocol.MsgRegisterResponse, Message: authMessage(err)})
		return
	}
	sess.SendJSON(protocol.RegisterResponse{
		Type:     protocol.MsgRegisterResponse,
		Success:  true,
		Message:  "registered",
		PlayerID: p.ID,
	})
}

func (s *Server) handleLogin(sess *Session, raw []byte) {
	var msg protocol.CredentialsMsg
	if !decode(sess, protocol.MsgLogin, raw, &msg) {
		return
	}
	if sess.Authenticated() {
		sess.SendJSON(protocol.LoginResponse{Type: protocol.MsgLoginResponse, Message: "already logged in"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	p, token, err := s.Auth.Login(ctx, msg.Username, msg.Password, sess.conn.RemoteIP())
	s.completeLogin(sess, p, token, err)
}

func (s *Server) handleTokenLogin(sess *Session, raw []byte) {
	var msg protocol.TokenLoginMsg
	if !decode(sess, protocol.MsgTokenLogin, raw, &msg) {
		return
	}
	if sess.Authenticated() {
		sess.SendJSON(protocol.LoginResponse{Type: protocol.MsgLoginResponse, Message: "already logged in"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	p, token, err := s.Auth.ResumeToken(ctx, msg.Token)
	s.completeLogin(sess, p, token, err)
}

// completeLogin binds p to sess after the older session for the same player,
// if any, has been fully torn down. The new session sees every ship already
// in space before its own ship appears.
func (s *Server) completeLogin(sess *Session, p *player.Player, token string, err error) {
	if err != nil {
		if authMessage(err) == "internal error" {
			sess.Logger.Error().Err(err).Msg("login failed")
		}
		sess.SendJSON(protocol.LoginResponse{Type: protocol.MsgLoginResponse, Message: authMessage(err)})
		return
	}

	if n := s.Hub.EnsureSingleSessionForPlayer(p.ID, sess); n > 0 {
		sess.Logger.Info().Int("closed", n).Int64("player", p.ID).Msg("replaced older session")
	}
	if !sess.bind(p) {
		s.Auth.Logout(p)
		return
	}
	sess.Logger.Info().Int64("player", p.ID).Str("username", p.Username).Msg("logged in")
	s.Events.Track(store.EventLogin, p.ID, sess.ID, sess.conn.Transport())

	sess.SendJSON(protocol.LoginResponse{
		Type:     protocol.MsgLoginResponse,
		Success:  true,
		Message:  "logged in",
		PlayerID: p.ID,
		Username: p.Username,
		Token:    token,
	})
	for _, sh := range s.Registry.Ships() {
		sess.SendJSON(protocol.ShipUpdateBroadcast{Type: protocol.MsgShipUpdated, ShipState: sh.State()})
	}

	b := s.Registry.Bounds()
	x, y, a := p.SpacePose()
	if x == 0 && y == 0 {
		// never flown: start next to the planet closest to the centre
		s.launch(sess, s.respawnPose(b.Center()))
		return
	}
	x, y = b.Clamp(x, y)
	s.launch(sess, physics.Pose{X: x, Y: y, Angle: a})
}

func (s *Server) handleLogout(sess *Session, raw []byte) {
	if p := sess.Player(); p != nil {
		sess.Logger.Info().Int64("player", p.ID).Msg("logging out")
	}
	sess.logout()
	sess.SendJSON(protocol.LogoutResponse{Type: protocol.MsgLogoutResponse, Success: true, Message: "logged out"})
}

func (s *Server) handleJoinGame(sess *Session, raw []byte) {
	var msg protocol.JoinGameMsg
	if !decode(sess, protocol.MsgJoinGame, raw, &msg) {
		return
	}
	fail := func(message string) {
		sess.SendJSON(protocol.JoinGameResponse{
			Type:          protocol.MsgJoinGameResponse,
			Message:       message,
			GameID:        msg.GameID,
			PlayersInGame: []protocol.PlayerInfo{},
		})
	}

	p := sess.Player()
	if sess.Game() != nil {
		fail("already in a game")
		return
	}
	sh := s.Registry.ShipForPlayer(p.ID)
	if sh == nil || sess.isRespawning() {
		fail("no ship to land")
		return
	}
	g, err := s.Games.GetOrCreate(msg.GameID)
	if err != nil {
		fail(err.Error())
		return
	}

	pose := sh.Pose()
	if err := g.Join(p, sess); err != nil {
		fail(err.Error())
		return
	}
	if !sess.enterGame(g) {
		g.Leave(p.ID)
		return
	}
	p.SetSpacePose(pose.X, pose.Y, pose.Angle)
	s.Registry.SetLanded(p.ID)
	sess.persist(p)
	sess.Logger.Info().Str("game", g.GameID).Str("planet", g.Planet.Name).Msg("landed")
	s.Events.Track(store.EventLanded, p.ID, sess.ID, g.GameID)
}

func (s *Server) handleLeaveGame(sess *Session, raw []byte) {
	g := sess.Game()
	if g == nil {
		sess.sendError(protocol.MsgLeaveGame, "not in a game")
		return
	}
	p := sess.Player()
	if err := g.Leave(p.ID); err != nil {
		sess.Logger.Debug().Err(err).Str("game", g.GameID).Msg("leave")
	}
	if !sess.exitGame(g) {
		return
	}
	sess.SendJSON(protocol.LeaveGameResponse{
		Type:    protocol.MsgLeaveGameResponse,
		Success: true,
		Message: "left game",
		GameID:  g.GameID,
	})
	s.launch(sess, s.spacePose(sess, g.Planet))
}

func (s *Server) handlePlayerUpdate(sess *Session, raw []byte) {
	var msg protocol.PlayerUpdateMsg
	if !decode(sess, protocol.MsgPlayerUpdate, raw, &msg) {
		return
	}
	p := sess.Player()
	if msg.PlayerID != p.ID {
		sess.sendError(protocol.MsgPlayerUpdate, "player id mismatch")
		return
	}
	g := sess.Game()
	if g == nil {
		sess.sendError(protocol.MsgPlayerUpdate, "not in a game")
		return
	}
	if err := g.UpdatePosition(p.ID, msg.X, msg.Y, msg.DX, msg.DY, msg.DirectionAngle); err != nil {
		sess.sendError(protocol.MsgPlayerUpdate, err.Error())
	}
}

func (s *Server) handleShipUpdate(sess *Session, raw []byte) {
	var msg protocol.ShipUpdateMsg
	if !decode(sess, protocol.MsgShipUpdate, raw, &msg) {
		return
	}
	p := sess.Player()
	if msg.PlayerID != p.ID {
		sess.sendError(protocol.MsgShipUpdate, "player id mismatch")
		return
	}
	u := registry.ShipUpdate{X: msg.X, Y: msg.Y, Angle: msg.Angle, DX: msg.DX, DY: msg.DY, Thrusting: msg.Thrusting}
	if sh := s.Registry.UpdateShip(p.ID, u, sess.inSpace()); sh != nil {
		pose := sh.Pose()
		p.SetSpacePose(pose.X, pose.Y, pose.Angle)
	}
}

func (s *Server) handleFire(sess *Session, raw []byte) {
	var msg protocol.FireMsg
	if !decode(sess, protocol.MsgFire, raw, &msg) {
		return
	}
	p := sess.Player()
	if msg.PlayerID != p.ID {
		sess.sendError(protocol.MsgFire, "player id mismatch")
		return
	}
	if !sess.inSpace() || s.Registry.ShipForPlayer(p.ID) == nil {
		sess.sendError(protocol.MsgFire, "not in space")
		return
	}
	u := registry.ShipUpdate{X: msg.X, Y: msg.Y, Angle: msg.Angle, DX: msg.DX, DY: msg.DY}
	sh := s.Registry.UpdateShip(p.ID, u, true)
	if sh == nil {
		return
	}
	_, err := s.Combat.Fire(sh)
	switch {
	case err == nil, errors.Is(err, combat.ErrOnCooldown), errors.Is(err, combat.ErrShipDestroyed):
	default:
		sess.Logger.Warn().Err(err).Msg("fire")
	}
}

func (s *Server) handleAttack(sess *Session, raw []byte) {
	var msg protocol.AttackMsg
	if !decode(sess, protocol.MsgAttack, raw, &msg) {
		return
	}
	p := sess.Player()
	if msg.AttackerID != p.ID {
		sess.sendError(protocol.MsgAttack, "player id mismatch")
		return
	}
	g := sess.Game()
	if g == nil {
		sess.sendError(protocol.MsgAttack, "not in a game")
		return
	}
	err := g.Attack(p.ID, msg.TargetID)
	switch {
	case err == nil, errors.Is(err, game.ErrOutOfRange), errors.Is(err, game.ErrOutsideArc):
	default:
		sess.sendError(protocol.MsgAttack, err.Error())
	}
}

func (s *Server) handleChunk(sess *Session, raw []byte) {
	var msg protocol.ChunkMsg
	if !decode(sess, protocol.MsgChunk, raw, &msg) {
		return
	}
	g := sess.Game()
	if g == nil {
		sess.sendError(protocol.MsgChunk, "not in a game")
		return
	}
	if !terrain.InWorld(msg.X, msg.Y) {
		sess.sendError(protocol.MsgChunk, "chunk out of bounds")
		return
	}
	ch := g.Terrain.Chunk(msg.X, msg.Y)
	sess.SendJSON(protocol.ChunkResponse{
		Type:  protocol.MsgChunkResponse,
		X:     ch.X,
		Y:     ch.Y,
		Size:  terrain.ChunkSize,
		Tiles: ch.Tiles,
	})
}

func (s *Server) handlePalette(sess *Session, raw []byte) {
	g := sess.Game()
	if g == nil {
		sess.sendError(protocol.MsgPalette, "not in a game")
		return
	}
	pal := g.Terrain.Palette()
	sess.SendJSON(protocol.PaletteResponse{Type: protocol.MsgPaletteResponse, Colors: pal[:]})
}

func (s *Server) handlePlanetsArea(sess *Session, raw []byte) {
	var msg protocol.PlanetsAreaMsg
	if !decode(sess, protocol.MsgPlanetsArea, raw, &msg) {
		return
	}
	radius := msg.Radius
	if radius <= 0 || radius > maxPlanetsRadius {
		radius = maxPlanetsRadius
	}
	planets := s.Games.Galaxy().PlanetsInArea(msg.X, msg.Y, radius)
	out := make([]protocol.PlanetInfo, 0, len(planets))
	for _, pl := range planets {
		out = append(out, protocol.PlanetInfo{
			GameID: pl.GameID(),
			Name:   pl.Name,
			X:      pl.X,
			Y:      pl.Y,
			Radius: pl.Radius,
		})
	}
	sess.SendJSON(protocol.PlanetsAreaResponse{Type: protocol.MsgPlanetsResponse, Planets: out})
}
