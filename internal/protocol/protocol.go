package protocol

import "encoding/json"

// Client -> Server message types
const (
	MsgRegister     = "REGISTER_REQUEST"
	MsgLogin        = "LOGIN_REQUEST"
	MsgTokenLogin   = "TOKEN_LOGIN_REQUEST"
	MsgLogout       = "LOGOUT_REQUEST"
	MsgJoinGame     = "JOIN_GAME_REQUEST"
	MsgLeaveGame    = "LEAVE_GAME_REQUEST"
	MsgPlayerUpdate = "PLAYER_UPDATE_REQUEST"
	MsgShipUpdate   = "SHIP_UPDATE_REQUEST"
	MsgFire         = "FIRE_REQUEST"
	MsgAttack       = "ATTACK_REQUEST"
	MsgPlayerAttack = "PLAYER_ATTACK_REQUEST"
	MsgChunk        = "REQUEST_CHUNK_REQUEST"
	MsgPalette      = "REQUEST_PALETTE_REQUEST"
	MsgPlanetsArea  = "REQUEST_PLANETS_AREA_REQUEST"
)

// Server -> Client message types
const (
	MsgRegisterResponse  = "REGISTER_RESPONSE"
	MsgLoginResponse     = "LOGIN_RESPONSE"
	MsgLogoutResponse    = "LOGOUT_RESPONSE"
	MsgJoinGameResponse  = "JOIN_GAME_RESPONSE"
	MsgLeaveGameResponse = "LEAVE_GAME_RESPONSE"
	MsgChunkResponse     = "CHUNK_RESPONSE"
	MsgPaletteResponse   = "PALETTE_RESPONSE"
	MsgPlanetsResponse   = "PLANETS_AREA_RESPONSE"
	MsgError             = "ERROR_RESPONSE"

	MsgPlayerJoined  = "PLAYER_JOINED_BROADCAST"
	MsgPlayerLeft    = "PLAYER_LEFT_BROADCAST"
	MsgPlayerMoved   = "PLAYER_MOVED_BROADCAST"
	MsgPlayerDamaged = "PLAYER_DAMAGED_BROADCAST"
	MsgPlayerKilled  = "PLAYER_KILLED_BROADCAST"

	MsgShipUpdated   = "SHIP_UPDATE_BROADCAST"
	MsgShipLeft      = "SHIP_LEFT_BROADCAST"
	MsgShipDamaged   = "SHIP_DAMAGED_BROADCAST"
	MsgShipDestroyed = "SHIP_DESTROYED_BROADCAST"

	MsgProjectileSpawned = "PROJECTILE_SPAWNED_BROADCAST"
	MsgProjectileUpdated = "PROJECTILE_UPDATE_BROADCAST"
	MsgProjectileRemoved = "PROJECTILE_REMOVED_BROADCAST"
)

// Header is decoded first to route a message by its type discriminator.
type Header struct {
	Type string `json:"type"`
}

// DecodeType extracts the type discriminator from a raw message.
func DecodeType(raw []byte) (string, error) {
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", err
	}
	return h.Type, nil
}

// --- requests ---

// CredentialsMsg is sent for both registration and login
type CredentialsMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenLoginMsg resumes an identity from a previously issued token
type TokenLoginMsg struct {
	Token string `json:"token"`
}

// JoinGameMsg asks to land on a planet
type JoinGameMsg struct {
	GameID string `json:"gameId"`
}

// PlayerUpdateMsg carries the client-reported ground state
type PlayerUpdateMsg struct {
	PlayerID       int64   `json:"playerId"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	DX             float64 `json:"dx"`
	DY             float64 `json:"dy"`
	DirectionAngle float64 `json:"directionAngle"`
}

// ShipUpdateMsg carries the client-reported space state
type ShipUpdateMsg struct {
	PlayerID  int64   `json:"playerId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Angle     float64 `json:"angle"`
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
	Thrusting bool    `json:"thrusting"`
}

// FireMsg requests a shot from the player's ship at the given pose
type FireMsg struct {
	PlayerID int64   `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Angle    float64 `json:"angle"`
	DX       float64 `json:"dx"`
	DY       float64 `json:"dy"`
}

// AttackMsg requests a melee attack on the ground
type AttackMsg struct {
	AttackerID int64 `json:"attackerId"`
	TargetID   int64 `json:"targetId"`
}

// ChunkMsg requests one terrain chunk of the current planet
type ChunkMsg struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PlanetsAreaMsg requests the planets around a point in space
type PlanetsAreaMsg struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// --- responses ---

// ErrorMsg is sent for protocol and state-consistency errors
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}

// NewError builds an ERROR_RESPONSE
func NewError(request, message string) ErrorMsg {
	return ErrorMsg{Type: MsgError, Message: message, Request: request}
}

type RegisterResponse struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	PlayerID int64  `json:"playerId,omitempty"`
}

type LoginResponse struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	PlayerID int64  `json:"playerId,omitempty"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`
}

type LogoutResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PlayerInfo is one roster entry of a game instance
type PlayerInfo struct {
	PlayerID  int64   `json:"playerId"`
	Username  string  `json:"username"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Health    float64 `json:"health"`
	Direction float64 `json:"directionAngle"`
}

type JoinGameResponse struct {
	Type          string       `json:"type"`
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	GameID        string       `json:"gameId,omitempty"`
	PlanetName    string       `json:"planetName,omitempty"`
	PlayersInGame []PlayerInfo `json:"playersInGame"`
}

type LeaveGameResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	GameID  string `json:"gameId,omitempty"`
}

type PlayerJoinedBroadcast struct {
	Type   string     `json:"type"`
	GameID string     `json:"gameId"`
	Player PlayerInfo `json:"player"`
}

type PlayerLeftBroadcast struct {
	Type     string `json:"type"`
	GameID   string `json:"gameId"`
	PlayerID int64  `json:"playerId"`
}

type PlayerMovedBroadcast struct {
	Type      string  `json:"type"`
	PlayerID  int64   `json:"playerId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
	Direction float64 `json:"directionAngle"`
	Tick      uint64  `json:"tick"`
}

type PlayerDamagedBroadcast struct {
	Type      string  `json:"type"`
	PlayerID  int64   `json:"playerId"`
	DealerID  int64   `json:"dealerId"`
	Amount    float64 `json:"amount"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
}

type PlayerKilledBroadcast struct {
	Type     string `json:"type"`
	PlayerID int64  `json:"playerId"`
	KillerID int64  `json:"killerId"`
}

// ShipState is the wire form of a ship
type ShipState struct {
	ShipID    string  `json:"shipId"`
	Kind      string  `json:"kind"`
	PlayerID  int64   `json:"playerId,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Angle     float64 `json:"angle"`
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
	Thrusting bool    `json:"thrusting"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
}

type ShipUpdateBroadcast struct {
	Type string `json:"type"`
	ShipState
}

type ShipLeftBroadcast struct {
	Type     string `json:"type"`
	ShipID   string `json:"shipId"`
	PlayerID int64  `json:"playerId,omitempty"`
}

type ShipDamagedBroadcast struct {
	Type      string  `json:"type"`
	ShipID    string  `json:"shipId"`
	DealerID  string  `json:"dealerId"`
	Amount    float64 `json:"amount"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
}

type ShipDestroyedBroadcast struct {
	Type        string  `json:"type"`
	ShipID      string  `json:"shipId"`
	DestroyerID string  `json:"destroyerId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// ProjectileState is the wire form of a projectile
type ProjectileState struct {
	ProjectileID string  `json:"projectileId"`
	OwnerID      string  `json:"ownerId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	DX           float64 `json:"dx"`
	DY           float64 `json:"dy"`
	Damage       float64 `json:"damage"`
}

type ProjectileSpawnedBroadcast struct {
	Type string `json:"type"`
	ProjectileState
}

type ProjectileUpdateBroadcast struct {
	Type string `json:"type"`
	ProjectileState
}

type ProjectileRemovedBroadcast struct {
	Type         string `json:"type"`
	ProjectileID string `json:"projectileId"`
	Reason       string `json:"reason"`
	HitShipID    string `json:"hitShipId,omitempty"`
}

type ChunkResponse struct {
	Type  string  `json:"type"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Size  int     `json:"size"`
	Tiles [][]int `json:"tiles"`
}

type PaletteResponse struct {
	Type   string   `json:"type"`
	Colors [][3]int `json:"colors"`
}

// PlanetInfo is the wire form of a planet
type PlanetInfo struct {
	GameID string  `json:"gameId"`
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

type PlanetsAreaResponse struct {
	Type    string       `json:"type"`
	Planets []PlanetInfo `json:"planets"`
}
