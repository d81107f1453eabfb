package registry

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"planetfall-server/internal/physics"
	"planetfall-server/internal/protocol"
	"planetfall-server/internal/ship"
)

// Broadcaster fans a message out to every authenticated session.
type Broadcaster interface {
	BroadcastAll(msg any)
}

// ShipUpdate is a client-reported space pose
type ShipUpdate struct {
	X, Y      float64
	Angle     float64
	DX, DY    float64
	Thrusting bool
}

// Registry is the global map of live ships: every player in space and every
// NPC. Combat consults it for all hit and collision checks.
type Registry struct {
	Logger zerolog.Logger

	mu       sync.RWMutex
	ships    map[string]*ship.Ship
	byPlayer map[int64]string

	// players whose ship was destroyed and not yet relaunched
	downed map[int64]bool

	bounds physics.Bounds
	out    Broadcaster
}

// New creates an empty registry clamped to bounds
func New(bounds physics.Bounds, out Broadcaster, logger zerolog.Logger) *Registry {
	return &Registry{
		Logger:   logger.With().Str("component", "registry").Logger(),
		ships:    make(map[string]*ship.Ship),
		byPlayer: make(map[int64]string),
		downed:   make(map[int64]bool),
		bounds:   bounds,
		out:      out,
	}
}

// Bounds returns the operational rectangle
func (r *Registry) Bounds() physics.Bounds {
	return r.bounds
}

// UpdateShip applies a client-reported pose. A player without a ship gets one
// only when shouldBeInSpace is set and the ship was not destroyed; otherwise
// the update is ignored. Returns the ship, or nil when the update was ignored.
func (r *Registry) UpdateShip(playerID int64, u ShipUpdate, shouldBeInSpace bool) *ship.Ship {
	pose := physics.Pose{X: u.X, Y: u.Y, VX: u.DX, VY: u.DY, Angle: u.Angle}

	r.mu.Lock()
	s := r.shipForPlayerLocked(playerID)
	if s == nil {
		if !shouldBeInSpace || r.downed[playerID] {
			r.mu.Unlock()
			return nil
		}
		s = ship.NewPlayerShip(playerID, pose)
		r.ships[s.ID] = s
		r.byPlayer[playerID] = s.ID
		r.Logger.Debug().Int64("player", playerID).Str("ship", s.ID).Msg("player ship created")
	}
	s.SetPose(physics.Constrain(pose, s.Stats.Limits(), r.bounds), u.Thrusting)
	r.mu.Unlock()

	r.Publish(s)
	return s
}

// SetLanded removes the player's ship and tells everyone it left.
func (r *Registry) SetLanded(playerID int64) bool {
	r.mu.Lock()
	id, ok := r.byPlayer[playerID]
	if ok {
		delete(r.byPlayer, playerID)
		delete(r.ships, id)
	}
	delete(r.downed, playerID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.out.BroadcastAll(protocol.ShipLeftBroadcast{
		Type:     protocol.MsgShipLeft,
		ShipID:   id,
		PlayerID: playerID,
	})
	return true
}

// SetLaunched recreates the player's ship at pose. Any existing ship for the
// player is replaced, keeping one ship per player.
func (r *Registry) SetLaunched(playerID int64, pose physics.Pose) *ship.Ship {
	s := ship.NewPlayerShip(playerID, pose)
	s.SetPose(physics.Constrain(s.Pose(), s.Stats.Limits(), r.bounds), false)

	r.mu.Lock()
	r.ships[s.ID] = s
	r.byPlayer[playerID] = s.ID
	delete(r.downed, playerID)
	r.mu.Unlock()

	r.Publish(s)
	return s
}

// Add registers an NPC ship and announces it
func (r *Registry) Add(s *ship.Ship) {
	r.mu.Lock()
	r.ships[s.ID] = s
	if s.OwnerPlayerID != 0 {
		r.byPlayer[s.OwnerPlayerID] = s.ID
	}
	r.mu.Unlock()
	r.Publish(s)
}

// Remove drops a ship without broadcasting. Callers announce the reason.
func (r *Registry) Remove(id string) *ship.Ship {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.ships[id]
	if !ok {
		return nil
	}
	delete(r.ships, id)
	if s.OwnerPlayerID != 0 && r.byPlayer[s.OwnerPlayerID] == id {
		delete(r.byPlayer, s.OwnerPlayerID)
	}
	return s
}

// Destroy removes a destroyed ship. A player's ship stays out of space until
// SetLaunched, whatever the client reports in the meantime.
func (r *Registry) Destroy(id string) *ship.Ship {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.ships[id]
	if !ok {
		return nil
	}
	delete(r.ships, id)
	if s.OwnerPlayerID != 0 {
		if r.byPlayer[s.OwnerPlayerID] == id {
			delete(r.byPlayer, s.OwnerPlayerID)
		}
		r.downed[s.OwnerPlayerID] = true
	}
	return s
}

// Publish broadcasts the current state of a ship
func (r *Registry) Publish(s *ship.Ship) {
	r.out.BroadcastAll(protocol.ShipUpdateBroadcast{
		Type:      protocol.MsgShipUpdated,
		ShipState: s.State(),
	})
}

func (r *Registry) Get(id string) *ship.Ship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ships[id]
}

// ShipForPlayer returns the player's ship, or nil when not in space
func (r *Registry) ShipForPlayer(playerID int64) *ship.Ship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shipForPlayerLocked(playerID)
}

func (r *Registry) shipForPlayerLocked(playerID int64) *ship.Ship {
	id, ok := r.byPlayer[playerID]
	if !ok {
		return nil
	}
	return r.ships[id]
}

// Ships returns a snapshot ordered by id, so sweeps are deterministic.
func (r *Registry) Ships() []*ship.Ship {
	r.mu.RLock()
	out := make([]*ship.Ship, 0, len(r.ships))
	for _, s := range r.ships {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PlayerShips returns a snapshot of ships flown by players
func (r *Registry) PlayerShips() []*ship.Ship {
	all := r.Ships()
	out := all[:0]
	for _, s := range all {
		if s.IsPlayer() {
			out = append(out, s)
		}
	}
	return out
}

// NearestPlayerShip returns the closest live player ship within maxDist.
func (r *Registry) NearestPlayerShip(x, y, maxDist float64) *ship.Ship {
	var best *ship.Ship
	bestSq := maxDist * maxDist
	for _, s := range r.PlayerShips() {
		if !s.Alive() {
			continue
		}
		p := s.Pose()
		if d := physics.DistanceSq(x, y, p.X, p.Y); d <= bestSq {
			best, bestSq = s, d
		}
	}
	return best
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ships)
}
