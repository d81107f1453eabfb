package game

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"planetfall-server/internal/terrain"
)

var (
	ErrInvalidGameID = errors.New("invalid game id")
	ErrUnknownPlanet = errors.New("no such planet")
)

// GuardianFunc builds the planet-local AI for a new instance. May return nil.
type GuardianFunc func(p terrain.Planet) Stepper

// Directory lazily creates one instance per planet and keeps it for the
// process lifetime.
type Directory struct {
	Logger   zerolog.Logger
	Capacity int
	Guardian GuardianFunc
	OnKilled KilledFunc

	galaxy *terrain.Galaxy
	chunks terrain.ChunkStore

	mu        sync.Mutex
	instances map[string]*Instance
}

// NewDirectory creates a directory over the galaxy. chunks may be nil.
func NewDirectory(galaxy *terrain.Galaxy, chunks terrain.ChunkStore, capacity int, logger zerolog.Logger) *Directory {
	return &Directory{
		Logger:    logger,
		Capacity:  capacity,
		galaxy:    galaxy,
		chunks:    chunks,
		instances: make(map[string]*Instance),
	}
}

// GetOrCreate returns the instance for gameID, creating it on first use.
func (d *Directory) GetOrCreate(gameID string) (*Instance, error) {
	id, err := strconv.Atoi(gameID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGameID, gameID)
	}

	key := strconv.Itoa(id)

	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.instances[key]; ok {
		return g, nil
	}

	p, ok := d.galaxy.Planet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlanet, id)
	}
	gen := terrain.NewCached(terrain.NewHashed(p.Seed), d.chunks, p.GameID(), d.Logger)
	g := NewInstance(p, gen, d.Capacity, d.Logger)
	g.OnKilled = d.OnKilled
	if d.Guardian != nil {
		if ai := d.Guardian(p); ai != nil {
			g.AI = ai
		}
	}
	d.instances[key] = g
	d.Logger.Info().Str("game", p.GameID()).Str("planet", p.Name).Msg("game instance created")
	return g, nil
}

// Instances returns a snapshot ordered by game id
func (d *Directory) Instances() []*Instance {
	d.mu.Lock()
	out := make([]*Instance, 0, len(d.instances))
	for _, g := range d.instances {
		out = append(out, g)
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Planet.ID < out[j].Planet.ID })
	return out
}

// Galaxy returns the planet layout
func (d *Directory) Galaxy() *terrain.Galaxy {
	return d.galaxy
}
