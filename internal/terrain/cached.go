package terrain

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ChunkStore persists encoded chunks. Load returns ok=false when the chunk
// has never been stored.
type ChunkStore interface {
	LoadChunk(ctx context.Context, planet string, cx, cy int) (blob []byte, ok bool, err error)
	SaveChunk(ctx context.Context, planet string, cx, cy int, blob []byte) error
}

// Cached serves chunks from memory, then the store, then the generator.
// Generated chunks are written back msgpack-encoded.
type Cached struct {
	Logger zerolog.Logger

	gen    Generator
	store  ChunkStore
	planet string

	mu  sync.RWMutex
	mem map[[2]int]Chunk
}

// NewCached wraps gen for one planet. store may be nil (memory only).
func NewCached(gen Generator, store ChunkStore, planet string, logger zerolog.Logger) *Cached {
	return &Cached{
		Logger: logger.With().Str("component", "terrain").Str("planet", planet).Logger(),
		gen:    gen,
		store:  store,
		planet: planet,
		mem:    make(map[[2]int]Chunk),
	}
}

// Chunk returns the chunk at (cx, cy). Chunks off the planet surface are
// generated on demand and never cached.
func (c *Cached) Chunk(cx, cy int) Chunk {
	if !InWorld(cx, cy) {
		return c.gen.Chunk(cx, cy)
	}
	key := [2]int{cx, cy}
	c.mu.RLock()
	ch, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return ch
	}

	ch, ok = c.load(cx, cy)
	if !ok {
		ch = c.gen.Chunk(cx, cy)
		c.save(ch)
	}

	c.mu.Lock()
	c.mem[key] = ch
	c.mu.Unlock()
	return ch
}

func (c *Cached) load(cx, cy int) (Chunk, bool) {
	if c.store == nil {
		return Chunk{}, false
	}
	blob, ok, err := c.store.LoadChunk(context.Background(), c.planet, cx, cy)
	if err != nil {
		c.Logger.Warn().Err(err).Int("cx", cx).Int("cy", cy).Msg("chunk load failed")
		return Chunk{}, false
	}
	if !ok {
		return Chunk{}, false
	}
	var ch Chunk
	if err := msgpack.Unmarshal(blob, &ch); err != nil {
		c.Logger.Warn().Err(err).Int("cx", cx).Int("cy", cy).Msg("chunk decode failed")
		return Chunk{}, false
	}
	return ch, true
}

func (c *Cached) save(ch Chunk) {
	if c.store == nil {
		return
	}
	blob, err := msgpack.Marshal(ch)
	if err != nil {
		c.Logger.Error().Err(err).Msg("chunk encode failed")
		return
	}
	if err := c.store.SaveChunk(context.Background(), c.planet, ch.X, ch.Y, blob); err != nil {
		c.Logger.Warn().Err(err).Int("cx", ch.X).Int("cy", ch.Y).Msg("chunk save failed")
	}
}

func (c *Cached) Solid(tx, ty int) bool {
	return c.gen.Solid(tx, ty)
}

func (c *Cached) Palette() Palette {
	return c.gen.Palette()
}
