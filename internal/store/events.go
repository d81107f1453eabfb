package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event kinds written to the event log
const (
	EventLogin         = "login"
	EventLogout        = "logout"
	EventLanded        = "landed"
	EventShipDestroyed = "ship_destroyed"
	EventPlayerKilled  = "player_killed"
)

const (
	DefaultFlushInterval = 5 * time.Second
	eventQueueSize       = 1024
	eventBatchSize       = 50

	// fixed width so timestamps compare correctly as text
	eventTimeLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// Event is one gameplay fact for offline analysis
type Event struct {
	Kind      string
	PlayerID  int64
	SessionID string
	Data      string
	At        time.Time
}

// Recorder batches events and writes them in the background. A nil
// *Recorder drops everything, so callers need not check.
type Recorder struct {
	Logger zerolog.Logger

	db       *Store
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRecorder starts the background writer. flushEvery <= 0 uses
// DefaultFlushInterval.
func NewRecorder(db *Store, flushEvery time.Duration, logger zerolog.Logger) *Recorder {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushInterval
	}
	r := &Recorder{
		Logger: logger.With().Str("component", "events").Logger(),
		db:     db,
		events: make(chan Event, eventQueueSize),
		stop:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer(flushEvery)
	return r
}

// Track enqueues an event without blocking; it is dropped when the queue is full
func (r *Recorder) Track(kind string, playerID int64, sessionID, data string) {
	if r == nil {
		return
	}
	select {
	case <-r.stop:
		return
	default:
	}
	select {
	case r.events <- Event{Kind: kind, PlayerID: playerID, SessionID: sessionID, Data: data, At: time.Now().UTC()}:
	default:
		r.Logger.Warn().Str("kind", kind).Msg("event queue full, dropping")
	}
}

// Stop flushes queued events and ends the writer
func (r *Recorder) Stop() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Recorder) writer(every time.Duration) {
	defer r.wg.Done()

	batch := make([]Event, 0, eventBatchSize)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case e := <-r.events:
			batch = append(batch, e)
			if len(batch) >= eventBatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.stop:
			for {
				select {
				case e := <-r.events:
					batch = append(batch, e)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(events []Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		r.Logger.Error().Err(err).Msg("begin tx")
		return
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (kind, player_id, session_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		r.Logger.Error().Err(err).Msg("prepare insert")
		return
	}
	defer stmt.Close()

	for _, e := range events {
		pid := sql.NullInt64{Int64: e.PlayerID, Valid: e.PlayerID > 0}
		sid := sql.NullString{String: e.SessionID, Valid: e.SessionID != ""}
		data := sql.NullString{String: e.Data, Valid: e.Data != ""}
		if _, err := stmt.ExecContext(ctx, e.Kind, pid, sid, data, e.At.UTC().Format(eventTimeLayout)); err != nil {
			r.Logger.Error().Err(err).Str("kind", e.Kind).Msg("insert event")
		}
	}
	if err := tx.Commit(); err != nil {
		r.Logger.Error().Err(err).Int("events", len(events)).Msg("commit events")
	}
}

// CountEvents returns how many events of kind were recorded
func (s *Store) CountEvents(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE kind = ?", kind).Scan(&n)
	return n, err
}

// ActivePlayers returns the number of distinct players with an event since t
func (s *Store) ActivePlayers(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT player_id) FROM events
		WHERE player_id IS NOT NULL AND created_at >= ?`,
		since.UTC().Format(eventTimeLayout),
	).Scan(&n)
	return n, err
}
