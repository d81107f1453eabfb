package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planetfall-server/internal/player"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetPlayer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreatePlayer(ctx, "ripley", "hash")
	require.NoError(t, err)
	assert.Positive(t, id)

	byName, err := s.GetPlayerByUsername(ctx, "ripley")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, id, byName.ID)
	assert.Equal(t, "hash", byName.PassHash)
	assert.Equal(t, player.StartingHealth, byName.Health)

	byID, err := s.GetPlayerByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "ripley", byID.Username)
}

func TestGetMissingPlayer(t *testing.T) {
	s := openTestStore(t)
	p, err := s.GetPlayerByUsername(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestUsernameUnique(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreatePlayer(ctx, "hicks", "a")
	require.NoError(t, err)
	exists, err := s.UsernameExists(ctx, "hicks")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.CreatePlayer(ctx, "hicks", "b")
	assert.Error(t, err)
}

func TestSavePlayerRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.CreatePlayer(ctx, "vasquez", "h")
	require.NoError(t, err)

	rec := player.Record{
		ID: id, Username: "vasquez",
		X: 12, Y: 34, Health: 55, Coins: 7,
		SpaceX: 1000, SpaceY: -200, SpaceAngle: 1.5, LastPlanet: "4",
	}
	require.NoError(t, s.SavePlayer(ctx, rec))

	got, err := s.GetPlayerByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec, got.Record)
}

func TestSaveUnknownPlayer(t *testing.T) {
	s := openTestStore(t)
	err := s.SavePlayer(context.Background(), player.Record{ID: 42})
	assert.Error(t, err)
}

func TestPlayerSaveThroughStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.CreatePlayer(ctx, "bishop", "h")
	require.NoError(t, err)

	p := player.New(player.Record{ID: id, Username: "bishop"}, s)
	p.SetSpacePose(5, 6, 0.5)
	require.NoError(t, p.Save(ctx))

	got, err := s.GetPlayerByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.SpaceX)
	assert.Equal(t, 6.0, got.SpaceY)
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, "", s.GetSetting("jwt_secret"))

	require.NoError(t, s.SetSetting("jwt_secret", "abc"))
	assert.Equal(t, "abc", s.GetSetting("jwt_secret"))

	require.NoError(t, s.SetSetting("jwt_secret", "def"))
	assert.Equal(t, "def", s.GetSetting("jwt_secret"))
}

func TestChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadChunk(ctx, "1", 0, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveChunk(ctx, "1", 0, 0, []byte{1, 2, 3}))
	require.NoError(t, s.SaveChunk(ctx, "2", 0, 0, []byte{9}))

	blob, ok, err := s.LoadChunk(ctx, "1", 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, blob)

	require.NoError(t, s.SaveChunk(ctx, "1", 0, 0, []byte{4}))
	blob, _, err = s.LoadChunk(ctx, "1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, blob)
}

func TestRecorderFlushesOnStop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	r := NewRecorder(s, time.Hour, zerolog.Nop())

	r.Track(EventLogin, 1, "sess-a", "")
	r.Track(EventLogin, 2, "sess-b", "")
	r.Track(EventShipDestroyed, 1, "", `{"destroyer":"npc-1"}`)
	r.Stop()

	logins, err := s.CountEvents(ctx, EventLogin)
	require.NoError(t, err)
	assert.Equal(t, 2, logins)

	destroyed, err := s.CountEvents(ctx, EventShipDestroyed)
	require.NoError(t, err)
	assert.Equal(t, 1, destroyed)

	active, err := s.ActivePlayers(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, active)

	later, err := s.ActivePlayers(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, later)
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, 20*time.Millisecond, zerolog.Nop())
	t.Cleanup(r.Stop)

	r.Track(EventLanded, 3, "", "7")
	assert.Eventually(t, func() bool {
		n, err := s.CountEvents(context.Background(), EventLanded)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Track(EventLogin, 1, "", "")
	r.Stop()
}

func TestTrackAfterStopIsDropped(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, time.Hour, zerolog.Nop())
	r.Stop()
	r.Track(EventLogout, 1, "", "")
	r.Stop()

	n, err := s.CountEvents(context.Background(), EventLogout)
	require.NoError(t, err)
	assert.Zero(t, n)
}
