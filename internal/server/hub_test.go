package server

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"planetfall-server/internal/player"
	"planetfall-server/internal/protocol"
)

// fakeConn is an in-memory transport. Tests push inbound payloads through
// in; everything the session writes lands in out.
type fakeConn struct {
	ip string
	in chan []byte

	mu     sync.Mutex
	out    [][]byte
	closed int
	once   sync.Once
}

func newFakeConn(ip string) *fakeConn {
	return &fakeConn{ip: ip, in: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	data, ok := <-f.in
	if !ok {
		return nil, net.ErrClosed
	}
	return data, nil
}

func (f *fakeConn) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Ping() error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	f.once.Do(func() { close(f.in) })
	return nil
}

func (f *fakeConn) RemoteIP() string  { return f.ip }
func (f *fakeConn) Transport() string { return "fake" }

// queued drains the session's send queue without a write pump
func queued(s *Session) []map[string]any {
	var out []map[string]any
	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				return out
			}
			var m map[string]any
			json.Unmarshal(data, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHubConnectionLimits(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.MaxConnsPerIP = 2
	h.MaxConns = 3

	h.TrackConnect("1.1.1.1")
	h.TrackConnect("1.1.1.1")
	if h.CanAccept("1.1.1.1") {
		t.Error("expected per-ip limit to reject a third connection")
	}
	if !h.CanAccept("2.2.2.2") {
		t.Error("expected another ip to be accepted")
	}
	h.TrackConnect("2.2.2.2")
	if h.CanAccept("3.3.3.3") {
		t.Error("expected global limit to reject")
	}

	h.TrackDisconnect("1.1.1.1")
	if !h.CanAccept("1.1.1.1") {
		t.Error("expected slot to be freed after disconnect")
	}
	if h.TotalConns() != 2 {
		t.Errorf("expected 2 tracked connections, got %d", h.TotalConns())
	}
}

func TestBroadcastSkipsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	anon := env.fakeSession("10.0.0.1")
	authed := env.fakeSession("10.0.0.2")
	authed.bind(player.New(player.Record{ID: 7, Username: "seven"}, nil))

	env.hub.BroadcastAll(protocol.NewError("", "hello"))

	if n := len(queued(anon)); n != 0 {
		t.Errorf("expected no messages for anonymous session, got %d", n)
	}
	msgs := queued(authed)
	if len(msgs) != 1 || msgs[0]["message"] != "hello" {
		t.Errorf("expected one broadcast for authenticated session, got %v", msgs)
	}
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	env := newTestEnv(t)
	s := env.fakeSession("10.0.0.1")
	s.bind(player.New(player.Record{ID: 1, Username: "one"}, nil))

	for i := 0; i < cap(s.send)+10; i++ {
		env.hub.BroadcastAll(protocol.NewError("", "spam"))
	}
	if len(s.send) != cap(s.send) {
		t.Errorf("expected queue to be full at %d, got %d", cap(s.send), len(s.send))
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	env := newTestEnv(t)
	conn := newFakeConn("10.0.0.1")
	env.hub.TrackConnect(conn.RemoteIP())
	s := newSession(env.srv, conn)
	env.hub.register(s)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	select {
	case <-s.Done():
	default:
		t.Fatal("expected session to be done")
	}
	if env.hub.Count() != 0 {
		t.Errorf("expected hub to be empty, got %d", env.hub.Count())
	}
	if env.hub.TotalConns() != 0 {
		t.Errorf("expected no tracked connections, got %d", env.hub.TotalConns())
	}
	if s.SendRaw([]byte("{}")) {
		t.Error("expected send on closed session to fail")
	}
}

func TestCloseRemovesShipAndPersists(t *testing.T) {
	env := newTestEnv(t)
	p := env.registerPlayer(t, "pilot", "secret")
	s := env.fakeSession("10.0.0.1")
	env.srv.completeLogin(s, p, "", nil)

	sh := env.srv.Registry.ShipForPlayer(p.ID)
	if sh == nil {
		t.Fatal("expected a ship after login")
	}
	env.srv.Registry.UpdateShip(p.ID, shipAt(1500, -700), true)

	s.Close()

	if env.srv.Registry.ShipForPlayer(p.ID) != nil {
		t.Error("expected ship to be removed on close")
	}
	if env.srv.Auth.Online(p.ID) {
		t.Error("expected player to be logged out")
	}
	row := env.loadPlayer(t, "pilot")
	if row.SpaceX != 1500 || row.SpaceY != -700 {
		t.Errorf("expected saved space pose (1500,-700), got (%v,%v)", row.SpaceX, row.SpaceY)
	}
}

func TestDispatchRejectsUnknownAndUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	s := env.fakeSession("10.0.0.1")

	s.handle([]byte(`{"type":"WARP_REQUEST"}`))
	s.handle([]byte(`{"type":"SHIP_UPDATE_REQUEST","playerId":1}`))
	s.handle([]byte(`not json`))

	msgs := queued(s)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 replies, got %d: %v", len(msgs), msgs)
	}
	if msgs[0]["message"] != "unknown message type" {
		t.Errorf("expected unknown message type, got %v", msgs[0]["message"])
	}
	if msgs[1]["message"] != "not authenticated" {
		t.Errorf("expected not authenticated, got %v", msgs[1]["message"])
	}
}

func TestHandlerPanicReportsInternalError(t *testing.T) {
	env := newTestEnv(t)
	env.srv.dispatch.Register("BOOM_REQUEST", func(*Session, []byte) { panic("boom") }, Public())
	s := env.fakeSession("10.0.0.1")

	s.handle([]byte(`{"type":"BOOM_REQUEST"}`))
	s.handle([]byte(`{"type":"BOOM_REQUEST"}`))

	msgs := queued(s)
	if len(msgs) != 2 {
		t.Fatalf("expected session to survive both panics, got %d replies", len(msgs))
	}
	if msgs[0]["message"] != "internal error" || msgs[0]["request"] != "BOOM_REQUEST" {
		t.Errorf("unexpected reply %v", msgs[0])
	}
}

func TestReadLoopSplitsLinesAndClosesOnEOF(t *testing.T) {
	env := newTestEnv(t)
	conn := newFakeConn("10.0.0.1")
	env.hub.TrackConnect(conn.RemoteIP())
	s := newSession(env.srv, conn)
	env.hub.register(s)

	done := make(chan struct{})
	go func() {
		s.run()
		close(done)
	}()

	conn.in <- []byte("{\"type\":\"A\"}\n{\"type\":\"B\"}\n")
	conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to end after the transport closed")
	}
	if env.hub.Count() != 0 {
		t.Errorf("expected session to be unregistered, got %d", env.hub.Count())
	}
}

func TestReadLoopRateLimitDisconnects(t *testing.T) {
	env := newTestEnv(t)
	env.srv.opts.MessagesPerSecond = 1
	env.srv.opts.MessageBurst = 2
	conn := newFakeConn("10.0.0.1")
	env.hub.TrackConnect(conn.RemoteIP())
	s := newSession(env.srv, conn)
	env.hub.register(s)

	go s.run()
	conn.in <- []byte("{\"type\":\"A\"}\n{\"type\":\"A\"}\n{\"type\":\"A\"}\n{\"type\":\"A\"}")

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected flood to close the session")
	}
}
