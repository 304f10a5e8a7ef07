package gateway

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ETC11111/app-serial-sub001/internal/auth"
)

func TestRegistry_RegisterSendsAck(t *testing.T) {
	r := NewRegistry(nil)
	sock := newFakeSocket()

	c := r.Register(sock)

	if _, err := uuid.Parse(c.ID()); err != nil {
		t.Errorf("client id %q is not a UUID: %v", c.ID(), err)
	}
	if len(c.Filters()) != 0 || c.Authenticated() {
		t.Error("new client should have no filter and no auth")
	}

	ack := sock.last(t)
	if ack["type"] != TypeConnection || ack["status"] != "connected" || ack["clientId"] != c.ID() {
		t.Errorf("ack = %v", ack)
	}
	if ts, _ := ack["timestamp"].(string); ts == "" {
		t.Error("ack missing timestamp")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistry_UnregisterStopsDelivery(t *testing.T) {
	r := NewRegistry(nil)
	sock := newFakeSocket()
	c := r.Register(sock)
	sock.reset()

	r.Unregister(c.ID())
	r.Unregister(c.ID())

	if sock.closed != 1 {
		t.Errorf("socket closed %d times, want 1", sock.closed)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}

	r.Send(c.ID(), PongMessage{Type: TypePong})
	r.Broadcast(PongMessage{Type: TypePong}, "")
	if _, open := c.deliver([]byte("{}")); open {
		t.Error("removed client still accepts writes")
	}
	if n := len(sock.messages(t)); n != 0 {
		t.Errorf("removed client received %d messages", n)
	}
}

func TestRegistry_BroadcastFilter(t *testing.T) {
	r := NewRegistry(nil)

	all := newFakeSocket()
	gh1 := newFakeSocket()
	gh2 := newFakeSocket()
	r.Register(all)
	c1 := r.Register(gh1)
	c2 := r.Register(gh2)
	r.SetFilter(c1.ID(), []string{"gh-01"})
	r.SetFilter(c2.ID(), []string{"gh-02", "gh-03"})
	for _, s := range []*fakeSocket{all, gh1, gh2} {
		s.reset()
	}

	tests := []struct {
		device string
		want   int
	}{
		{"gh-01", 2},
		{"gh-03", 2},
		{"gh-99", 1},
		{"", 3},
	}
	for _, tt := range tests {
		if got := r.Broadcast(PongMessage{Type: TypePong}, tt.device); got != tt.want {
			t.Errorf("Broadcast(%q) reached %d clients, want %d", tt.device, got, tt.want)
		}
	}

	if n := len(gh1.messages(t)); n != 2 {
		t.Errorf("gh-01 subscriber got %d messages, want 2", n)
	}
	if n := len(all.messages(t)); n != 4 {
		t.Errorf("unfiltered client got %d messages, want 4", n)
	}
}

func TestRegistry_SetFilterReplaces(t *testing.T) {
	r := NewRegistry(nil)
	c := r.Register(newFakeSocket())

	r.SetFilter(c.ID(), []string{"a", "b"})
	r.SetFilter(c.ID(), []string{"c"})

	got := c.Filters()
	if len(got) != 1 || got[0] != "c" {
		t.Errorf("Filters() = %v, want [c]", got)
	}
	if r.SetFilter("missing", nil) {
		t.Error("SetFilter on unknown client returned true")
	}
}

func TestRegistry_FullBufferDrops(t *testing.T) {
	r := NewRegistry(nil)
	sock := newFakeSocket()
	sock.capacity = 2
	r.Register(sock)

	if got := r.Broadcast(PongMessage{Type: TypePong}, ""); got != 1 {
		t.Fatalf("first broadcast reached %d, want 1", got)
	}
	if got := r.Broadcast(PongMessage{Type: TypePong}, ""); got != 0 {
		t.Errorf("broadcast to a full client reached %d, want 0", got)
	}
	if r.Count() != 1 {
		t.Error("a slow client should stay registered")
	}
}

func TestRegistry_RequireAuthSkipsAnonymous(t *testing.T) {
	r := NewRegistry(nil)
	r.SetRequireAuth(true)

	anon := r.Register(newFakeSocket())
	authed := r.Register(newFakeSocket())
	r.SetAuth(authed.ID(), auth.UserInfo{ID: "usr-1"})

	if got := r.Broadcast(PongMessage{Type: TypePong}, "gh-01"); got != 1 {
		t.Errorf("Broadcast reached %d clients, want 1", got)
	}
	if anon.Authenticated() {
		t.Error("anonymous client reports authenticated")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Register(newFakeSocket())
	b := r.Register(newFakeSocket())
	r.SetAuth(b.ID(), auth.UserInfo{ID: "usr-7", Name: "Ops"})
	r.SetFilter(a.ID(), []string{"gh-02", "gh-01"})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}
	byID := map[string]ClientInfo{}
	for _, ci := range snap {
		byID[ci.ID] = ci
	}
	if f := byID[a.ID()].Filters; len(f) != 2 || f[0] != "gh-01" {
		t.Errorf("filters = %v, want sorted [gh-01 gh-02]", f)
	}
	if !byID[b.ID()].Authenticated || byID[b.ID()].UserID != "usr-7" {
		t.Errorf("auth info = %+v", byID[b.ID()])
	}

	r.CloseAll()
	if r.Count() != 0 {
		t.Errorf("Count() after CloseAll = %d", r.Count())
	}
}
