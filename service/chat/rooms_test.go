package chat

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestConn(userID string) *WsConn {
	return &WsConn{
		ConnID:  uuid.NewString(),
		UserID:  userID,
		Send:    make(chan []byte, 8),
		closeCh: make(chan struct{}),
	}
}

func newTestHub() *RoomHub {
	return NewRoomHub(NewFanout(1, 16))
}

func recvPayload(t *testing.T, c *WsConn) []byte {
	t.Helper()
	select {
	case p := <-c.Send:
		return p
	case <-time.After(time.Second):
		t.Fatal("no payload delivered")
		return nil
	}
}

func TestJoinLeavesPreviousRoom(t *testing.T) {
	h := newTestHub()
	c := newTestConn("u1")
	h.Attach(c)

	h.Join("conv-a", c)
	h.Join("conv-b", c)

	if room, _ := h.Room(c.ConnID); room != "conv-b" {
		t.Fatalf("room = %s, want conv-b", room)
	}
	if members := h.Members("conv-a"); len(members) != 0 {
		t.Fatalf("conv-a still has %d members after switch", len(members))
	}
	if members := h.Members("conv-b"); len(members) != 1 {
		t.Fatalf("conv-b has %d members, want 1", len(members))
	}
}

func TestJoinRequiresAttachedConn(t *testing.T) {
	h := newTestHub()
	c := newTestConn("u1")

	h.Join("conv-a", c)
	if members := h.Members("conv-a"); len(members) != 0 {
		t.Fatal("unattached connection must not join rooms")
	}
}

func TestBroadcastLocalEmptyRoomIsNoop(t *testing.T) {
	h := newTestHub()
	if n := h.BroadcastLocal("nobody-here", []byte("x")); n != 0 {
		t.Fatalf("empty room broadcast reported %d members", n)
	}
}

func TestBroadcastLocalDeliversToRoomOnly(t *testing.T) {
	h := newTestHub()
	in := newTestConn("u1")
	out := newTestConn("u2")
	h.Attach(in)
	h.Attach(out)
	h.Join("conv-a", in)
	h.Join("conv-b", out)

	payload := []byte(`{"type":"receive_message"}`)
	if n := h.BroadcastLocal("conv-a", payload); n != 1 {
		t.Fatalf("broadcast reached %d members, want 1", n)
	}
	if got := recvPayload(t, in); string(got) != string(payload) {
		t.Fatalf("member got %q", got)
	}
	select {
	case p := <-out.Send:
		t.Fatalf("other room received %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAttachReplacesOlderSocket(t *testing.T) {
	h := newTestHub()
	old := newTestConn("u1")
	h.Attach(old)
	h.Join("conv-a", old)

	fresh := newTestConn("u1")
	h.Attach(fresh)

	select {
	case <-old.Closed():
	case <-time.After(time.Second):
		t.Fatal("replaced socket was not closed")
	}
	if members := h.Members("conv-a"); len(members) != 0 {
		t.Fatal("replaced socket still in its room")
	}

	h.Join("conv-a", fresh)
	if members := h.Members("conv-a"); len(members) != 1 || members[0].ConnID != fresh.ConnID {
		t.Fatalf("fresh socket missing from room: %v", members)
	}
}

func TestDetachLeavesRoom(t *testing.T) {
	h := newTestHub()
	c := newTestConn("u1")
	h.Attach(c)
	h.Join("conv-a", c)

	h.Detach(c)
	if _, ok := h.Room(c.ConnID); ok {
		t.Fatal("detached conn still mapped to a room")
	}
	if n := h.BroadcastLocal("conv-a", []byte("x")); n != 0 {
		t.Fatalf("broadcast after detach reached %d members", n)
	}
}
