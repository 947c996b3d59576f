package hub

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/duetlabs/duet/internal/room"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, Config{})
}

func create(t *testing.T, h *Hub, hostID string) Session {
	t.Helper()
	reply := make(chan SessionResult, 1)
	h.Inbox() <- CreateSession{HostID: hostID, Reply: reply}
	res := <-reply
	if res.Err != nil {
		t.Fatalf("create session: %v", res.Err)
	}
	return res.Session
}

func redeem(h *Hub, code, guestID string) SessionResult {
	reply := make(chan SessionResult, 1)
	h.Inbox() <- RedeemCode{Code: code, GuestID: guestID, GuestName: guestID, Reply: reply}
	return <-reply
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestCreateSession_CodeShapeAndWrongCodeRejected(t *testing.T) {
	h := newTestHub(t)
	s := create(t, h, "u-host")

	if !codePattern.MatchString(s.InviteCode) {
		t.Fatalf("invite code %q does not match charset/length", s.InviteCode)
	}
	if !s.Active || s.HostID != "u-host" || s.GuestID != "" {
		t.Fatalf("unexpected new session: %+v", s)
	}

	if res := redeem(h, "NOPE42", "u-guest"); !errors.Is(res.Err, ErrNotFound) {
		t.Fatalf("want ErrNotFound for wrong code, got %v", res.Err)
	}
}

func TestRedeem_BindsGuestExactlyOnce(t *testing.T) {
	h := newTestHub(t)
	s := create(t, h, "u-host")

	res := redeem(h, s.InviteCode, "u-guest")
	if res.Err != nil || res.Session.GuestID != "u-guest" {
		t.Fatalf("want guest bound, got %+v / %v", res.Session, res.Err)
	}

	if res := redeem(h, s.InviteCode, "u-third"); !errors.Is(res.Err, ErrAlreadyFull) {
		t.Fatalf("want ErrAlreadyFull for third party, got %v", res.Err)
	}
}

func TestRedeem_HostReRedeemIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	s := create(t, h, "u-host")

	first := redeem(h, s.InviteCode, "u-host")
	second := redeem(h, s.InviteCode, "u-host")
	if first.Err != nil || second.Err != nil {
		t.Fatalf("host re-redeem must not fail: %v / %v", first.Err, second.Err)
	}
	if first.Session != s || second.Session != s {
		t.Fatalf("host re-redeem must return the session unchanged:\n %+v\n %+v\n %+v", s, first.Session, second.Session)
	}
}

func TestRedeem_NotifiesHostPersonalChannel(t *testing.T) {
	h := newTestHub(t)
	s := create(t, h, "u-host")

	// Host is online but has not bound to the session room yet.
	c := room.NewConn("c1", "u-host")
	h.Inbox() <- RegisterPresence{Conn: c}

	if res := redeem(h, s.InviteCode, "u-guest"); res.Err != nil {
		t.Fatalf("redeem: %v", res.Err)
	}

	select {
	case ev := <-c.Outbox:
		joined, ok := ev.(room.PartnerJoined)
		if !ok || joined.ParticipantID != "u-guest" {
			t.Fatalf("want PartnerJoined{u-guest}, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for PartnerJoined")
	}
}

func TestGetSessionAndRoom(t *testing.T) {
	h := newTestHub(t)
	s := create(t, h, "u-host")

	reply := make(chan SessionResult, 1)
	h.Inbox() <- GetSession{ID: s.ID, Reply: reply}
	if res := <-reply; res.Err != nil || res.Session != s {
		t.Fatalf("want %+v, got %+v / %v", s, res.Session, res.Err)
	}

	h.Inbox() <- GetSession{ID: "missing", Reply: reply}
	if res := <-reply; !errors.Is(res.Err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", res.Err)
	}

	roomReply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{SessionID: s.ID, Reply: roomReply}
	if rm := <-roomReply; rm == nil {
		t.Fatalf("session should have a live room")
	}

	h.Inbox() <- GetRoom{SessionID: "missing", Reply: roomReply}
	if rm := <-roomReply; rm != nil {
		t.Fatalf("unknown session must have no room")
	}
}

func TestSweep_ReclaimsIdleSessionAndFreesCode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := New(ctx, Config{IdleTimeout: time.Nanosecond, SweepEvery: 10 * time.Millisecond})

	s := create(t, h, "u-host")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		reply := make(chan SessionResult, 1)
		h.Inbox() <- GetSession{ID: s.ID, Reply: reply}
		res := <-reply
		if errors.Is(res.Err, ErrNotFound) {
			// Reclaimed: registry entry gone, code redeemable by nobody.
			if r := redeem(h, s.InviteCode, "u-guest"); !errors.Is(r.Err, ErrNotFound) {
				t.Fatalf("want ErrNotFound after reclaim, got %v", r.Err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("idle session was never reclaimed")
}
