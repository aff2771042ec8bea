package session_test

import (
	"testing"

	"github.com/goatee-collab/goatee/session"
)

func TestLoginAllocatesStableID(t *testing.T) {
	r := session.New()
	u, err := r.Login("alice", session.Color{R: 1, G: 2, B: 3}, "tok1", "")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID == 0 {
		t.Fatal("expected nonzero id")
	}
	first := u.ID

	if err := r.Disconnect(first); err != nil {
		t.Fatal(err)
	}
	u2, err := r.Login("alice", session.Color{R: 9, G: 9, B: 9}, "tok2", "")
	if err != nil {
		t.Fatal(err)
	}
	if u2.ID != first {
		t.Fatalf("rebind should keep id %d, got %d", first, u2.ID)
	}
	if !u2.Connected() {
		t.Fatal("expected reconnected user to be CONNECTED")
	}
	if u2.Color.R != 9 {
		t.Fatalf("expected updated color, got %+v", u2.Color)
	}
}

func TestColorInUse(t *testing.T) {
	r := session.New()
	c := session.Color{R: 1, G: 2, B: 3}
	alice, _ := r.Login("alice", c, "t1", "")
	if !r.ColorInUse(c, 0) {
		t.Fatal("expected color in use")
	}
	if r.ColorInUse(c, alice.ID) {
		t.Fatal("color should not be 'in use' when excepting its own owner")
	}
	if err := r.Disconnect(alice.ID); err != nil {
		t.Fatal(err)
	}
	if r.ColorInUse(c, 0) {
		t.Fatal("color should be free once the owner disconnects")
	}
}

func TestDisconnectRetainsRow(t *testing.T) {
	r := session.New()
	u, _ := r.Login("bob", session.Color{}, "t", "")
	if err := r.Disconnect(u.ID); err != nil {
		t.Fatal(err)
	}
	got, ok := r.ByID(u.ID)
	if !ok {
		t.Fatal("expected row to survive disconnect")
	}
	if got.Connected() {
		t.Fatal("expected CONNECTED cleared")
	}
}

func TestPrivilegesDefaultAndGrant(t *testing.T) {
	r := session.New()
	u, _ := r.Login("carol", session.Color{}, "t", "")
	if got := r.Privileges(u.ID); got != session.PrivDefault {
		t.Fatalf("got %v, want default", got)
	}
	r.Grant(u.ID, session.PrivAll)
	if got := r.Privileges(u.ID); !got.Has(session.PrivAdmin) {
		t.Fatalf("expected ADMIN after grant, got %v", got)
	}
}

func TestRebindFromPersistedRow(t *testing.T) {
	r := session.New()
	r.Rebind(session.User{ID: 42, Name: "dave", Color: session.Color{R: 5}})
	u, err := r.Login("dave", session.Color{R: 6}, "tok", "")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != 42 {
		t.Fatalf("expected rebind to reuse persisted id 42, got %d", u.ID)
	}
	// Next fresh user must not collide with the persisted id space.
	fresh, _ := r.Login("erin", session.Color{}, "t2", "")
	if fresh.ID == 42 {
		t.Fatalf("fresh id collided with persisted id")
	}
}
