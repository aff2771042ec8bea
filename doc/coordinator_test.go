package doc_test

import (
	"errors"
	"testing"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/jupiter"
	"github.com/goatee-collab/goatee/session"
)

func uid(n uint32) content.UserID { return content.UserID(n) }

// serverClientPair wires one server Coordinator and one client Coordinator
// through Hooks, mimicking the wire protocol with direct Go calls.
type serverClientPair struct {
	t      *testing.T
	server *doc.Coordinator
	client *doc.Coordinator
}

func newPair(t *testing.T, privs func(content.UserID) session.Priv) *serverClientPair {
	t.Helper()
	p := &serverClientPair{t: t}

	p.server = doc.NewServer(1, nil, "notes", 1, "utf-8", content.New("hello", nil), privs, doc.Hooks{
		SendRecord: func(to content.UserID, rec jupiter.Record) {
			if err := p.client.HandleServerRecord(rec); err != nil {
				t.Fatalf("client HandleServerRecord: %v", err)
			}
		},
		SendSyncInit: func(to content.UserID, n int) { p.client.HandleSyncInit(n) },
		SendSyncChunk: func(to content.UserID, ch content.Chunk) {
			if err := p.client.HandleSyncChunk(ch.Text, ch.Author); err != nil {
				t.Fatalf("client HandleSyncChunk: %v", err)
			}
		},
		SendSyncFinal: func(to content.UserID) {
			if err := p.client.HandleSyncFinal(); err != nil {
				t.Fatalf("client HandleSyncFinal: %v", err)
			}
		},
	})

	p.client = doc.NewClient(1, "notes", 1, "utf-8", doc.Hooks{
		SendRecord: func(to content.UserID, rec jupiter.Record) {
			if err := p.server.HandleIncomingRecord(uid(2), rec); err != nil {
				t.Fatalf("server HandleIncomingRecord: %v", err)
			}
		},
	})
	return p
}

func TestSubscribeStreamsContentAndConverges(t *testing.T) {
	p := newPair(t, func(content.UserID) session.Priv { return session.PrivAll })
	if err := p.server.Subscribe(uid(2)); err != nil {
		t.Fatalf("server Subscribe: %v", err)
	}
	if got, want := p.client.Text(), "hello"; got != want {
		t.Fatalf("client Text() = %q, want %q", got, want)
	}
	if p.client.State() != doc.Subscribed {
		t.Fatalf("client state = %v, want Subscribed", p.client.State())
	}
}

func TestEditRoutingConverges(t *testing.T) {
	p := newPair(t, func(content.UserID) session.Priv { return session.PrivAll })
	if err := p.server.Subscribe(uid(2)); err != nil {
		t.Fatal(err)
	}
	if err := p.client.Insert(0, "X", uid(2)); err != nil {
		t.Fatalf("client Insert: %v", err)
	}
	if got, want := p.server.Text(), "Xhello"; got != want {
		t.Fatalf("server Text() = %q, want %q", got, want)
	}
	if got, want := p.client.Text(), "Xhello"; got != want {
		t.Fatalf("client Text() = %q, want %q", got, want)
	}
}

func TestServerEditFansOutToSubscriber(t *testing.T) {
	p := newPair(t, func(content.UserID) session.Priv { return session.PrivAll })
	if err := p.server.Subscribe(uid(2)); err != nil {
		t.Fatal(err)
	}
	if err := p.server.Insert(0, "Z", content.ServerUserID); err != nil {
		t.Fatalf("server Insert: %v", err)
	}
	if got, want := p.client.Text(), "Zhello"; got != want {
		t.Fatalf("client Text() = %q, want %q", got, want)
	}
}

func TestEditDeniedWithoutModifyPrivilege(t *testing.T) {
	privs := func(u content.UserID) session.Priv {
		if u == uid(2) {
			return session.PrivSubscribe // no PrivModify
		}
		return session.PrivAll
	}
	p := newPair(t, privs)
	if err := p.server.Subscribe(uid(2)); err != nil {
		t.Fatal(err)
	}
	err := p.server.HandleIncomingRecord(uid(2), jupiter.Record{})
	if !errors.Is(err, doc.ErrPrivilegeDenied) {
		t.Fatalf("HandleIncomingRecord error = %v, want ErrPrivilegeDenied", err)
	}
}

func TestSubscribeDeniedWithoutPrivilege(t *testing.T) {
	privs := func(content.UserID) session.Priv { return session.PrivNone }
	p := newPair(t, privs)
	err := p.server.Subscribe(uid(2))
	if !errors.Is(err, doc.ErrPrivilegeDenied) {
		t.Fatalf("Subscribe error = %v, want ErrPrivilegeDenied", err)
	}
}

func TestRenamePicksSmallestFreeSuffix(t *testing.T) {
	p := newPair(t, func(content.UserID) session.Priv { return session.PrivAll })
	existing := []doc.Info{
		{ID: 1, Title: "notes", Suffix: 1},
		{ID: 2, Title: "notes", Suffix: 2},
	}
	findFree := func(title string, exceptID uint32) uint32 {
		return doc.FindFreeSuffix(existing, title, exceptID)
	}
	var renamedTo string
	var renamedSuffix uint32
	p.server = doc.NewServer(1, nil, "notes", 1, "utf-8", content.New("hello", nil),
		func(content.UserID) session.Priv { return session.PrivAll },
		doc.Hooks{Renamed: func(title string, suffix uint32) {
			renamedTo, renamedSuffix = title, suffix
		}})

	if err := p.server.Rename("notes", findFree, uid(1)); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	// Document 1 keeps its own suffix: only document 2's suffix 2 is taken.
	if renamedTo != "notes" || renamedSuffix != 1 {
		t.Fatalf("got rename (%q, %d), want (\"notes\", 1)", renamedTo, renamedSuffix)
	}
}

func TestRenameDeniedWithoutPrivilege(t *testing.T) {
	privs := func(content.UserID) session.Priv { return session.PrivSubscribe | session.PrivModify }
	srv := doc.NewServer(1, nil, "notes", 1, "utf-8", content.New("hello", nil), privs, doc.Hooks{})
	err := srv.Rename("new-title", func(string, uint32) uint32 { return 1 }, uid(1))
	if !errors.Is(err, doc.ErrPrivilegeDenied) {
		t.Fatalf("Rename error = %v, want ErrPrivilegeDenied", err)
	}
}

func TestUnsubscribeDropsSite(t *testing.T) {
	p := newPair(t, func(content.UserID) session.Priv { return session.PrivAll })
	if err := p.server.Subscribe(uid(2)); err != nil {
		t.Fatal(err)
	}
	if err := p.server.Unsubscribe(uid(2)); err != nil {
		t.Fatalf("server Unsubscribe: %v", err)
	}
	if p.server.SubStateOf(uid(2)) != doc.Unsubscribed {
		t.Fatalf("subscriber state = %v, want Unsubscribed", p.server.SubStateOf(uid(2)))
	}
	err := p.server.Insert(0, "x", uid(2))
	if !errors.Is(err, doc.ErrNoSite) {
		t.Fatalf("Insert after unsubscribe error = %v, want ErrNoSite", err)
	}
}
