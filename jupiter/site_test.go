package jupiter_test

import (
	"testing"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/jupiter"
	"github.com/goatee-collab/goatee/ot"
)

func uid(n uint32) content.UserID { return content.UserID(n) }

// twoSites simulates the star topology's client<->server pair: a server
// Site (side=Left) and a client Site (side=Right) sharing one logical
// document. Each LocalOp's record stays in flight until deliver feeds it to
// the other side's RemoteOp, so edits made between deliveries are concurrent.
type twoSites struct {
	t        *testing.T
	server   *jupiter.Site
	client   *jupiter.Site
	serverC  *content.Content
	clientC  *content.Content
	toServer []jupiter.Record
	toClient []jupiter.Record
}

func newTwoSites(t *testing.T, initial string) *twoSites {
	t.Helper()
	ts := &twoSites{t: t}
	ts.serverC = content.New(initial, nil)
	ts.clientC = content.New(initial, nil)
	ts.server = jupiter.New(ts.serverC, ot.Left, func(r jupiter.Record) {
		ts.toClient = append(ts.toClient, r)
	})
	ts.client = jupiter.New(ts.clientC, ot.Right, func(r jupiter.Record) {
		ts.toServer = append(ts.toServer, r)
	})
	return ts
}

// deliver hands every in-flight record to the receiving side's RemoteOp.
func (ts *twoSites) deliver() {
	ts.t.Helper()
	for _, r := range ts.toServer {
		if _, err := ts.server.RemoteOp(r); err != nil {
			ts.t.Fatalf("server remote_op: %v", err)
		}
	}
	for _, r := range ts.toClient {
		if _, err := ts.client.RemoteOp(r); err != nil {
			ts.t.Fatalf("client remote_op: %v", err)
		}
	}
	ts.toServer, ts.toClient = nil, nil
}

func (ts *twoSites) clientEdit(op ot.Op, author content.UserID) {
	ts.t.Helper()
	if _, err := ts.client.LocalOp(op, author); err != nil {
		ts.t.Fatalf("client local_op: %v", err)
	}
}

func (ts *twoSites) serverEdit(op ot.Op, author content.UserID) {
	ts.t.Helper()
	if _, err := ts.server.LocalOp(op, author); err != nil {
		ts.t.Fatalf("server local_op: %v", err)
	}
}

func (ts *twoSites) assertConverged(want string) {
	ts.t.Helper()
	ts.deliver()
	if ts.serverC.Text() != want {
		ts.t.Fatalf("server content = %q, want %q", ts.serverC.Text(), want)
	}
	if ts.clientC.Text() != want {
		ts.t.Fatalf("client content = %q, want %q", ts.clientC.Text(), want)
	}
}

// S1: concurrent inserts at the same position. Neither side has seen the
// other's insert when making its own; at the server the client's insert is
// transformed as Right (losing the position tie), so it lands second.
func TestScenarioS1(t *testing.T) {
	ts := newTwoSites(t, "HELLO")
	ts.clientEdit(&ot.Insert{Pos: 0, Text: "Y"}, uid(2))
	ts.serverEdit(&ot.Insert{Pos: 0, Text: "X"}, uid(1))
	ts.assertConverged("XYHELLO")
}

func TestScenarioS2(t *testing.T) {
	ts := newTwoSites(t, "ABCDEF")
	ts.clientEdit(&ot.Insert{Pos: 2, Text: "z"}, uid(2))
	ts.serverEdit(&ot.Delete{Pos: 1, Len: 3}, uid(1))
	ts.assertConverged("AzEF")
}

func TestScenarioS3(t *testing.T) {
	ts := newTwoSites(t, "ABCDEF")
	ts.clientEdit(&ot.Insert{Pos: 3, Text: "x"}, uid(2))
	ts.serverEdit(&ot.Delete{Pos: 2, Len: 2}, uid(1))
	ts.assertConverged("ABxEF")
}

func TestScenarioS4(t *testing.T) {
	ts := newTwoSites(t, "ABCDEFG")
	ts.clientEdit(&ot.Delete{Pos: 2, Len: 3}, uid(2))
	ts.serverEdit(&ot.Delete{Pos: 1, Len: 3}, uid(1))
	ts.assertConverged("AFG")
}

func TestDesynchronizedRejected(t *testing.T) {
	c := content.New("abc", nil)
	site := jupiter.New(c, ot.Left, nil)
	_, err := site.RemoteOp(jupiter.Record{
		Author: uid(1),
		Op:     &ot.Insert{Pos: 0, Text: "x"},
		SV:     jupiter.StateVector{LocalCount: 0, RemoteCount: 7},
	})
	if err == nil {
		t.Fatal("expected desynchronization error")
	}
}

// TP6: local_count never decreases; LocalOp records carry strictly
// increasing local_count.
func TestStateVectorMonotonicity(t *testing.T) {
	c := content.New("", nil)
	site := jupiter.New(c, ot.Left, nil)
	var last uint32
	for i := 0; i < 5; i++ {
		r, err := site.LocalOp(&ot.Insert{Pos: 0, Text: "x"}, uid(1))
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 && r.SV.LocalCount <= last {
			t.Fatalf("local_count did not increase: %d <= %d", r.SV.LocalCount, last)
		}
		last = r.SV.LocalCount
		if site.LocalCount() != uint32(i+1) {
			t.Fatalf("site.LocalCount() = %d, want %d", site.LocalCount(), i+1)
		}
	}
}

func TestQueueDrainsOnAck(t *testing.T) {
	ts := newTwoSites(t, "abc")
	ts.serverEdit(&ot.Insert{Pos: 0, Text: "1"}, uid(1))
	ts.serverEdit(&ot.Insert{Pos: 0, Text: "2"}, uid(1))
	if got := len(ts.server.Queue()); got != 2 {
		t.Fatalf("expected 2 unacknowledged records, got %d", got)
	}
	ts.deliver()
	// The client's next op carries remote_count=2, acknowledging both.
	ts.clientEdit(&ot.Insert{Pos: 0, Text: "3"}, uid(2))
	ts.deliver()
	if got := len(ts.server.Queue()); got != 0 {
		t.Fatalf("expected queue drained after ack, got %d", got)
	}
}
