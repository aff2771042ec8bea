package buffer_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goatee-collab/goatee/buffer"
	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/protocol"
)

// dialServer starts an httptest server fronting a fresh buffer.Server and
// returns a Client already dialed to it, in the manner of
// doc.serverClientPair but exercised over a real websocket instead of
// direct Go calls.
func dialServer(t *testing.T, srv *buffer.Server, hooks buffer.ClientHooks) (*httptest.Server, *buffer.Client) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	c, err := buffer.Dial(url, nil, hooks)
	require.NoError(t, err)
	return ts, c
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestLoginSucceedsAndAssignsSelfID(t *testing.T) {
	srv := buffer.NewServer(buffer.Config{})
	loggedIn := make(chan struct{})
	var self content.UserID
	_, c := dialServer(t, srv, buffer.ClientHooks{
		LoggedIn: func(id content.UserID) {
			self = id
			close(loggedIn)
		},
	})
	require.NoError(t, c.Login("alice", protocol.Color{R: 200, G: 10, B: 10}, "", ""))
	waitFor(t, loggedIn, "login to complete")
	require.NotZero(t, self)
}

func TestLoginRejectsColorInUse(t *testing.T) {
	srv := buffer.NewServer(buffer.Config{})
	aliceLoggedIn := make(chan struct{})
	_, alice := dialServer(t, srv, buffer.ClientHooks{
		LoggedIn: func(content.UserID) { close(aliceLoggedIn) },
	})
	require.NoError(t, alice.Login("alice", protocol.Color{R: 1, G: 2, B: 3}, "", ""))
	waitFor(t, aliceLoggedIn, "alice login")

	failed := make(chan string, 1)
	_, bob := dialServer(t, srv, buffer.ClientHooks{
		LoginFailed: func(reason string) { failed <- reason },
	})
	require.NoError(t, bob.Login("bob", protocol.Color{R: 1, G: 2, B: 3}, "", ""))

	select {
	case reason := <-failed:
		require.Equal(t, protocol.ReasonColorInUse, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for login_failed")
	}
}

func TestCreateDocumentBroadcastsToOtherClient(t *testing.T) {
	srv := buffer.NewServer(buffer.Config{})
	aliceLoggedIn := make(chan struct{})
	_, alice := dialServer(t, srv, buffer.ClientHooks{
		LoggedIn: func(content.UserID) { close(aliceLoggedIn) },
	})
	require.NoError(t, alice.Login("alice", protocol.Color{R: 10, G: 20, B: 30}, "", ""))
	waitFor(t, aliceLoggedIn, "alice login")

	bobLoggedIn := make(chan struct{})
	bobSawDoc := make(chan doc.Info, 1)
	_, bob := dialServer(t, srv, buffer.ClientHooks{
		LoggedIn: func(content.UserID) { close(bobLoggedIn) },
		DocumentListed: func(info doc.Info, _ *content.UserID) {
			bobSawDoc <- info
		},
	})
	require.NoError(t, bob.Login("bob", protocol.Color{R: 40, G: 50, B: 60}, "", ""))
	waitFor(t, bobLoggedIn, "bob login")

	require.NoError(t, alice.CreateDocument("notes", "utf-8", "hello"))
	select {
	case info := <-bobSawDoc:
		require.Equal(t, "notes", info.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for document_create broadcast")
	}
}

func TestSendMessageDeliversToOtherClient(t *testing.T) {
	srv := buffer.NewServer(buffer.Config{})
	aliceLoggedIn := make(chan struct{})
	_, alice := dialServer(t, srv, buffer.ClientHooks{
		LoggedIn: func(content.UserID) { close(aliceLoggedIn) },
	})
	require.NoError(t, alice.Login("alice", protocol.Color{R: 11, G: 22, B: 33}, "", ""))
	waitFor(t, aliceLoggedIn, "alice login")

	bobLoggedIn := make(chan struct{})
	received := make(chan string, 1)
	_, bob := dialServer(t, srv, buffer.ClientHooks{
		LoggedIn: func(content.UserID) { close(bobLoggedIn) },
		MessageArrived: func(_ *content.UserID, text string) {
			received <- text
		},
	})
	require.NoError(t, bob.Login("bob", protocol.Color{R: 44, G: 55, B: 66}, "", ""))
	waitFor(t, bobLoggedIn, "bob login")

	require.NoError(t, alice.SendMessage("hello bob"))
	select {
	case text := <-received:
		require.Equal(t, "hello bob", text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

// TestLateSubscribeStreamsExistingContentAndConverges drives spec.md's S5:
// a document already has content when a second client subscribes, and an
// edit issued by the late subscriber must fan back out to the original
// author.
func TestLateSubscribeStreamsExistingContentAndConverges(t *testing.T) {
	srv := buffer.NewServer(buffer.Config{})

	aliceLoggedIn := make(chan struct{})
	_, alice := dialServer(t, srv, buffer.ClientHooks{
		LoggedIn: func(content.UserID) { close(aliceLoggedIn) },
	})
	require.NoError(t, alice.Login("alice", protocol.Color{R: 9, G: 9, B: 9}, "", ""))
	waitFor(t, aliceLoggedIn, "alice login")
	require.NoError(t, alice.CreateDocument("notes", "utf-8", "HI"))

	bobLoggedIn := make(chan struct{})
	bobSawDoc := make(chan doc.Info, 1)
	_, bob := dialServer(t, srv, buffer.ClientHooks{
		LoggedIn:       func(content.UserID) { close(bobLoggedIn) },
		DocumentListed: func(info doc.Info, _ *content.UserID) { bobSawDoc <- info },
	})
	require.NoError(t, bob.Login("bob", protocol.Color{R: 90, G: 90, B: 90}, "", ""))
	waitFor(t, bobLoggedIn, "bob login")

	var info doc.Info
	select {
	case info = <-bobSawDoc:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for document_create broadcast")
	}

	bobDoc := bob.Document(info.ID)
	require.NotNil(t, bobDoc)
	require.NoError(t, bobDoc.Subscribe(bob.Self()))

	require.Eventually(t, func() bool {
		return bobDoc.State() == doc.Subscribed
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "HI", bobDoc.Text())

	require.NoError(t, bobDoc.Insert(2, "!", bob.Self()))

	require.Eventually(t, func() bool {
		aliceDoc := alice.Document(info.ID)
		return aliceDoc != nil && aliceDoc.Text() == "HI!"
	}, 2*time.Second, 10*time.Millisecond)
}
