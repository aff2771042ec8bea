package cryptoutil_test

import (
	"bytes"
	"testing"

	"github.com/goatee-collab/goatee/cryptoutil"
)

func TestKeygenRoundTrip(t *testing.T) {
	kp, err := cryptoutil.Keygen(1024)
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}
	n, k := kp.PublicParams()

	plaintext := []byte("hunter2")
	ct, err := cryptoutil.Encrypt(n, k, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := kp.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("Decrypt() = %q, want %q", pt, plaintext)
	}
}

func TestChallengeHashDeterministic(t *testing.T) {
	h1 := cryptoutil.ChallengeHash("tok123", "pw")
	h2 := cryptoutil.ChallengeHash("tok123", "pw")
	if h1 != h2 {
		t.Fatalf("ChallengeHash not deterministic: %q != %q", h1, h2)
	}
	if h3 := cryptoutil.ChallengeHash("tok123", "other"); h3 == h1 {
		t.Fatalf("ChallengeHash collided across different passwords")
	}
}

func TestSHA1HexMatchesKnownVector(t *testing.T) {
	// SHA1("") is a well-known test vector.
	got := cryptoutil.SHA1Hex([]byte(""))
	want := "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	if got != want {
		t.Fatalf("SHA1Hex(\"\") = %q, want %q", got, want)
	}
}
