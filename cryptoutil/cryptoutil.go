// Package cryptoutil implements the login handshake's crypto collaborator:
// {keygen(bits), encrypt(key, bytes), decrypt(key, bytes), sha1(bytes)},
// exactly the external interface named in the design notes. It is the one
// component with no third-party analogue anywhere in the reference pack (see
// DESIGN.md), so it is built directly on crypto/rsa, crypto/sha1, and
// crypto/rand.
package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"fmt"
	"math/big"
)

// KeyPair is a session's asymmetric password channel, used once per
// connection for the login handshake's user_password step.
type KeyPair struct {
	priv *rsa.PrivateKey
}

// Keygen generates a fresh RSA key pair of the given modulus size.
func Keygen(bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: keygen: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// PublicParams returns the modulus (n) and public exponent (k), the values
// sent to the client in the welcome packet's rsa_n/rsa_k fields, both
// base36 per §6 ("rsa_n:str(base36), rsa_k:str(base36)").
func (kp *KeyPair) PublicParams() (n, k string) {
	return kp.priv.N.Text(36), big.NewInt(int64(kp.priv.E)).Text(36)
}

// Decrypt reverses a client's RSA-encrypted user_password payload.
func (kp *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptPKCS1v15(rand.Reader, kp.priv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decrypt: %w", err)
	}
	return pt, nil
}

// Encrypt encrypts plaintext against a peer's public key, used by a client
// to produce the user_password payload the server above decrypts.
func Encrypt(n string, k string, plaintext []byte) ([]byte, error) {
	pub, err := publicKey(n, k)
	if err != nil {
		return nil, err
	}
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: encrypt: %w", err)
	}
	return ct, nil
}

func publicKey(n, k string) (*rsa.PublicKey, error) {
	mod, ok := new(big.Int).SetString(n, 36)
	if !ok {
		return nil, fmt.Errorf("cryptoutil: parse rsa_n: invalid base36 value %q", n)
	}
	exp, ok := new(big.Int).SetString(k, 36)
	if !ok {
		return nil, fmt.Errorf("cryptoutil: parse rsa_k: invalid base36 value %q", k)
	}
	return &rsa.PublicKey{N: mod, E: int(exp.Int64())}, nil
}

// SHA1 hashes data, the primitive behind the login challenge's
// SHA1(token||password) construction (spec §8 scenario S6).
func SHA1(data []byte) []byte {
	sum := sha1.Sum(data)
	return sum[:]
}

// SHA1Hex is SHA1 rendered as a hex string, the form carried in login
// packets' *_pw_hash fields.
func SHA1Hex(data []byte) string {
	return fmt.Sprintf("%x", SHA1(data))
}

// ChallengeHash computes the hash a client must present for a given token
// and password, per the login handshake: SHA1(token || password).
func ChallengeHash(token, password string) string {
	return SHA1Hex([]byte(token + password))
}
