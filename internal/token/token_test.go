package token

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestRandomStringDeterministicUnderInjectedEntropy(t *testing.T) {
	zeros := func(b []byte) error {
		for i := range b {
			b[i] = 0
		}
		return nil
	}
	if got := RandomString(5, zeros); got != "AAAAA" {
		t.Fatalf("expected AAAAA got %q", got)
	}
}

func TestRandomStringUsesAlphabetOnly(t *testing.T) {
	s := RandomString(256, nil)
	if len(s) != 256 {
		t.Fatalf("expected 256 chars got %d", len(s))
	}
	for _, c := range s {
		if !strings.ContainsRune(alphabet, c) {
			t.Fatalf("character %q outside alphabet", c)
		}
	}
}

func TestGeneratePKCE(t *testing.T) {
	pair := GeneratePKCE(nil)
	if len(pair.Verifier) != 64 {
		t.Fatalf("expected 64-char verifier got %d", len(pair.Verifier))
	}
	sum := sha256.Sum256([]byte(pair.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if pair.Challenge != want {
		t.Fatalf("challenge mismatch: got %s want %s", pair.Challenge, want)
	}
	if strings.ContainsAny(pair.Challenge, "=+/") {
		t.Fatalf("challenge not base64url without padding: %s", pair.Challenge)
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := NewSigner("secret")
	tok, id := s.GenerateState("user-123")

	st := s.VerifyState(tok)
	if st == nil {
		t.Fatalf("expected valid state")
	}
	if st.UserID != "user-123" {
		t.Fatalf("owner mismatch: %s", st.UserID)
	}
	if st.ID != id {
		t.Fatalf("id mismatch: %s vs %s", st.ID, id)
	}
}

func TestStateRejectsMutation(t *testing.T) {
	s := NewSigner("secret")
	tok, _ := s.GenerateState("user-123")

	for i := 0; i < len(tok); i++ {
		mutated := []byte(tok)
		if mutated[i] == 'x' {
			mutated[i] = 'y'
		} else {
			mutated[i] = 'x'
		}
		if got := s.VerifyState(string(mutated)); got != nil {
			t.Fatalf("mutation at %d accepted", i)
		}
	}
}

func TestStateRejectsMalformed(t *testing.T) {
	s := NewSigner("secret")
	for _, tok := range []string{"", "a:b", "a:b:c", "a:b:c:d:e", "a:b:notanumber:sig"} {
		if got := s.VerifyState(tok); got != nil {
			t.Fatalf("malformed token %q accepted", tok)
		}
	}
}

func TestStateExpires(t *testing.T) {
	now := time.Now()
	issuer := NewSignerWithClock("secret", func() time.Time { return now })
	tok, _ := issuer.GenerateState("user-123")

	later := NewSignerWithClock("secret", func() time.Time { return now.Add(StateTTL + time.Second) })
	if got := later.VerifyState(tok); got != nil {
		t.Fatalf("expired state accepted")
	}

	within := NewSignerWithClock("secret", func() time.Time { return now.Add(StateTTL - time.Second) })
	if got := within.VerifyState(tok); got == nil {
		t.Fatalf("unexpired state rejected")
	}
}

func TestStateRejectsWrongSecret(t *testing.T) {
	tok, _ := NewSigner("secret-a").GenerateState("user-123")
	if got := NewSigner("secret-b").VerifyState(tok); got != nil {
		t.Fatalf("state signed with other secret accepted")
	}
}
