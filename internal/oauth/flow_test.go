package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"social-campaign-engine/internal/models"
	"social-campaign-engine/internal/platform"
	"social-campaign-engine/internal/token"
)

type fakeConnStore struct {
	upserts []models.SocialConnection
	updates int
}

func (f *fakeConnStore) UpsertConnection(_ context.Context, conn models.SocialConnection) (models.SocialConnection, error) {
	f.upserts = append(f.upserts, conn)
	conn.ID = "conn-1"
	return conn, nil
}

func (f *fakeConnStore) UpdateConnectionTokens(context.Context, string, string, *string, *time.Time) error {
	f.updates++
	return nil
}

func newTestFlow(t *testing.T, apiBaseURL string) (*Flow, *fakeConnStore, SessionStore) {
	t.Helper()
	client := platform.NewClient(platform.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example.com/callback",
		AuthURL:      "https://platform.example.com/authorize",
		APIBaseURL:   apiBaseURL,
	})
	sessions := NewMemoryStore(SessionTTL)
	conns := &fakeConnStore{}
	flow := NewFlow("x", client, sessions, token.NewSigner("test-secret"), conns, "https://frontend.example.com", log.Default())
	return flow, conns, sessions
}

func TestConnectBuildsAuthorizationURL(t *testing.T) {
	flow, _, _ := newTestFlow(t, "https://api.example.com")

	authURL, err := flow.Connect(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := u.Query()
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q", q.Get("response_type"))
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q", q.Get("code_challenge_method"))
	}
	if q.Get("code_challenge") == "" {
		t.Error("missing code_challenge")
	}
	if !strings.Contains(q.Get("scope"), "offline.access") {
		t.Errorf("scope %q lacks offline.access", q.Get("scope"))
	}
	if q.Get("state") == "" {
		t.Error("missing state")
	}
}

func TestConnectRejectsAnonymousUser(t *testing.T) {
	flow, _, _ := newTestFlow(t, "https://api.example.com")
	if _, err := flow.Connect(context.Background(), ""); err != models.ErrUnauthorized {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestConnectRequiresCredentials(t *testing.T) {
	client := platform.NewClient(platform.Config{})
	flow := NewFlow("x", client, NewMemoryStore(SessionTTL), token.NewSigner("s"), &fakeConnStore{}, "https://frontend.example.com", log.Default())

	_, err := flow.Connect(context.Background(), "user-1")
	var cfgErr *models.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestCallbackErrorRedirects(t *testing.T) {
	flow, _, _ := newTestFlow(t, "https://api.example.com")
	ctx := context.Background()

	cases := []struct {
		name        string
		code, state string
		wantCode    string
	}{
		{"missing code", "", "some-state", ErrCodeMissingParams},
		{"missing state", "auth-code", "", ErrCodeMissingParams},
		{"garbage state", "auth-code", "not-a-valid-state", ErrCodeInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc := flow.Callback(ctx, tc.code, tc.state)
			want := "https://frontend.example.com/app/schedule?error=" + tc.wantCode
			if loc != want {
				t.Fatalf("redirect = %q, want %q", loc, want)
			}
		})
	}
}

func TestCallbackMissingSessionRedirectsExpired(t *testing.T) {
	flow, _, _ := newTestFlow(t, "https://api.example.com")

	// Valid signed state whose session was never stored (or already swept).
	state, _ := token.NewSigner("test-secret").GenerateState("user-1")
	loc := flow.Callback(context.Background(), "auth-code", state)
	if !strings.HasSuffix(loc, "?error="+ErrCodeSessionExpired) {
		t.Fatalf("redirect = %q, want session_expired", loc)
	}
}

func TestCallbackExchangeFailureRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	flow, conns, _ := newTestFlow(t, srv.URL)
	authURL, err := flow.Connect(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	state := queryParam(t, authURL, "state")

	loc := flow.Callback(context.Background(), "bad-code", state)
	if !strings.HasSuffix(loc, "?error="+ErrCodeCallbackFailed) {
		t.Fatalf("redirect = %q, want callback_failed", loc)
	}
	if len(conns.upserts) != 0 {
		t.Fatal("failed callback must not persist a connection")
	}
}

func TestCallbackSuccessUpsertsConnection(t *testing.T) {
	var gotVerifier string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/oauth2/token":
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			gotVerifier = r.PostFormValue("code_verifier")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"expires_in":    7200,
			})
		case "/2/users/me":
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]string{"id": "px-42", "username": "acct"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	flow, conns, _ := newTestFlow(t, srv.URL)
	authURL, err := flow.Connect(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	state := queryParam(t, authURL, "state")

	loc := flow.Callback(context.Background(), "auth-code", state)
	if loc != "https://frontend.example.com/app/schedule?connected=true" {
		t.Fatalf("redirect = %q", loc)
	}

	if gotVerifier == "" {
		t.Fatal("code exchange did not carry the PKCE verifier")
	}
	if len(conns.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(conns.upserts))
	}
	conn := conns.upserts[0]
	if conn.UserID != "user-1" || conn.Platform != "x" || conn.PlatformUserID != "px-42" || conn.Username != "acct" {
		t.Fatalf("unexpected connection: %+v", conn)
	}
	if conn.AccessToken != "access-1" || conn.RefreshToken == nil || *conn.RefreshToken != "refresh-1" {
		t.Fatalf("tokens not captured: %+v", conn)
	}
	if conn.TokenExpiry == nil {
		t.Fatal("expires_in should set a token expiry")
	}
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/oauth2/token":
			json.NewEncoder(w).Encode(map[string]any{"access_token": "access-1"})
		case "/2/users/me":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "px", "username": "acct"}})
		}
	}))
	defer srv.Close()

	flow, _, _ := newTestFlow(t, srv.URL)
	authURL, err := flow.Connect(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	state := queryParam(t, authURL, "state")

	if loc := flow.Callback(context.Background(), "auth-code", state); !strings.Contains(loc, "connected=true") {
		t.Fatalf("first callback failed: %q", loc)
	}
	if loc := flow.Callback(context.Background(), "auth-code", state); !strings.HasSuffix(loc, "?error="+ErrCodeSessionExpired) {
		t.Fatalf("replayed callback = %q, want session_expired", loc)
	}
}

func queryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.Query().Get(key)
}
