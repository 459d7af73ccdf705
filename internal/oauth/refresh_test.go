package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"social-campaign-engine/internal/models"
	"social-campaign-engine/internal/platform"
)

func testClient(apiBaseURL string) *platform.Client {
	return platform.NewClient(platform.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example.com/callback",
		APIBaseURL:   apiBaseURL,
	})
}

func strPtr(s string) *string { return &s }

func TestEnsureValidTokenNoExpiryIsCheap(t *testing.T) {
	// No server: any network call would fail loudly.
	gate := NewRefreshGate(testClient("http://127.0.0.1:0"), &fakeConnStore{})

	conn := &models.SocialConnection{AccessToken: "current"}
	got, err := gate.EnsureValidToken(context.Background(), conn)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got != "current" {
		t.Fatalf("token = %q, want current", got)
	}
}

func TestEnsureValidTokenFarExpiryIsCheap(t *testing.T) {
	gate := NewRefreshGate(testClient("http://127.0.0.1:0"), &fakeConnStore{})

	expiry := time.Now().Add(time.Hour)
	conn := &models.SocialConnection{AccessToken: "current", TokenExpiry: &expiry}
	got, err := gate.EnsureValidToken(context.Background(), conn)
	if err != nil || got != "current" {
		t.Fatalf("got %q err %v, want cheap path", got, err)
	}
}

func TestEnsureValidTokenExpiredWithoutRefreshToken(t *testing.T) {
	gate := NewRefreshGate(testClient("http://127.0.0.1:0"), &fakeConnStore{})

	expiry := time.Now().Add(-time.Minute)
	conn := &models.SocialConnection{AccessToken: "stale", TokenExpiry: &expiry}
	if _, err := gate.EnsureValidToken(context.Background(), conn); !errors.Is(err, models.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestEnsureValidTokenRefreshesWithinWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/oauth2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if grant := r.PostFormValue("grant_type"); grant != "refresh_token" {
			t.Errorf("grant_type = %q", grant)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh",
			"refresh_token": "rotated",
			"expires_in":    7200,
		})
	}))
	defer srv.Close()

	conns := &fakeConnStore{}
	gate := NewRefreshGate(testClient(srv.URL), conns)

	// Two minutes out: inside the proactive refresh window.
	expiry := time.Now().Add(2 * time.Minute)
	conn := &models.SocialConnection{
		ID:           "conn-1",
		AccessToken:  "stale",
		RefreshToken: strPtr("refresh-1"),
		TokenExpiry:  &expiry,
	}

	got, err := gate.EnsureValidToken(context.Background(), conn)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got != "fresh" {
		t.Fatalf("token = %q, want fresh", got)
	}
	if conn.AccessToken != "fresh" || conn.RefreshToken == nil || *conn.RefreshToken != "rotated" {
		t.Fatalf("connection not updated in place: %+v", conn)
	}
	if conn.TokenExpiry == nil || !conn.TokenExpiry.After(time.Now().Add(time.Hour)) {
		t.Fatalf("expiry not advanced: %v", conn.TokenExpiry)
	}
	if conns.updates != 1 {
		t.Fatalf("persisted updates = %d, want 1", conns.updates)
	}
}

func TestEnsureValidTokenKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh", "expires_in": 7200})
	}))
	defer srv.Close()

	gate := NewRefreshGate(testClient(srv.URL), &fakeConnStore{})
	expiry := time.Now().Add(-time.Minute)
	conn := &models.SocialConnection{ID: "conn-1", AccessToken: "stale", RefreshToken: strPtr("keep-me"), TokenExpiry: &expiry}

	if _, err := gate.EnsureValidToken(context.Background(), conn); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if conn.RefreshToken == nil || *conn.RefreshToken != "keep-me" {
		t.Fatalf("refresh token should survive a non-rotating refresh, got %v", conn.RefreshToken)
	}
}

func TestEnsureValidTokenSurfacesRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	gate := NewRefreshGate(testClient(srv.URL), &fakeConnStore{})
	expiry := time.Now().Add(-time.Minute)
	conn := &models.SocialConnection{ID: "conn-1", AccessToken: "stale", RefreshToken: strPtr("refresh-1"), TokenExpiry: &expiry}

	_, err := gate.EnsureValidToken(context.Background(), conn)
	var rfe *models.RefreshFailedError
	if !errors.As(err, &rfe) {
		t.Fatalf("err = %v, want RefreshFailedError", err)
	}
	if rfe.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rfe.StatusCode)
	}
}
