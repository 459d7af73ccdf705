package oauth

import (
	"context"
	"log"
	"time"

	"social-campaign-engine/internal/models"
	"social-campaign-engine/internal/platform"
	"social-campaign-engine/internal/token"
)

// Redirect error codes surfaced to the front end as a query parameter. The
// callback never raises; it maps every failure onto one of these so the UI
// can render a stable message.
const (
	ErrCodeMissingParams  = "missing_params"
	ErrCodeInvalidState   = "invalid_state"
	ErrCodeSessionExpired = "session_expired"
	ErrCodeCallbackFailed = "callback_failed"
)

// ConnectionStore persists social connections for the flow and refresh gate.
type ConnectionStore interface {
	UpsertConnection(ctx context.Context, conn models.SocialConnection) (models.SocialConnection, error)
	UpdateConnectionTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiry *time.Time) error
}

// Flow orchestrates the authorization-code-with-PKCE connect/callback pair
// for one platform.
type Flow struct {
	Platform    string
	client      *platform.Client
	sessions    SessionStore
	signer      *token.Signer
	conns       ConnectionStore
	frontendURL string
	logger      *log.Logger
	now         func() time.Time
}

func NewFlow(platformName string, client *platform.Client, sessions SessionStore, signer *token.Signer, conns ConnectionStore, frontendURL string, logger *log.Logger) *Flow {
	return &Flow{
		Platform:    platformName,
		client:      client,
		sessions:    sessions,
		signer:      signer,
		conns:       conns,
		frontendURL: frontendURL,
		logger:      logger,
		now:         time.Now,
	}
}

// Connect generates the PKCE pair and signed state, stores the session under
// the state id, and returns the authorization URL the browser should visit.
func (f *Flow) Connect(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", models.ErrUnauthorized
	}
	if !f.client.Configured() {
		return "", &models.ConfigError{Missing: "client id or redirect url"}
	}

	pkce := token.GeneratePKCE(nil)
	state, stateID := f.signer.GenerateState(userID)
	if err := f.sessions.Put(ctx, stateID, Session{
		Verifier:  pkce.Verifier,
		UserID:    userID,
		CreatedAt: f.now(),
	}); err != nil {
		return "", err
	}
	return f.client.AuthorizationURL(state, pkce.Challenge), nil
}

// Callback validates the returning state, consumes the PKCE session, trades
// the code for tokens, fetches the platform identity, and upserts the
// connection. It always returns a front-end redirect location.
func (f *Flow) Callback(ctx context.Context, code, state string) string {
	if code == "" || state == "" {
		return f.redirectError(ErrCodeMissingParams)
	}

	st := f.signer.VerifyState(state)
	if st == nil {
		return f.redirectError(ErrCodeInvalidState)
	}

	sess, ok, err := f.sessions.Take(ctx, st.ID)
	if err != nil {
		f.logger.Printf("oauth callback: session store error: %v", err)
		return f.redirectError(ErrCodeSessionExpired)
	}
	if !ok || sess.UserID != st.UserID {
		return f.redirectError(ErrCodeSessionExpired)
	}

	tok, err := f.client.ExchangeCode(ctx, code, sess.Verifier)
	if err != nil {
		f.logger.Printf("oauth callback: code exchange failed: %v", err)
		return f.redirectError(ErrCodeCallbackFailed)
	}

	ident, err := f.client.Identity(ctx, tok.AccessToken)
	if err != nil {
		f.logger.Printf("oauth callback: identity fetch failed: %v", err)
		return f.redirectError(ErrCodeCallbackFailed)
	}

	conn := models.SocialConnection{
		UserID:         st.UserID,
		Platform:       f.Platform,
		PlatformUserID: ident.ID,
		Username:       ident.Username,
		AccessToken:    tok.AccessToken,
		Metadata:       ident.Raw,
	}
	if tok.RefreshToken != "" {
		conn.RefreshToken = &tok.RefreshToken
	}
	// Absent expires_in means the token never expires until a 401 forces
	// re-auth; leave the expiry unset.
	if tok.ExpiresIn > 0 {
		expiry := f.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		conn.TokenExpiry = &expiry
	}

	if _, err := f.conns.UpsertConnection(ctx, conn); err != nil {
		f.logger.Printf("oauth callback: upsert connection failed: %v", err)
		return f.redirectError(ErrCodeCallbackFailed)
	}

	return f.frontendURL + "/app/schedule?connected=true"
}

func (f *Flow) redirectError(code string) string {
	return f.frontendURL + "/app/schedule?error=" + code
}
