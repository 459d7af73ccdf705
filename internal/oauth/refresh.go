package oauth

import (
	"context"
	"time"

	"social-campaign-engine/internal/models"
	"social-campaign-engine/internal/platform"
)

// refreshWindow is how close to expiry a token gets before we refresh it
// proactively instead of risking a 401 mid-publish.
const refreshWindow = 5 * time.Minute

// RefreshGate hands out currently-valid access tokens for stored
// connections, refreshing through the platform's token endpoint when needed.
type RefreshGate struct {
	client *platform.Client
	conns  ConnectionStore
	now    func() time.Time
}

func NewRefreshGate(client *platform.Client, conns ConnectionStore) *RefreshGate {
	return &RefreshGate{client: client, conns: conns, now: time.Now}
}

// EnsureValidToken returns the connection's access token, refreshing first
// when the stored one is within the expiry window. The common case — no
// expiry recorded, or expiry comfortably in the future — makes no network
// call. On a successful refresh the connection is updated in place and
// persisted.
func (g *RefreshGate) EnsureValidToken(ctx context.Context, conn *models.SocialConnection) (string, error) {
	if conn.TokenExpiry == nil || conn.TokenExpiry.After(g.now().Add(refreshWindow)) {
		return conn.AccessToken, nil
	}
	if conn.RefreshToken == nil || *conn.RefreshToken == "" {
		return "", models.ErrTokenExpired
	}

	tok, err := g.client.Refresh(ctx, *conn.RefreshToken)
	if err != nil {
		return "", err
	}

	conn.AccessToken = tok.AccessToken
	// Rotation is platform-optional: keep the old refresh token unless a new
	// one was issued.
	if tok.RefreshToken != "" {
		conn.RefreshToken = &tok.RefreshToken
	}
	conn.TokenExpiry = nil
	if tok.ExpiresIn > 0 {
		expiry := g.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		conn.TokenExpiry = &expiry
	}

	if err := g.conns.UpdateConnectionTokens(ctx, conn.ID, conn.AccessToken, conn.RefreshToken, conn.TokenExpiry); err != nil {
		return "", err
	}
	return conn.AccessToken, nil
}
