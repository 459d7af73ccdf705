package platform

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"social-campaign-engine/internal/models"
)

const bodyLimit = 700

// Config identifies the application to an X-style OAuth2 platform. Base URLs
// are configurable so tests can point the client at a local server.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	APIBaseURL   string
}

// Client talks to the platform's OAuth and content endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether the credentials needed for the authorization
// flow are present.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.RedirectURL != ""
}

// AuthorizationURL builds the browser redirect target for the connect step.
func (c *Client) AuthorizationURL(state, challenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("scope", "tweet.read tweet.write users.read offline.access")
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	return c.cfg.AuthURL + "?" + q.Encode()
}

// Token is the platform's token-endpoint response for both the
// authorization-code and refresh-token grants.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExchangeCode trades an authorization code plus PKCE verifier for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (Token, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.cfg.RedirectURL)
	form.Set("code_verifier", verifier)
	form.Set("client_id", c.cfg.ClientID)
	return c.postToken(ctx, form, false)
}

// Refresh performs a refresh-token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	return c.postToken(ctx, form, true)
}

func (c *Client) postToken(ctx context.Context, form url.Values, refresh bool) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/2/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if refresh {
			return Token{}, &models.RefreshFailedError{StatusCode: resp.StatusCode, Body: truncate(string(body))}
		}
		return Token{}, &models.ExternalServiceError{Service: "platform token endpoint", StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	return tok, nil
}

// Identity is the platform account behind an access token.
type Identity struct {
	ID       string
	Username string
	Raw      map[string]any
}

// Identity fetches the authenticated account's id and username.
func (c *Client) Identity(ctx context.Context, accessToken string) (Identity, error) {
	var payload struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	raw, err := c.getJSON(ctx, "/2/users/me", accessToken, &payload)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: payload.Data.ID, Username: payload.Data.Username, Raw: raw}, nil
}

// CreatePost publishes content and returns the platform's post id.
func (c *Client) CreatePost(ctx context.Context, accessToken, content string) (string, error) {
	reqBody, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return "", fmt.Errorf("marshal post body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/2/tweets", strings.NewReader(string(reqBody)))
	if err != nil {
		return "", fmt.Errorf("create post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read post response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &models.ExternalServiceError{Service: "platform post endpoint", StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode post response: %w", err)
	}
	if payload.Data.ID == "" {
		return "", fmt.Errorf("post response without id")
	}
	return payload.Data.ID, nil
}

func (c *Client) getJSON(ctx context.Context, path, accessToken string, out any) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.ExternalServiceError{Service: "platform " + path, StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	return raw, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > bodyLimit {
		return s[:bodyLimit]
	}
	return s
}
