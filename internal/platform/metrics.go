package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"strings"
	"time"

	"social-campaign-engine/internal/models"
)

// MetricsFetcher pulls engagement metrics for a published post. The live
// implementation calls the platform API; the mock returns synthetic numbers
// after a fixed delay. Selection happens via configuration, not code change.
type MetricsFetcher interface {
	Fetch(ctx context.Context, platform, postID, accessToken string) (models.EngagementMetrics, error)
}

// EngagementRate computes engagements/impressions as a percentage, 0 when
// there are no impressions.
func EngagementRate(impressions, engagements int) float64 {
	if impressions == 0 {
		return 0
	}
	return float64(engagements) / float64(impressions) * 100
}

// NewMetricsFetcher selects the live or mock fetcher.
func NewMetricsFetcher(live bool, client *Client) MetricsFetcher {
	if live {
		return &LiveMetrics{client: client}
	}
	return &MockMetrics{delay: 100 * time.Millisecond}
}

// LiveMetrics reads public metrics from the platform API.
type LiveMetrics struct {
	client *Client
}

func (l *LiveMetrics) Fetch(ctx context.Context, platformName, postID, accessToken string) (models.EngagementMetrics, error) {
	switch strings.ToLower(platformName) {
	case "x", "twitter":
		return l.fetchX(ctx, postID, accessToken)
	default:
		return models.EngagementMetrics{}, fmt.Errorf("unsupported platform: %s", platformName)
	}
}

func (l *LiveMetrics) fetchX(ctx context.Context, postID, accessToken string) (models.EngagementMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.client.cfg.APIBaseURL+"/2/tweets/"+postID+"?tweet.fields=public_metrics", nil)
	if err != nil {
		return models.EngagementMetrics{}, fmt.Errorf("create metrics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := l.client.httpClient.Do(req)
	if err != nil {
		return models.EngagementMetrics{}, fmt.Errorf("metrics endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.EngagementMetrics{}, fmt.Errorf("read metrics response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.EngagementMetrics{}, &models.ExternalServiceError{Service: "platform metrics endpoint", StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}

	var payload struct {
		Data struct {
			PublicMetrics struct {
				Impressions int `json:"impression_count"`
				Likes       int `json:"like_count"`
				Retweets    int `json:"retweet_count"`
				Replies     int `json:"reply_count"`
				Clicks      int `json:"url_link_clicks"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.EngagementMetrics{}, fmt.Errorf("decode metrics response: %w", err)
	}

	m := payload.Data.PublicMetrics
	return models.EngagementMetrics{
		Impressions: m.Impressions,
		Engagements: m.Likes + m.Retweets + m.Replies,
		Likes:       m.Likes,
		Shares:      m.Retweets,
		Comments:    m.Replies,
		Clicks:      m.Clicks,
	}, nil
}

// MockMetrics returns plausible numbers without touching the network, for
// development and load testing.
type MockMetrics struct {
	delay time.Duration
}

func (m *MockMetrics) Fetch(ctx context.Context, _, _, _ string) (models.EngagementMetrics, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return models.EngagementMetrics{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return models.EngagementMetrics{
		Impressions: mathrand.Intn(5000) + 500,
		Engagements: mathrand.Intn(200) + 20,
		Likes:       mathrand.Intn(150) + 15,
		Shares:      mathrand.Intn(50) + 5,
		Comments:    mathrand.Intn(30) + 3,
		Clicks:      mathrand.Intn(100) + 10,
	}, nil
}
