package worker

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"social-campaign-engine/internal/ai"
	"social-campaign-engine/internal/models"
	"social-campaign-engine/internal/platform"
)

const (
	maxChunkChars       = 4000
	maxSummarizedChunks = 3
)

func (e *Engine) processSummarize(ctx context.Context, payload map[string]any) (map[string]any, error) {
	campaignID, _ := payload["campaignId"].(string)
	text, _ := payload["text"].(string)
	if campaignID == "" || text == "" {
		return nil, &models.ValidationError{Reason: "summarize payload requires campaignId and text"}
	}

	chunks := ai.ChunkText(text, maxChunkChars)
	// Only the first chunks feed the prompt. Long sources are truncated on
	// purpose; chunks_processed records the true count so the truncation is
	// visible downstream.
	used := chunks
	if len(used) > maxSummarizedChunks {
		used = used[:maxSummarizedChunks]
	}

	resp, err := e.ai.Complete(ctx, ai.BuildSummarizePrompt(strings.Join(used, "\n\n")), ai.Options{MaxTokens: 1000})
	if err != nil {
		return nil, fmt.Errorf("summarize completion: %w", err)
	}

	var parsed struct {
		Summary   string   `json:"summary"`
		KeyPoints []string `json:"key_points"`
		Hooks     []string `json:"hooks"`
	}
	if err := ai.ParseJSONContent(resp.Content, &parsed); err != nil {
		return nil, fmt.Errorf("parse summarize response: %w", err)
	}

	summary := models.ContentSummary{
		ID:              uuid.New().String(),
		CampaignID:      campaignID,
		Summary:         parsed.Summary,
		KeyPoints:       parsed.KeyPoints,
		Hooks:           parsed.Hooks,
		ChunksProcessed: len(chunks),
		CreatedAt:       e.now(),
	}
	if err := e.store.CreateContentSummary(ctx, summary); err != nil {
		return nil, err
	}
	if err := e.store.MarkCampaignReady(ctx, campaignID); err != nil {
		return nil, err
	}

	return map[string]any{
		"summaryId":       summary.ID,
		"chunksProcessed": summary.ChunksProcessed,
		"tokensUsed":      resp.Usage.TotalTokens,
	}, nil
}

func (e *Engine) processGenerateAsset(ctx context.Context, payload map[string]any) (map[string]any, error) {
	campaignID, _ := payload["campaignId"].(string)
	channel, _ := payload["channel"].(string)
	summary, _ := payload["summary"].(string)
	if campaignID == "" || channel == "" || summary == "" {
		return nil, &models.ValidationError{Reason: "generate_asset payload requires campaignId, channel and summary"}
	}
	if !slices.Contains(ai.SupportedChannels, channel) {
		return nil, &models.ValidationError{Reason: fmt.Sprintf("unsupported channel: %s", channel)}
	}

	prompt := ai.BuildGenerateAssetPrompt(channel, summary,
		stringSlice(payload["keyPoints"]), stringSlice(payload["hooks"]))
	resp, err := e.ai.Complete(ctx, prompt, ai.Options{MaxTokens: 800})
	if err != nil {
		return nil, fmt.Errorf("generate asset completion: %w", err)
	}

	asset := models.GeneratedAsset{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		Channel:    channel,
		Content:    strings.TrimSpace(resp.Content),
		Status:     "completed",
		CreatedAt:  e.now(),
	}
	if err := e.store.CreateGeneratedAsset(ctx, asset); err != nil {
		return nil, err
	}

	return map[string]any{"assetId": asset.ID, "channel": channel}, nil
}

func (e *Engine) processCollectMetrics(ctx context.Context, payload map[string]any) (map[string]any, error) {
	postID, _ := payload["scheduledPostId"].(string)
	if postID == "" {
		return nil, &models.ValidationError{Reason: "collect_metrics payload requires scheduledPostId"}
	}

	post, err := e.store.GetScheduledPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load scheduled post %s: %w", postID, err)
	}
	if post.Status != models.PostPosted || post.PlatformPostID == nil {
		return nil, &models.ValidationError{Reason: fmt.Sprintf("post %s is not posted yet (status=%s)", postID, post.Status)}
	}

	conn, err := e.store.GetConnection(ctx, post.SocialConnectionID)
	if err != nil {
		return nil, fmt.Errorf("load connection %s: %w", post.SocialConnectionID, err)
	}
	accessToken, err := e.gate.EnsureValidToken(ctx, conn)
	if err != nil {
		return nil, err
	}

	m, err := e.metrics.Fetch(ctx, post.Platform, *post.PlatformPostID, accessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch metrics: %w", err)
	}
	rate := platform.EngagementRate(m.Impressions, m.Engagements)

	row := models.PostMetrics{
		ID:                uuid.New().String(),
		ScheduledPostID:   post.ID,
		EngagementMetrics: m,
		EngagementRate:    rate,
		CollectedAt:       e.now(),
	}
	if err := e.store.InsertPostMetrics(ctx, row); err != nil {
		return nil, err
	}

	return map[string]any{
		"impressions":    m.Impressions,
		"engagements":    m.Engagements,
		"engagementRate": rate,
	}, nil
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
