package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"social-campaign-engine/internal/models"
)

// Store wraps pgxpool for Postgres persistence of jobs, scheduled posts,
// social connections, and campaign artifacts.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- jobs ----

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	Type        string
	Payload     map[string]any
	MaxAttempts int
}

// CreateJob inserts a pending job row.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, error) {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = models.DefaultMaxAttempts
	}
	if p.Payload == nil {
		p.Payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, type, status, payload, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
	`, id, p.Type, models.JobPending, payloadJSON, p.MaxAttempts, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:          id,
		Type:        p.Type,
		Status:      models.JobPending,
		Payload:     p.Payload,
		MaxAttempts: p.MaxAttempts,
		CreatedAt:   now,
	}, nil
}

const jobColumns = `id, type, status, payload, attempts, max_attempts, result, error, created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	var payloadJSON, resultJSON []byte
	var errText pgtype.Text
	var startedAt, completedAt pgtype.Timestamptz

	if err := row.Scan(&job.ID, &job.Type, &job.Status, &payloadJSON, &job.Attempts, &job.MaxAttempts,
		&resultJSON, &errText, &job.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	job.Error = textPtr(errText)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	return &job, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// NextPendingJob returns the oldest pending job with attempts left, or nil
// when the queue is idle. This is only a candidate read: claiming is a
// separate conditional update.
func (s *Store) NextPendingJob(ctx context.Context) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1 AND attempts < max_attempts
		ORDER BY created_at ASC
		LIMIT 1
	`, models.JobPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pending job: %w", err)
	}
	return job, nil
}

// ClaimJob atomically transitions a job to running, incrementing attempts,
// but only if it is still pending at write time. A false return means
// another worker won the race; there is nothing to clean up. This
// conditional update is the engine's sole concurrency-safety mechanism —
// it is what lets multiple worker processes share one queue without a
// distributed lock.
func (s *Store) ClaimJob(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, started_at = $3, attempts = attempts + 1
		WHERE id = $1 AND status = $4
	`, id, models.JobRunning, now, models.JobPending)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteJob records a successful result.
func (s *Store) CompleteJob(ctx context.Context, id string, result map[string]any, now time.Time) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, result = $3, completed_at = $4 WHERE id = $1
	`, id, models.JobCompleted, resultJSON, now)
	return err
}

// FailJob records a processor failure. Terminal failures keep completed_at;
// retryable ones return the job to pending with a cleared completion time
// (attempts were already incremented at claim time, so retries stay
// bounded).
func (s *Store) FailJob(ctx context.Context, id, errMsg string, terminal bool, now time.Time) error {
	status := models.JobPending
	var completedAt *time.Time
	if terminal {
		status = models.JobFailed
		completedAt = &now
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, error = $3, completed_at = $4 WHERE id = $1
	`, id, status, errMsg, completedAt)
	return err
}

// CountPendingJobs reports queue depth for telemetry.
func (s *Store) CountPendingJobs(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs WHERE status = $1 AND attempts < max_attempts
	`, models.JobPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

// ---- scheduled posts ----

const postColumns = `p.id, p.user_id, p.asset_id, p.social_connection_id, p.platform, p.content, p.media_urls,
	p.scheduled_for, p.status, p.platform_post_id, p.error, p.posted_at, p.created_at`

func scanPost(row pgx.Row) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	var mediaJSON []byte
	var platformPostID, errText pgtype.Text
	var postedAt pgtype.Timestamptz

	if err := row.Scan(&post.ID, &post.UserID, &post.AssetID, &post.SocialConnectionID, &post.Platform,
		&post.Content, &mediaJSON, &post.ScheduledFor, &post.Status, &platformPostID, &errText,
		&postedAt, &post.CreatedAt); err != nil {
		return nil, err
	}
	if len(mediaJSON) > 0 {
		if err := json.Unmarshal(mediaJSON, &post.MediaURLs); err != nil {
			return nil, fmt.Errorf("unmarshal media urls: %w", err)
		}
	}
	post.PlatformPostID = textPtr(platformPostID)
	post.Error = textPtr(errText)
	post.PostedAt = timePtr(postedAt)
	return &post, nil
}

// CreateScheduledPost inserts a pending post.
func (s *Store) CreateScheduledPost(ctx context.Context, post models.ScheduledPost) (models.ScheduledPost, error) {
	if post.MediaURLs == nil {
		post.MediaURLs = []string{}
	}
	mediaJSON, err := json.Marshal(post.MediaURLs)
	if err != nil {
		return models.ScheduledPost{}, fmt.Errorf("marshal media urls: %w", err)
	}
	post.ID = uuid.New().String()
	post.Status = models.PostPending
	post.CreatedAt = time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO scheduled_posts (id, user_id, asset_id, social_connection_id, platform, content,
			media_urls, scheduled_for, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, post.ID, post.UserID, post.AssetID, post.SocialConnectionID, post.Platform, post.Content,
		mediaJSON, post.ScheduledFor, post.Status, post.CreatedAt)
	if err != nil {
		return models.ScheduledPost{}, fmt.Errorf("insert scheduled post: %w", err)
	}
	return post, nil
}

// GetScheduledPost fetches one post by id.
func (s *Store) GetScheduledPost(ctx context.Context, id string) (*models.ScheduledPost, error) {
	post, err := scanPost(s.pool.QueryRow(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts p WHERE p.id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query scheduled post: %w", err)
	}
	return post, nil
}

// DueScheduledPosts returns up to limit pending posts whose scheduled time
// has passed, oldest first, each with its connection preloaded.
func (s *Store) DueScheduledPosts(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+`,
			c.id, c.user_id, c.platform, c.platform_user_id, c.username,
			c.access_token, c.refresh_token, c.token_expiry
		FROM scheduled_posts p
		JOIN social_connections c ON c.id = p.social_connection_id
		WHERE p.status = $1 AND p.scheduled_for <= $2
		ORDER BY p.scheduled_for ASC
		LIMIT $3
	`, models.PostPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		var post models.ScheduledPost
		var conn models.SocialConnection
		var mediaJSON []byte
		var platformPostID, errText, refreshToken pgtype.Text
		var postedAt, tokenExpiry pgtype.Timestamptz

		if err := rows.Scan(&post.ID, &post.UserID, &post.AssetID, &post.SocialConnectionID, &post.Platform,
			&post.Content, &mediaJSON, &post.ScheduledFor, &post.Status, &platformPostID, &errText,
			&postedAt, &post.CreatedAt,
			&conn.ID, &conn.UserID, &conn.Platform, &conn.PlatformUserID, &conn.Username,
			&conn.AccessToken, &refreshToken, &tokenExpiry); err != nil {
			return nil, fmt.Errorf("scan due post: %w", err)
		}
		if len(mediaJSON) > 0 {
			if err := json.Unmarshal(mediaJSON, &post.MediaURLs); err != nil {
				return nil, fmt.Errorf("unmarshal media urls: %w", err)
			}
		}
		post.PlatformPostID = textPtr(platformPostID)
		post.Error = textPtr(errText)
		post.PostedAt = timePtr(postedAt)
		conn.RefreshToken = textPtr(refreshToken)
		conn.TokenExpiry = timePtr(tokenExpiry)
		post.Connection = &conn
		posts = append(posts, &post)
	}
	return posts, rows.Err()
}

// MarkPosting flips a post to posting, but only while it is still pending —
// the same conditional-update pattern as the job claim, so two dispatcher
// instances cannot double-publish, and a cancellation observed between the
// eligibility read and this write excludes the post.
func (s *Store) MarkPosting(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_posts SET status = $2 WHERE id = $1 AND status = $3
	`, id, models.PostPosting, models.PostPending)
	if err != nil {
		return false, fmt.Errorf("mark posting: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPosted records a successful publication.
func (s *Store) MarkPosted(ctx context.Context, id, platformPostID string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_posts SET status = $2, platform_post_id = $3, posted_at = $4, error = NULL
		WHERE id = $1
	`, id, models.PostPosted, platformPostID, now)
	return err
}

// MarkPostFailed records a publish failure. Failed posts are not retried
// automatically; they require manual re-scheduling.
func (s *Store) MarkPostFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_posts SET status = $2, error = $3 WHERE id = $1
	`, id, models.PostFailed, errMsg)
	return err
}

// CancelScheduledPost moves a pending post to cancelled; only the owner may
// cancel and only while the post has not been picked up.
func (s *Store) CancelScheduledPost(ctx context.Context, id, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_posts SET status = $2
		WHERE id = $1 AND user_id = $3 AND status = $4
	`, id, models.PostCancelled, userID, models.PostPending)
	if err != nil {
		return false, fmt.Errorf("cancel post: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListScheduledPosts returns a user's posts ordered by scheduled time.
func (s *Store) ListScheduledPosts(ctx context.Context, userID string) ([]*models.ScheduledPost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts p
		WHERE p.user_id = $1
		ORDER BY p.scheduled_for ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ListPostedPosts returns a user's successfully published posts, the
// candidates for metrics collection.
func (s *Store) ListPostedPosts(ctx context.Context, userID string) ([]*models.ScheduledPost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts p
		WHERE p.user_id = $1 AND p.status = $2 AND p.platform_post_id IS NOT NULL
		ORDER BY p.posted_at DESC
	`, userID, models.PostPosted)
	if err != nil {
		return nil, fmt.Errorf("list posted posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ---- social connections ----

const connColumns = `id, user_id, platform, platform_user_id, username, access_token, refresh_token,
	token_expiry, metadata, created_at, updated_at`

func scanConnection(row pgx.Row) (*models.SocialConnection, error) {
	var conn models.SocialConnection
	var refreshToken pgtype.Text
	var tokenExpiry pgtype.Timestamptz
	var metadataJSON []byte

	if err := row.Scan(&conn.ID, &conn.UserID, &conn.Platform, &conn.PlatformUserID, &conn.Username,
		&conn.AccessToken, &refreshToken, &tokenExpiry, &metadataJSON, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return nil, err
	}
	conn.RefreshToken = textPtr(refreshToken)
	conn.TokenExpiry = timePtr(tokenExpiry)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &conn.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &conn, nil
}

// UpsertConnection inserts or refreshes the single connection a user holds
// per platform, keyed on (user_id, platform).
func (s *Store) UpsertConnection(ctx context.Context, conn models.SocialConnection) (models.SocialConnection, error) {
	metadataJSON, err := json.Marshal(conn.Metadata)
	if err != nil {
		return models.SocialConnection{}, fmt.Errorf("marshal metadata: %w", err)
	}
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO social_connections (id, user_id, platform, platform_user_id, username,
			access_token, refresh_token, token_expiry, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			platform_user_id = EXCLUDED.platform_user_id,
			username = EXCLUDED.username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, uuid.New().String(), conn.UserID, conn.Platform, conn.PlatformUserID, conn.Username,
		conn.AccessToken, conn.RefreshToken, conn.TokenExpiry, metadataJSON, now)

	if err := row.Scan(&conn.ID, &conn.CreatedAt); err != nil {
		return models.SocialConnection{}, fmt.Errorf("upsert connection: %w", err)
	}
	conn.UpdatedAt = now
	return conn, nil
}

// GetConnection fetches a connection by id.
func (s *Store) GetConnection(ctx context.Context, id string) (*models.SocialConnection, error) {
	conn, err := scanConnection(s.pool.QueryRow(ctx, `
		SELECT `+connColumns+` FROM social_connections WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query connection: %w", err)
	}
	return conn, nil
}

// UpdateConnectionTokens persists a rolled-over access token after refresh.
func (s *Store) UpdateConnectionTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiry *time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE social_connections
		SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE id = $1
	`, id, accessToken, refreshToken, expiry)
	return err
}

// ListConnections returns a user's connections.
func (s *Store) ListConnections(ctx context.Context, userID string) ([]*models.SocialConnection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+connColumns+` FROM social_connections WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.SocialConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// DeleteConnection removes a connection owned by the user.
func (s *Store) DeleteConnection(ctx context.Context, id, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM social_connections WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete connection: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ---- campaign artifacts ----

// CreateContentSummary persists the analysis record for a summarize job.
func (s *Store) CreateContentSummary(ctx context.Context, cs models.ContentSummary) error {
	keyPoints, err := json.Marshal(cs.KeyPoints)
	if err != nil {
		return fmt.Errorf("marshal key points: %w", err)
	}
	hooks, err := json.Marshal(cs.Hooks)
	if err != nil {
		return fmt.Errorf("marshal hooks: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO content_summaries (id, campaign_id, summary, key_points, hooks, chunks_processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, cs.ID, cs.CampaignID, cs.Summary, keyPoints, hooks, cs.ChunksProcessed, cs.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert content summary: %w", err)
	}
	return nil
}

// MarkCampaignReady flips the owning campaign to ready once its summary
// exists.
func (s *Store) MarkCampaignReady(ctx context.Context, campaignID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET status = 'ready', updated_at = NOW() WHERE id = $1
	`, campaignID)
	return err
}

// CreateGeneratedAsset stores one generated content asset.
func (s *Store) CreateGeneratedAsset(ctx context.Context, asset models.GeneratedAsset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generated_assets (id, campaign_id, channel, content, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, asset.ID, asset.CampaignID, asset.Channel, asset.Content, asset.Status, asset.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert generated asset: %w", err)
	}
	return nil
}

// InsertPostMetrics appends one metrics row; the series is never
// overwritten.
func (s *Store) InsertPostMetrics(ctx context.Context, m models.PostMetrics) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO post_metrics (id, scheduled_post_id, impressions, engagements, likes, shares,
			comments, clicks, engagement_rate, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.ScheduledPostID, m.Impressions, m.Engagements, m.Likes, m.Shares,
		m.Comments, m.Clicks, m.EngagementRate, m.CollectedAt)
	if err != nil {
		return fmt.Errorf("insert post metrics: %w", err)
	}
	return nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		return &t.Time
	}
	return nil
}
