package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"social-campaign-engine/internal/ai"
	"social-campaign-engine/internal/models"
	"social-campaign-engine/internal/platform"
	"social-campaign-engine/internal/telemetry"
)

// Store is the durable state the engine mutates. *store.Store satisfies it;
// tests use an in-memory implementation to exercise claim races without a
// database.
type Store interface {
	NextPendingJob(ctx context.Context) (*models.Job, error)
	ClaimJob(ctx context.Context, id string, now time.Time) (bool, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	CompleteJob(ctx context.Context, id string, result map[string]any, now time.Time) error
	FailJob(ctx context.Context, id, errMsg string, terminal bool, now time.Time) error
	CountPendingJobs(ctx context.Context) (int64, error)

	DueScheduledPosts(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	MarkPosting(ctx context.Context, id string) (bool, error)
	MarkPosted(ctx context.Context, id, platformPostID string, now time.Time) error
	MarkPostFailed(ctx context.Context, id, errMsg string) error
	GetScheduledPost(ctx context.Context, id string) (*models.ScheduledPost, error)
	GetConnection(ctx context.Context, id string) (*models.SocialConnection, error)

	CreateContentSummary(ctx context.Context, cs models.ContentSummary) error
	MarkCampaignReady(ctx context.Context, campaignID string) error
	CreateGeneratedAsset(ctx context.Context, asset models.GeneratedAsset) error
	InsertPostMetrics(ctx context.Context, m models.PostMetrics) error
}

// TokenGate returns a currently-valid access token for a connection,
// refreshing when necessary.
type TokenGate interface {
	EnsureValidToken(ctx context.Context, conn *models.SocialConnection) (string, error)
}

// Publisher creates a post on the platform. *platform.Client satisfies it.
type Publisher interface {
	CreatePost(ctx context.Context, accessToken, content string) (string, error)
}

// Processor performs one unit of work for a job payload, returning a
// serializable result or an error whose message lands in the job's error
// field verbatim.
type Processor func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Engine drives the recurring tick: one job claim+process cycle, then one
// scheduled-post sweep. The two phases are independent; a failure in one
// never blocks the other.
type Engine struct {
	store      Store
	ai         ai.Provider
	metrics    platform.MetricsFetcher
	gate       TokenGate
	publisher  Publisher
	processors map[string]Processor
	interval   time.Duration
	batchSize  int
	logger     *log.Logger
	now        func() time.Time
}

// Options configures an Engine.
type Options struct {
	Store         Store
	AI            ai.Provider
	Metrics       platform.MetricsFetcher
	Gate          TokenGate
	Publisher     Publisher
	PollInterval  time.Duration
	PostBatchSize int
	Logger        *log.Logger
}

func New(opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PostBatchSize <= 0 {
		opts.PostBatchSize = 10
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	e := &Engine{
		store:     opts.Store,
		ai:        opts.AI,
		metrics:   opts.Metrics,
		gate:      opts.Gate,
		publisher: opts.Publisher,
		interval:  opts.PollInterval,
		batchSize: opts.PostBatchSize,
		logger:    opts.Logger,
		now:       time.Now,
	}
	e.processors = map[string]Processor{
		"summarize":       e.processSummarize,
		"generate_asset":  e.processGenerateAsset,
		"collect_metrics": e.processCollectMetrics,

		// Fixed-delay simulators for load-testing the queue.
		"analysis":   simulate(2*time.Second, map[string]any{"status": "completed", "summary": "Analysis complete"}),
		"generation": simulate(3*time.Second, map[string]any{"status": "completed", "generated": true}),
		"processing": simulate(1500*time.Millisecond, map[string]any{"status": "completed"}),
	}
	return e
}

// Run ticks until the context is cancelled. Cancellation stops the
// scheduling of new ticks; work already dispatched runs to completion.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Printf("worker started: poll=%s post_batch=%d", e.interval, e.batchSize)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick performs one claim+process cycle followed by one post sweep.
func (e *Engine) Tick(ctx context.Context) {
	e.claimAndProcess(ctx)
	e.dispatchDuePosts(ctx)

	if depth, err := e.store.CountPendingJobs(ctx); err == nil {
		telemetry.PendingJobDepth.Set(float64(depth))
	}
}

func (e *Engine) claimAndProcess(ctx context.Context) {
	candidate, err := e.store.NextPendingJob(ctx)
	if err != nil {
		e.logger.Printf("poll jobs: %v", err)
		return
	}
	if candidate == nil {
		return
	}

	claimed, err := e.store.ClaimJob(ctx, candidate.ID, e.now())
	if err != nil {
		e.logger.Printf("claim job %s: %v", candidate.ID, err)
		return
	}
	if !claimed {
		// Another worker won the conditional update; walk away.
		telemetry.ClaimsLost.Inc()
		return
	}

	job, err := e.store.GetJob(ctx, candidate.ID)
	if err != nil {
		e.logger.Printf("reload claimed job %s: %v", candidate.ID, err)
		return
	}

	e.logger.Printf("processing job %s type=%s attempt=%d/%d", job.ID, job.Type, job.Attempts, job.MaxAttempts)

	result, procErr := e.process(ctx, job)
	if procErr == nil {
		if err := e.store.CompleteJob(ctx, job.ID, result, e.now()); err != nil {
			e.logger.Printf("complete job %s: %v", job.ID, err)
			return
		}
		telemetry.JobsCompleted.Inc()
		e.logger.Printf("job %s completed", job.ID)
		return
	}

	terminal := job.Attempts >= job.MaxAttempts
	if err := e.store.FailJob(ctx, job.ID, procErr.Error(), terminal, e.now()); err != nil {
		e.logger.Printf("record job %s failure: %v", job.ID, err)
		return
	}
	if terminal {
		telemetry.JobsFailed.Inc()
		e.logger.Printf("job %s failed permanently after %d attempts: %v", job.ID, job.Attempts, procErr)
	} else {
		telemetry.JobsRetried.Inc()
		e.logger.Printf("job %s will be retried (attempt %d/%d): %v", job.ID, job.Attempts, job.MaxAttempts, procErr)
	}
}

// process never panics the loop: processor errors are captured into the job
// row instead of propagating.
func (e *Engine) process(ctx context.Context, job *models.Job) (map[string]any, error) {
	proc, ok := e.processors[job.Type]
	if !ok {
		return nil, fmt.Errorf("no processor for job type: %s", job.Type)
	}
	return proc(ctx, job.Payload)
}

func simulate(delay time.Duration, result map[string]any) Processor {
	return func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		return result, nil
	}
}
