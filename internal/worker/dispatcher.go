package worker

import (
	"context"
	"fmt"

	"social-campaign-engine/internal/models"
	"social-campaign-engine/internal/telemetry"
)

// dispatchDuePosts publishes due pending posts, at most batchSize per tick,
// one at a time. A failure in one post is recorded on that post and never
// aborts the rest of the batch.
func (e *Engine) dispatchDuePosts(ctx context.Context) {
	posts, err := e.store.DueScheduledPosts(ctx, e.now(), e.batchSize)
	if err != nil {
		e.logger.Printf("poll due posts: %v", err)
		return
	}

	for _, post := range posts {
		claimed, err := e.store.MarkPosting(ctx, post.ID)
		if err != nil {
			e.logger.Printf("mark post %s posting: %v", post.ID, err)
			continue
		}
		if !claimed {
			// Claimed by another dispatcher, or cancelled since the read.
			continue
		}

		if err := e.publishPost(ctx, post); err != nil {
			e.logger.Printf("publish post %s: %v", post.ID, err)
			if markErr := e.store.MarkPostFailed(ctx, post.ID, err.Error()); markErr != nil {
				e.logger.Printf("record post %s failure: %v", post.ID, markErr)
			}
			telemetry.PostsFailed.Inc()
			continue
		}
		telemetry.PostsPublished.Inc()
	}
}

func (e *Engine) publishPost(ctx context.Context, post *models.ScheduledPost) error {
	if post.Connection == nil {
		return fmt.Errorf("post %s has no connection loaded", post.ID)
	}

	accessToken, err := e.gate.EnsureValidToken(ctx, post.Connection)
	if err != nil {
		return fmt.Errorf("ensure access token: %w", err)
	}

	platformPostID, err := e.publisher.CreatePost(ctx, accessToken, post.Content)
	if err != nil {
		return err
	}

	if err := e.store.MarkPosted(ctx, post.ID, platformPostID, e.now()); err != nil {
		return fmt.Errorf("record posted: %w", err)
	}
	e.logger.Printf("post %s published as %s on %s", post.ID, platformPostID, post.Platform)
	return nil
}
