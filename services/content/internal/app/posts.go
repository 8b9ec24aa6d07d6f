package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"personapost/internal/util"
	"personapost/pkg/domain"
)

// CreatePostInput is the payload for a new post. A nil ScheduleDate creates
// a draft.
type CreatePostInput struct {
	Topic        string
	Industry     string
	Tone         string
	Platform     string
	Content      string
	ScheduleDate *time.Time
}

// CreatePost saves a draft or pre-scheduled post owned by the caller.
func (a *App) CreatePost(ctx context.Context, caller domain.Identity, in CreatePostInput) (domain.Post, error) {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return domain.Post{}, domain.Validationf("topic required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.Post{}, domain.Validationf("content required")
	}
	platform, ok := domain.ParsePlatform(in.Platform)
	if !ok {
		return domain.Post{}, domain.Validationf("unsupported platform %q", in.Platform)
	}
	now := a.clock()
	post := domain.Post{
		ID:        util.NewID(),
		UserID:    caller.UserID,
		Topic:     topic,
		Industry:  strings.TrimSpace(in.Industry),
		Tone:      strings.TrimSpace(in.Tone),
		Platform:  platform,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.ScheduleDate != nil {
		var err error
		if post, err = domain.SchedulePost(post, *in.ScheduleDate, now); err != nil {
			return domain.Post{}, err
		}
	}
	if err := a.store.SavePost(ctx, post); err != nil {
		return domain.Post{}, fmt.Errorf("save post: %w", err)
	}
	return post, nil
}

// GetPost returns a post owned by the caller.
func (a *App) GetPost(ctx context.Context, caller domain.Identity, postID string) (domain.Post, error) {
	return a.ownedPost(ctx, caller, postID)
}

// ListPosts returns the caller's posts newest first.
func (a *App) ListPosts(ctx context.Context, caller domain.Identity) ([]domain.Post, error) {
	return a.store.ListPostsByUser(ctx, caller.UserID)
}

// PostUpdate is the partial update accepted by the update endpoint.
type PostUpdate struct {
	Content      *string
	Topic        *string
	Industry     *string
	Tone         *string
	Platform     *string
	ScheduleDate *time.Time
	IsCanceled   *bool
}

// UpdatePost routes a partial update through the lifecycle transitions.
func (a *App) UpdatePost(ctx context.Context, caller domain.Identity, postID string, in PostUpdate) (domain.Post, error) {
	patch := domain.PostPatch{
		PostEdit: domain.PostEdit{
			Content:  in.Content,
			Topic:    trimPtr(in.Topic),
			Industry: trimPtr(in.Industry),
			Tone:     trimPtr(in.Tone),
		},
		ScheduleDate: in.ScheduleDate,
		IsCanceled:   in.IsCanceled,
	}
	if in.Platform != nil {
		p, ok := domain.ParsePlatform(*in.Platform)
		if !ok {
			return domain.Post{}, domain.Validationf("unsupported platform %q", *in.Platform)
		}
		patch.Platform = &p
	}
	return a.mutatePost(ctx, caller, postID, func(p domain.Post, now time.Time) (domain.Post, error) {
		return domain.ApplyPatch(p, patch, now)
	})
}

// SchedulePost moves a draft or canceled post to scheduled.
func (a *App) SchedulePost(ctx context.Context, caller domain.Identity, postID string, date time.Time) (domain.Post, error) {
	return a.mutatePost(ctx, caller, postID, func(p domain.Post, now time.Time) (domain.Post, error) {
		return domain.SchedulePost(p, date, now)
	})
}

// CancelPost cancels a scheduled post, keeping its date.
func (a *App) CancelPost(ctx context.Context, caller domain.Identity, postID string) (domain.Post, error) {
	return a.mutatePost(ctx, caller, postID, domain.CancelPost)
}

// ReschedulePost sets a new date and clears any cancellation.
func (a *App) ReschedulePost(ctx context.Context, caller domain.Identity, postID string, date time.Time) (domain.Post, error) {
	return a.mutatePost(ctx, caller, postID, func(p domain.Post, now time.Time) (domain.Post, error) {
		return domain.ReschedulePost(p, date, now)
	})
}

// DeletePost removes the post permanently.
func (a *App) DeletePost(ctx context.Context, caller domain.Identity, postID string) error {
	if _, err := a.ownedPost(ctx, caller, postID); err != nil {
		return err
	}
	deleted, err := a.store.DeletePost(ctx, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if !deleted {
		return domain.NotFoundf("post %s", postID)
	}
	return nil
}

// Calendar groups the caller's scheduled posts by day between from and to.
func (a *App) Calendar(ctx context.Context, caller domain.Identity, from, to time.Time, loc *time.Location) ([]domain.CalendarDay, error) {
	if loc == nil {
		loc = time.UTC
	}
	if to.Before(from) {
		return nil, domain.Validationf("from must not be after to")
	}
	start := domain.StartOfDay(from, loc)
	end := domain.StartOfDay(to, loc).AddDate(0, 0, 1)
	posts, err := a.store.ListScheduledPosts(ctx, caller.UserID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list scheduled posts: %w", err)
	}
	return domain.BuildCalendar(posts, from, to, loc), nil
}

func (a *App) mutatePost(ctx context.Context, caller domain.Identity, postID string, fn func(domain.Post, time.Time) (domain.Post, error)) (domain.Post, error) {
	post, err := a.ownedPost(ctx, caller, postID)
	if err != nil {
		return domain.Post{}, err
	}
	next, err := fn(post, a.clock())
	if err != nil {
		return domain.Post{}, err
	}
	if err := a.store.SavePost(ctx, next); err != nil {
		return domain.Post{}, fmt.Errorf("save post: %w", err)
	}
	return next, nil
}

func (a *App) ownedPost(ctx context.Context, caller domain.Identity, postID string) (domain.Post, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return domain.Post{}, domain.Validationf("post id required")
	}
	post, ok, err := a.store.GetPost(ctx, postID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("load post: %w", err)
	}
	if !ok {
		return domain.Post{}, domain.NotFoundf("post %s", postID)
	}
	if post.UserID != caller.UserID {
		return domain.Post{}, fmt.Errorf("%w: post belongs to another user", domain.ErrForbidden)
	}
	return post, nil
}
