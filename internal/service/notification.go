package service

import (
	"context"

	"inkwell/internal/models"
)

// NotificationTrigger receives lifecycle events once the triggering write has
// been persisted. Implementations must return without blocking.
type NotificationTrigger interface {
	OnFiveStarRating(ctx context.Context, rating *models.Rating, post *models.Post)
	OnPostPublished(ctx context.Context, post *models.Post)
}

type noopTrigger struct{}

func (noopTrigger) OnFiveStarRating(context.Context, *models.Rating, *models.Post) {}
func (noopTrigger) OnPostPublished(context.Context, *models.Post)                  {}

func triggerOrNoop(t NotificationTrigger) NotificationTrigger {
	if t == nil {
		return noopTrigger{}
	}
	return t
}
