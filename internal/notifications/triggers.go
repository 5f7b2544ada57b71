package notifications

import (
	"context"
	"errors"
	"fmt"

	"inkwell/internal/featureflags"
	"inkwell/internal/models"
)

const (
	jobFiveStar   = "five_star_rating"
	jobPublished  = "post_published"
	fiveStarScore = 5
)

// UserDirectory resolves notification recipients.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	ListPublishAudience(ctx context.Context, authorID uint, categoryID *uint) ([]models.User, error)
}

// EventPublisher pushes realtime events to a user.
type EventPublisher interface {
	PublishEvent(ctx context.Context, userID uint, ev Event) error
}

// TriggersConfig wires the collaborators of Triggers.
type TriggersConfig struct {
	Dispatcher *Dispatcher
	Users      UserDirectory
	Mailer     Mailer
	Events     EventPublisher
	Flags      *featureflags.Manager
	MailFrom   string
}

// Triggers turns post lifecycle events into queued notification jobs. Every
// method returns immediately; the work happens on the dispatcher.
type Triggers struct {
	cfg TriggersConfig
}

// NewTriggers builds Triggers. Events and Flags are optional.
func NewTriggers(cfg TriggersConfig) *Triggers {
	return &Triggers{cfg: cfg}
}

// OnFiveStarRating mails the post author and pushes a rating_received event.
func (t *Triggers) OnFiveStarRating(_ context.Context, rating *models.Rating, post *models.Post) {
	if rating == nil || post == nil || rating.Score != fiveStarScore || !post.IsPublished() {
		return
	}
	authorID, postID, title, raterID := post.AuthorID, post.ID, post.Title, rating.UserID

	t.cfg.Dispatcher.Enqueue(Job{Kind: jobFiveStar, PostID: postID, Run: func(ctx context.Context) error {
		author, err := t.cfg.Users.GetByID(ctx, authorID)
		if err != nil {
			return fmt.Errorf("resolve author %d: %w", authorID, err)
		}

		var errs []error
		if author.Email != "" {
			errs = append(errs, t.cfg.Mailer.Send(ctx, FiveStarMail(t.cfg.MailFrom, author, title)))
		}
		errs = append(errs, t.push(ctx, authorID, Event{
			Type: EventRatingReceived,
			Payload: map[string]any{
				"post_id":  postID,
				"title":    title,
				"score":    fiveStarScore,
				"rater_id": raterID,
			},
		}))
		return errors.Join(errs...)
	}})
}

// OnPostPublished notifies the author's followers and the category's
// subscribers, excluding the author.
func (t *Triggers) OnPostPublished(_ context.Context, post *models.Post) {
	if post == nil || !post.IsPublished() {
		return
	}
	authorID, postID, title := post.AuthorID, post.ID, post.Title
	authorName := post.Author.Username
	var categoryID *uint
	if post.CategoryID != nil {
		id := *post.CategoryID
		categoryID = &id
	}

	t.cfg.Dispatcher.Enqueue(Job{Kind: jobPublished, PostID: postID, Run: func(ctx context.Context) error {
		if authorName == "" {
			author, err := t.cfg.Users.GetByID(ctx, authorID)
			if err != nil {
				return fmt.Errorf("resolve author %d: %w", authorID, err)
			}
			authorName = author.Username
		}

		audience, err := t.cfg.Users.ListPublishAudience(ctx, authorID, categoryID)
		if err != nil {
			return fmt.Errorf("resolve audience for post %d: %w", postID, err)
		}

		var errs []error
		for i := range audience {
			recipient := &audience[i]
			if recipient.ID == authorID {
				continue
			}
			if recipient.Email != "" {
				errs = append(errs, t.cfg.Mailer.Send(ctx, PublishedMail(t.cfg.MailFrom, recipient, authorName, title)))
			}
			errs = append(errs, t.push(ctx, recipient.ID, Event{
				Type: EventPostPublished,
				Payload: map[string]any{
					"post_id":   postID,
					"title":     title,
					"author_id": authorID,
					"author":    authorName,
				},
			}))
		}
		return errors.Join(errs...)
	}})
}

func (t *Triggers) push(ctx context.Context, userID uint, ev Event) error {
	if t.cfg.Events == nil {
		return nil
	}
	if !t.cfg.Flags.Enabled(featureflags.RealtimeEvents, userID) {
		return nil
	}
	if err := t.cfg.Events.PublishEvent(ctx, userID, ev); err != nil {
		return fmt.Errorf("push %s to user %d: %w", ev.Type, userID, err)
	}
	return nil
}

// FiveStarMail builds the message sent to an author whose post got a 5-star rating.
func FiveStarMail(from string, author *models.User, title string) Mail {
	return Mail{
		From:    from,
		To:      author.Email,
		Subject: "Your post got a 5-star rating",
		Body: fmt.Sprintf("Hi %s,\n\nGreat news! Your post '%s' just received a 5-star rating.",
			author.Username, title),
	}
}

// PublishedMail builds the message sent to a follower or subscriber when a post goes live.
func PublishedMail(from string, recipient *models.User, authorName, title string) Mail {
	return Mail{
		From:    from,
		To:      recipient.Email,
		Subject: fmt.Sprintf("New post from %s: %s", authorName, title),
		Body: fmt.Sprintf("Hi %s,\n\n%s just published '%s'.",
			recipient.Username, authorName, title),
	}
}
