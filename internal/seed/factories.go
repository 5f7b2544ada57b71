// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPassword is the login password of every seeded user.
const DefaultPassword = "InkwellSeed123!"

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by Seed and tests.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	hash  string
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB. A zero
// opts.RandSeed seeds the generator from the clock.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{db: db, opts: opts, faker: gofakeit.New(seed), nextID: 1000}
}

// Faker exposes the factory's generator so callers share one random stream.
func (f *Factory) Faker() *gofakeit.Faker {
	return f.faker
}

func (f *Factory) passwordHash() (string, error) {
	if f.hash != "" {
		return f.hash, nil
	}
	cost := bcrypt.DefaultCost
	if f.opts.SkipBcrypt {
		cost = bcrypt.MinCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return "", err
	}
	f.hash = string(hashed)
	return f.hash, nil
}

func (f *Factory) assignID() uint {
	f.nextID++
	return f.nextID
}

// randomPast returns a time within the last MaxDays days.
func (f *Factory) randomPast() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute
	return time.Now().UTC().Add(-back)
}

// BuildUser constructs a user that satisfies registration rules without
// persisting it.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	base := strings.ToLower(f.faker.Username())
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, base)
	if len(base) > 20 {
		base = base[:20]
	}
	username := fmt.Sprintf("%s%d", base, f.faker.Number(1000, 9999))

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser persists a generated user together with a filled-in profile.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)
	if user.Password == "" {
		hashed, err := f.passwordHash()
		if err != nil {
			return nil, err
		}
		user.Password = hashed
	}

	bio := truncate(f.faker.Sentence(12), models.MaxBioLength)
	location := truncate(f.faker.City()+", "+f.faker.Country(), models.MaxLocationLength)

	if f.opts.DryRun {
		user.ID = f.assignID()
		user.Profile = &models.Profile{
			UserID:         user.ID,
			Bio:            bio,
			Location:       location,
			ProfilePicture: models.DefaultProfilePicture,
		}
		log.Printf("[dry-run] CreateUser: username=%s", user.Username)
		return user, nil
	}

	ctx := context.Background()
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return err
		}
		profiles := repository.NewProfileRepository(tx)
		profile, err := profiles.EnsureForUser(ctx, user.ID)
		if err != nil {
			return err
		}
		profile.Bio = bio
		profile.Location = location
		if err := profiles.Update(ctx, profile); err != nil {
			return err
		}
		user.Profile = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a post by author in the given status without
// persisting it. Published posts get a PublishedDate at or after CreatedAt.
func (f *Factory) BuildPost(author *models.User, status models.PostStatus, overrides ...func(*models.Post)) *models.Post {
	title := strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 8)), ".")
	post := &models.Post{
		Title:    truncate(title, models.MaxPostTitleLength),
		Content:  f.faker.Paragraph(f.faker.Number(2, 5), f.faker.Number(3, 6), 12, "\n\n"),
		AuthorID: author.ID,
		Status:   status,
	}
	post.CreatedAt = f.randomPast()
	post.UpdatedAt = post.CreatedAt

	if status == models.PostStatusPublished {
		published := post.CreatedAt.Add(time.Duration(f.faker.Number(0, 48*60)) * time.Minute)
		if now := time.Now().UTC(); published.After(now) {
			published = now
		}
		post.PublishedDate = &published
	}

	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePost persists a generated post, filed under category (which may be
// nil) and labelled with tags.
func (f *Factory) CreatePost(author *models.User, status models.PostStatus, category *models.Category, tags []models.Tag, overrides ...func(*models.Post)) (*models.Post, error) {
	post := f.BuildPost(author, status, overrides...)
	if category != nil {
		post.CategoryID = &category.ID
	}
	post.Tags = tags

	if f.opts.DryRun {
		post.ID = f.assignID()
		log.Printf("[dry-run] CreatePost: status=%s author=%d title=%q", post.Status, post.AuthorID, post.Title)
		return post, nil
	}

	if err := f.db.Omit("Author", "Category", "Tags.*").Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment persists a generated comment by user on post.
func (f *Factory) CreateComment(user *models.User, post *models.Post, overrides ...func(*models.Comment)) (*models.Comment, error) {
	comment := &models.Comment{
		Content:  f.faker.Sentence(f.faker.Number(6, 20)),
		AuthorID: user.ID,
		PostID:   post.ID,
	}
	comment.CreatedAt = f.after(post)
	comment.UpdatedAt = comment.CreatedAt

	for _, override := range overrides {
		override(comment)
	}

	if f.opts.DryRun {
		comment.ID = f.assignID()
		return comment, nil
	}
	if err := f.db.Omit(clause.Associations).Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateLike persists a like from user on post.
func (f *Factory) CreateLike(user *models.User, post *models.Post) error {
	if f.opts.DryRun {
		return nil
	}
	like := &models.Like{
		UserID:    user.ID,
		PostID:    post.ID,
		CreatedAt: f.after(post),
	}
	return f.db.Omit(clause.Associations).Create(like).Error
}

// CreateRating persists user's score for post.
func (f *Factory) CreateRating(user *models.User, post *models.Post, score int) error {
	if !models.ValidRatingScore(score) {
		return fmt.Errorf("rating score %d out of range", score)
	}
	if f.opts.DryRun {
		return nil
	}
	rating := &models.Rating{
		UserID: user.ID,
		PostID: post.ID,
		Score:  score,
	}
	rating.CreatedAt = f.after(post)
	rating.UpdatedAt = rating.CreatedAt
	return f.db.Omit(clause.Associations).Create(rating).Error
}

// CreateFollow persists a follow edge from follower to author.
func (f *Factory) CreateFollow(follower, author *models.User) error {
	if follower.ID == author.ID {
		return fmt.Errorf("user %d cannot follow themselves", follower.ID)
	}
	if f.opts.DryRun {
		return nil
	}
	return f.db.Omit(clause.Associations).Create(&models.Follow{
		FollowerID: follower.ID,
		AuthorID:   author.ID,
	}).Error
}

// CreateSubscription subscribes user to category.
func (f *Factory) CreateSubscription(user *models.User, category *models.Category) error {
	if f.opts.DryRun {
		return nil
	}
	return f.db.Omit(clause.Associations).Create(&models.CategorySubscription{
		UserID:     user.ID,
		CategoryID: category.ID,
	}).Error
}

// after returns a timestamp between the post's publication and now.
func (f *Factory) after(post *models.Post) time.Time {
	start := post.CreatedAt
	if post.PublishedDate != nil {
		start = *post.PublishedDate
	}
	now := time.Now().UTC()
	if start.IsZero() || !start.Before(now) {
		return now
	}
	span := int(now.Sub(start) / time.Minute)
	return start.Add(time.Duration(f.faker.Number(0, span)) * time.Minute)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n])
}
