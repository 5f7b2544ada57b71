package seed

import (
	"fmt"
	"log"

	"inkwell/internal/database"
	"inkwell/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool

	// DraftRatio is the share of posts left unpublished, 0..1.
	DraftRatio float64
	// MaxDays bounds how far back generated timestamps go.
	MaxDays int
	// SkipBcrypt hashes the shared password at minimum cost.
	SkipBcrypt bool
	// DryRun builds entities with synthetic IDs and writes nothing.
	DryRun bool
	// RandSeed makes a run reproducible when non-zero.
	RandSeed int64
}

// Result counts what a Seed run created.
type Result struct {
	Users         int
	Posts         int
	Published     int
	Follows       int
	Subscriptions int
	Likes         int
	Ratings       int
	Comments      int
}

// Seed populates the database with the catalog and generated demo content.
func Seed(db *gorm.DB, opts Options) (*Result, error) {
	if opts.NumUsers < 1 {
		return nil, fmt.Errorf("seed needs at least one user, got %d", opts.NumUsers)
	}
	if opts.NumPosts < 0 {
		return nil, fmt.Errorf("post count must not be negative, got %d", opts.NumPosts)
	}
	if opts.DraftRatio < 0 || opts.DraftRatio > 1 {
		return nil, fmt.Errorf("draft ratio %.2f is not within 0..1", opts.DraftRatio)
	}

	log.Printf("Seeding database with %d users and %d posts...", opts.NumUsers, opts.NumPosts)

	var (
		categories []models.Category
		tags       []models.Tag
	)
	if !opts.DryRun {
		if opts.ShouldClean {
			log.Println("Clearing existing data...")
			if err := database.TruncateAllTables(db); err != nil {
				return nil, fmt.Errorf("failed to clear data: %w", err)
			}
		}
		if err := Catalog(db); err != nil {
			return nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
		if err := db.Order("id").Find(&categories).Error; err != nil {
			return nil, fmt.Errorf("failed to load categories: %w", err)
		}
		if err := db.Order("id").Find(&tags).Error; err != nil {
			return nil, fmt.Errorf("failed to load tags: %w", err)
		}
	}

	s := &seeder{
		factory:    NewFactory(db, opts),
		opts:       opts,
		categories: categories,
		tags:       tags,
		result:     &Result{},
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"users", s.createUsers},
		{"posts", s.createPosts},
		{"follows", s.createFollows},
		{"subscriptions", s.createSubscriptions},
		{"engagement", s.createEngagement},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return s.result, fmt.Errorf("failed to create %s: %w", step.name, err)
		}
	}

	r := s.result
	log.Printf("✓ %d users, %d posts (%d published), %d follows, %d subscriptions",
		r.Users, r.Posts, r.Published, r.Follows, r.Subscriptions)
	log.Printf("✓ %d likes, %d ratings, %d comments", r.Likes, r.Ratings, r.Comments)
	log.Println("Database seeding completed")
	return r, nil
}

type seeder struct {
	factory    *Factory
	opts       Options
	categories []models.Category
	tags       []models.Tag

	users     []*models.User
	published []*models.Post
	result    *Result
}

func (s *seeder) chance(p float64) bool {
	return s.factory.Faker().Float64Range(0, 1) < p
}

func (s *seeder) createUsers() error {
	for i := 0; i < s.opts.NumUsers; i++ {
		user, err := s.factory.CreateUser()
		if err != nil {
			return err
		}
		s.users = append(s.users, user)
		if (i+1)%100 == 0 {
			log.Printf("Created %d users...", i+1)
		}
	}
	s.result.Users = len(s.users)
	return nil
}

func (s *seeder) createPosts() error {
	faker := s.factory.Faker()
	draftRatio := s.opts.DraftRatio
	if draftRatio == 0 {
		draftRatio = 0.2
	}

	for i := 0; i < s.opts.NumPosts; i++ {
		author := s.users[faker.Number(0, len(s.users)-1)]

		status := models.PostStatusPublished
		if s.chance(draftRatio) {
			status = models.PostStatusDraft
		}

		var category *models.Category
		if len(s.categories) > 0 && s.chance(0.9) {
			category = &s.categories[faker.Number(0, len(s.categories)-1)]
		}

		post, err := s.factory.CreatePost(author, status, category, s.pickTags())
		if err != nil {
			return err
		}
		s.result.Posts++
		if post.IsPublished() {
			s.published = append(s.published, post)
		}
	}
	s.result.Published = len(s.published)
	return nil
}

func (s *seeder) pickTags() []models.Tag {
	if len(s.tags) == 0 {
		return nil
	}
	faker := s.factory.Faker()
	n := faker.Number(0, 3)
	picked := make([]models.Tag, 0, n)
	seen := make(map[uint]struct{}, n)
	for len(picked) < n && len(seen) < len(s.tags) {
		tag := s.tags[faker.Number(0, len(s.tags)-1)]
		if _, dup := seen[tag.ID]; dup {
			continue
		}
		seen[tag.ID] = struct{}{}
		picked = append(picked, tag)
	}
	return picked
}

// createFollows gives each user up to three distinct authors to follow.
func (s *seeder) createFollows() error {
	if len(s.users) < 2 {
		return nil
	}
	faker := s.factory.Faker()
	for _, follower := range s.users {
		want := faker.Number(0, min(3, len(s.users)-1))
		seen := map[uint]struct{}{follower.ID: {}}
		for len(seen)-1 < want {
			author := s.users[faker.Number(0, len(s.users)-1)]
			if _, dup := seen[author.ID]; dup {
				continue
			}
			seen[author.ID] = struct{}{}
			if err := s.factory.CreateFollow(follower, author); err != nil {
				return err
			}
			s.result.Follows++
		}
	}
	return nil
}

func (s *seeder) createSubscriptions() error {
	if len(s.categories) == 0 {
		return nil
	}
	faker := s.factory.Faker()
	for _, user := range s.users {
		want := faker.Number(0, min(2, len(s.categories)))
		seen := make(map[uint]struct{}, want)
		for len(seen) < want {
			category := &s.categories[faker.Number(0, len(s.categories)-1)]
			if _, dup := seen[category.ID]; dup {
				continue
			}
			seen[category.ID] = struct{}{}
			if err := s.factory.CreateSubscription(user, category); err != nil {
				return err
			}
			s.result.Subscriptions++
		}
	}
	return nil
}

// createEngagement lets every user react to published posts. Drafts are
// never engaged with.
func (s *seeder) createEngagement() error {
	faker := s.factory.Faker()
	for _, post := range s.published {
		for _, user := range s.users {
			if user.ID == post.AuthorID {
				continue
			}
			if s.chance(0.3) {
				if err := s.factory.CreateLike(user, post); err != nil {
					return err
				}
				s.result.Likes++
			}
			if s.chance(0.2) {
				if err := s.factory.CreateRating(user, post, faker.Number(models.MinRatingScore, models.MaxRatingScore)); err != nil {
					return err
				}
				s.result.Ratings++
			}
			if s.chance(0.1) {
				if _, err := s.factory.CreateComment(user, post); err != nil {
					return err
				}
				s.result.Comments++
			}
		}
	}
	return nil
}
