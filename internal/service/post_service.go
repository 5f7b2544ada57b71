package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/repository"
)

type PostService struct {
	postRepo       repository.PostRepository
	engagementRepo repository.EngagementRepository
	notify         NotificationTrigger
	publicBaseURL  string
	now            func() time.Time
}

type CreatePostInput struct {
	AuthorID uint
	Title    string
	Content  string
	// Category names the category; unknown names are created.
	Category *string
	Tags     []string
	// Publish stores the post as PUBLISHED straight away.
	Publish bool
}

type ListPostsInput struct {
	Search   string
	Category string
	Tag      string
	ViewerID uint
	Limit    int
	Offset   int
}

// UpdatePostInput carries a partial update; nil fields are left unchanged.
type UpdatePostInput struct {
	UserID   uint
	PostID   uint
	Title    *string
	Content  *string
	Category *string
	Tags     *[]string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

// ShareResult is returned after a share is recorded.
type ShareResult struct {
	ShareURL    string `json:"share_url"`
	SharesCount int64  `json:"shares_count"`
}

func NewPostService(
	postRepo repository.PostRepository,
	engagementRepo repository.EngagementRepository,
	notify NotificationTrigger,
	publicBaseURL string,
) *PostService {
	return &PostService{
		postRepo:       postRepo,
		engagementRepo: engagementRepo,
		notify:         triggerOrNoop(notify),
		publicBaseURL:  strings.TrimRight(publicBaseURL, "/"),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return models.NewValidationError("Title is required")
	}
	if utf8.RuneCountInString(title) > models.MaxPostTitleLength {
		return models.NewValidationError("Title too long (max 255 characters)")
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	return nil
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:    strings.TrimSpace(in.Title),
		Content:  in.Content,
		AuthorID: in.AuthorID,
		Status:   models.PostStatusDraft,
	}
	if in.Publish {
		now := s.now()
		post.Status = models.PostStatusPublished
		post.PublishedDate = &now
	}

	rel := repository.PostRelations{CategoryName: in.Category}
	if in.Tags != nil {
		rel.TagNames = &in.Tags
	}
	if err := s.postRepo.Create(ctx, post, rel); err != nil {
		return nil, err
	}

	created, err := s.postRepo.GetByID(ctx, post.ID, in.AuthorID)
	if err != nil {
		return nil, err
	}
	if created.IsPublished() {
		cache.InvalidateTopPosts(ctx)
		s.notify.OnPostPublished(ctx, created)
	}
	return created, nil
}

// GetPost returns a post the viewer may see, with the viewer's own rating.
func (s *PostService) GetPost(ctx context.Context, id uint, viewerID uint) (*models.Post, error) {
	post, err := s.visiblePost(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	if viewerID != 0 {
		rating, err := s.engagementRepo.GetRating(ctx, viewerID, id)
		if err != nil {
			return nil, err
		}
		if rating != nil {
			post.MyRating = &rating.Score
		}
	}
	return post, nil
}

// visiblePost reports drafts of other authors as missing.
func (s *PostService) visiblePost(ctx context.Context, id, viewerID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	if !post.IsVisibleTo(viewerID) {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}

// ListPosts returns published posts matching the filters, newest first.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	return s.postRepo.List(ctx, repository.PostQuery{
		Status:       models.PostStatusPublished,
		Search:       in.Search,
		CategoryName: strings.TrimSpace(in.Category),
		Tag:          strings.TrimSpace(in.Tag),
		ViewerID:     in.ViewerID,
		Limit:        in.Limit,
		Offset:       in.Offset,
	})
}

// ownedPost loads a post for mutation by userID.
func (s *PostService) ownedPost(ctx context.Context, postID, userID uint, action string) (*models.Post, error) {
	post, err := s.visiblePost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != userID {
		return nil, models.NewPermissionError(fmt.Sprintf("You can only %s your own posts", action))
	}
	return post, nil
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.ownedPost(ctx, in.PostID, in.UserID, "update")
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return nil, err
		}
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
		post.Content = *in.Content
	}

	rel := repository.PostRelations{CategoryName: in.Category, TagNames: in.Tags}
	if err := s.postRepo.Update(ctx, post, rel); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, post.ID, in.UserID)
}

// PublishPost moves a draft to PUBLISHED. Concurrent callers race on a
// conditional update, so exactly one of them succeeds.
func (s *PostService) PublishPost(ctx context.Context, postID, userID uint) (*models.Post, error) {
	post, err := s.ownedPost(ctx, postID, userID, "publish")
	if err != nil {
		return nil, err
	}
	if post.IsPublished() {
		return nil, models.NewStateError("Post is already published")
	}

	ok, err := s.postRepo.Publish(ctx, postID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewStateError("Post is already published")
	}

	published, err := s.postRepo.GetByID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	cache.InvalidateTopPosts(ctx)
	s.notify.OnPostPublished(ctx, published)
	return published, nil
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	if _, err := s.ownedPost(ctx, in.PostID, in.UserID, "delete"); err != nil {
		return err
	}
	if err := s.postRepo.Delete(ctx, in.PostID); err != nil {
		return err
	}
	cache.InvalidateTopPosts(ctx)
	return nil
}

// SharePost records a share of a published post and returns its public link.
func (s *PostService) SharePost(ctx context.Context, postID, userID uint) (*ShareResult, error) {
	post, err := s.visiblePost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !post.IsPublished() {
		return nil, models.NewStateError("Drafts cannot be shared")
	}

	if err := s.engagementRepo.RecordShare(ctx, userID, postID); err != nil {
		return nil, err
	}
	count, err := s.engagementRepo.CountShares(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &ShareResult{
		ShareURL:    fmt.Sprintf("%s/posts/%d", s.publicBaseURL, postID),
		SharesCount: count,
	}, nil
}
