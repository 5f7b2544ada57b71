package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const profilePostsLimit = 20

type UserService struct {
	userRepo     repository.UserRepository
	profileRepo  repository.ProfileRepository
	followRepo   repository.FollowRepository
	postRepo     repository.PostRepository
	categoryRepo repository.CategoryRepository
	hashCost     int
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// UpdateProfileInput carries a partial update; nil fields are left unchanged.
type UpdateProfileInput struct {
	UserID         uint
	Bio            *string
	Location       *string
	ProfilePicture *string
}

func NewUserService(
	userRepo repository.UserRepository,
	profileRepo repository.ProfileRepository,
	followRepo repository.FollowRepository,
	postRepo repository.PostRepository,
	categoryRepo repository.CategoryRepository,
) *UserService {
	return &UserService{
		userRepo:     userRepo,
		profileRepo:  profileRepo,
		followRepo:   followRepo,
		postRepo:     postRepo,
		categoryRepo: categoryRepo,
		hashCost:     bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

// Register creates the account and its default profile.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validation.ValidateCredentials(in.Username, in.Email, in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}
	existing, err = s.userRepo.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("Username is already taken")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	if _, err := s.profileRepo.EnsureForUser(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks an email and password pair. Any mismatch yields the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return user, nil
}

// IsAdmin reports whether userID holds the admin role. Unknown users are not admins.
func (s *UserService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.IsAdmin, nil
}

// GetProfile assembles the public profile of userID as seen by viewerID.
func (s *UserService) GetProfile(ctx context.Context, userID, viewerID uint) (*models.ProfileView, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profileRepo.EnsureForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	followers, err := s.followRepo.CountFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	following, err := s.followRepo.CountFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	var viewerFollows bool
	if viewerID != 0 && viewerID != userID {
		if viewerFollows, err = s.followRepo.Exists(ctx, viewerID, userID); err != nil {
			return nil, err
		}
	}

	posts, err := s.postRepo.List(ctx, repository.PostQuery{
		Status:   models.PostStatusPublished,
		AuthorID: userID,
		ViewerID: viewerID,
		Limit:    profilePostsLimit,
	})
	if err != nil {
		return nil, err
	}

	view := &models.ProfileView{
		Profile:        *profile,
		Username:       user.Username,
		FollowerCount:  followers,
		FollowingCount: following,
		Following:      viewerFollows,
		Posts:          make([]models.Post, 0, len(posts)),
	}
	for _, p := range posts {
		view.Posts = append(view.Posts, *p)
	}
	if viewerID != 0 && viewerID == userID {
		if view.SubscribedCategoryIDs, err = s.categoryRepo.SubscribedCategoryIDs(ctx, userID); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.ProfileView, error) {
	profile, err := s.profileRepo.EnsureForUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Bio != nil {
		if utf8.RuneCountInString(*in.Bio) > models.MaxBioLength {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		profile.Bio = *in.Bio
	}
	if in.Location != nil {
		if utf8.RuneCountInString(*in.Location) > models.MaxLocationLength {
			return nil, models.NewValidationError("Location too long (max 100 characters)")
		}
		profile.Location = strings.TrimSpace(*in.Location)
	}
	if in.ProfilePicture != nil {
		picture := strings.TrimSpace(*in.ProfilePicture)
		if picture == "" {
			picture = models.DefaultProfilePicture
		}
		profile.ProfilePicture = picture
	}

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, in.UserID, in.UserID)
}

// SetAdmin grants or revokes the admin role.
func (s *UserService) SetAdmin(ctx context.Context, targetID uint, isAdmin bool) (*models.User, error) {
	if err := s.userRepo.SetAdmin(ctx, targetID, isAdmin); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, targetID)
}
