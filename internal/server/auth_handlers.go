package server

import (
	"log/slog"
	"time"

	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,mail"`
	Password string `json:"password" validate:"required,password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Register handles POST /api/auth/register
func (s *Server) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	resp, err := s.authResponse(user)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondServiceError(c, err)
	}

	resp, err := s.authResponse(user)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(resp)
}

// Logout handles POST /api/auth/logout. The token's jti is blacklisted until
// the token would have expired anyway.
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*middleware.TokenClaims)
	if !ok || claims.JTI == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}

	if s.redis != nil {
		ttl := time.Until(claims.ExpiresAt)
		if ttl > 0 {
			if err := s.redis.Set(c.UserContext(), revokedTokenKey(claims.JTI), "1", ttl).Err(); err != nil {
				middleware.RedisErrors.WithLabelValues("token_blacklist").Inc()
				middleware.Logger.ErrorContext(c.UserContext(), "failed to revoke token",
					slog.Uint64("user_id", uint64(claims.UserID)),
					slog.String("error", err.Error()))
				return respondServiceError(c, models.NewInternalError(err))
			}
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) authResponse(user *models.User) (*AuthResponse, error) {
	token, claims, err := middleware.IssueToken(s.config, user.ID, user.Username)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		User:      user,
	}, nil
}
