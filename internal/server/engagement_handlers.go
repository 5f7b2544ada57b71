package server

import (
	"encoding/json"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const defaultTopPostsLimit = 10

const scoreMessage = "Score must be a whole number from 1 to 5"

type rateRequest struct {
	Score *json.Number `json:"score" validate:"required"`
}

// score rejects fractional and exponent forms before range checks run.
func (r rateRequest) score() (int, error) {
	n, err := r.Score.Int64()
	if err != nil {
		return 0, models.NewValidationError(scoreMessage)
	}
	return int(n), nil
}

// ToggleLike handles POST /api/posts/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := s.parsePostID(c)
	if err != nil {
		return nil
	}

	result, err := s.engagementService.ToggleLike(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}

// UnlikePost handles DELETE /api/posts/:id/like
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	id, err := s.parsePostID(c)
	if err != nil {
		return nil
	}

	result, err := s.engagementService.Unlike(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}

// RatePost handles POST /api/posts/:id/rate
// A second rating by the same user replaces the first.
func (s *Server) RatePost(c *fiber.Ctx) error {
	id, err := s.parsePostID(c)
	if err != nil {
		return nil
	}
	var req rateRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(scoreMessage))
	}
	if err := validation.Struct(req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(err.Error()))
	}
	score, err := req.score()
	if err != nil {
		return respondServiceError(c, err)
	}

	rating, err := s.engagementService.Rate(c.UserContext(), currentUserID(c), id, score)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(rating)
}

// GetTopPosts handles GET /api/posts/top?limit=&window=
// window is a Go duration such as 168h; empty means all time.
func (s *Server) GetTopPosts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultTopPostsLimit)

	var window time.Duration
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid window duration"))
		}
		window = d
	}

	posts, err := s.aggregator.TopPosts(c.UserContext(), limit, window, s.optionalUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}
