package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /api/feed: published posts from followed authors and
// subscribed categories.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	page := parsePagination(c, defaultPaginationLimit)

	posts, err := s.feedService.User(c.UserContext(), currentUserID(c), page.page())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}

// GetExplore handles GET /api/explore: every published post, newest first.
func (s *Server) GetExplore(c *fiber.Ctx) error {
	page := parsePagination(c, defaultPaginationLimit)

	posts, err := s.feedService.Global(c.UserContext(), s.optionalUserID(c), page.page())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}

// GetDrafts handles GET /api/drafts
func (s *Server) GetDrafts(c *fiber.Ctx) error {
	page := parsePagination(c, defaultPaginationLimit)

	posts, err := s.feedService.Drafts(c.UserContext(), currentUserID(c), page.page())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}
