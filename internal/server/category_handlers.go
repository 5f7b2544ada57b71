package server

import (
	"github.com/gofiber/fiber/v2"
)

type createCategoryRequest struct {
	Name string `json:"name" validate:"notblank,max=100"`
}

// GetCategories handles GET /api/categories
func (s *Server) GetCategories(c *fiber.Ctx) error {
	categories, err := s.categoryService.ListCategories(c.UserContext())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(categories)
}

// CreateCategory handles POST /api/categories. Admins only; the check lives
// in the category service.
func (s *Server) CreateCategory(c *fiber.Ctx) error {
	var req createCategoryRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	category, err := s.categoryService.CreateCategory(c.UserContext(), currentUserID(c), req.Name)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

// GetCategoryPosts handles GET /api/categories/:name/posts
func (s *Server) GetCategoryPosts(c *fiber.Ctx) error {
	page := parsePagination(c, defaultPaginationLimit)

	posts, err := s.feedService.Category(c.UserContext(), c.Params("name"), s.optionalUserID(c), page.page())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}

// SubscribeCategory handles POST /api/categories/:id/subscribe
func (s *Server) SubscribeCategory(c *fiber.Ctx) error {
	categoryID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.followService.SubscribeCategory(c.UserContext(), currentUserID(c), categoryID); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"subscribed": true, "category_id": categoryID})
}

// UnsubscribeCategory handles DELETE /api/categories/:id/subscribe
func (s *Server) UnsubscribeCategory(c *fiber.Ctx) error {
	categoryID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.followService.UnsubscribeCategory(c.UserContext(), currentUserID(c), categoryID); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"subscribed": false, "category_id": categoryID})
}

// GetTags handles GET /api/tags
func (s *Server) GetTags(c *fiber.Ctx) error {
	tags, err := s.categoryService.ListTags(c.UserContext())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(tags)
}
