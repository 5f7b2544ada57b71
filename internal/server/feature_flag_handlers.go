package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags handles GET /api/admin/feature-flags. It lists the
// effective rule of every flag and how each evaluates for the calling admin.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"rules":     s.featureFlags.Rules(),
		"evaluated": s.featureFlags.Snapshot(currentUserID(c)),
	})
}
