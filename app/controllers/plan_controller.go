package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FelixHaller/RoomCanvas/app/repository"
)

// HandlePlans returns the public plan catalog.
func HandlePlans(c *fiber.Ctx) error {
	plans, err := repository.GetGlobalFactory().GetPlanRepository().GetAll()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load plans")
	}

	items := make([]fiber.Map, 0, len(plans))
	for _, plan := range plans {
		items = append(items, fiber.Map{
			"id":              plan.ID,
			"name":            plan.Name,
			"price":           plan.Price,
			"included_images": plan.IncludedImages,
			"description":     plan.Description,
		})
	}

	return c.JSON(fiber.Map{"plans": items})
}
