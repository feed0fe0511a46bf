package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/FelixHaller/RoomCanvas/app/repository"
)

// HandleAdminUsers lists accounts for the admin panel, newest first.
func HandleAdminUsers(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	factory := repository.GetGlobalFactory()
	repo := factory.GetUserRepository()
	users, err := repo.List(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load users")
	}
	total, err := repo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load users")
	}

	ledgers := factory.GetConsumptionRepository()
	items := make([]fiber.Map, 0, len(users))
	for _, user := range users {
		item := fiber.Map{
			"id":         user.ID,
			"name":       user.Name,
			"email":      user.Email,
			"role":       user.Role,
			"status":     user.Status,
			"is_legacy":  user.IsLegacyUser,
			"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
		}
		if user.LastLoginAt != nil {
			item["last_login_at"] = user.LastLoginAt.UTC().Format(time.RFC3339)
		}
		if ledger, err := ledgers.GetByUserID(user.ID); err == nil {
			item["used_images"] = ledger.UsedImages
			item["available_images"] = ledger.AvailableImages
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{
		"items": items,
		"page":  page,
		"limit": limit,
		"total": total,
	})
}
