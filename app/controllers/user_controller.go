package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/FelixHaller/RoomCanvas/app/repository"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/database"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/entitlements"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/usercontext"
)

// HandleUserUsage returns the authenticated user's consumption figures and
// active subscription.
func HandleUserUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	if userCtx.IsLegacy {
		return c.JSON(fiber.Map{
			"legacy":    true,
			"unlimited": true,
		})
	}

	svc := entitlements.NewServiceFromDB(database.GetDB())
	ledger, err := svc.Usage(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load usage")
	}

	response := fiber.Map{
		"legacy":           false,
		"used_images":      ledger.UsedImages,
		"available_images": ledger.AvailableImages,
		"remaining":        ledger.Remaining(),
	}

	subRepo := repository.GetGlobalFactory().GetSubscriptionRepository()
	sub, err := subRepo.GetActiveByUserID(userCtx.UserID)
	switch {
	case err == nil:
		plan := fiber.Map{"id": sub.PlanID}
		if sub.Plan != nil {
			plan["name"] = sub.Plan.Name
			plan["included_images"] = sub.Plan.IncludedImages
		}
		response["subscription"] = fiber.Map{
			"plan":                 plan,
			"status":               sub.Status,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
			"current_period_end":   formatTimePtr(sub.CurrentPeriodEnd),
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		response["subscription"] = nil
	default:
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscription")
	}

	return c.JSON(response)
}

// HandleUserHistory returns the user's processing history, newest first.
func HandleUserHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	repo := repository.GetGlobalFactory().GetHistoryRepository()
	entries, err := repo.GetByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load history")
	}
	total, err := repo.CountByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load history")
	}

	items := make([]fiber.Map, 0, len(entries))
	for _, entry := range entries {
		items = append(items, fiber.Map{
			"id":              entry.ID,
			"original_image":  entry.OriginalImageRef,
			"enhanced_image":  entry.EnhancedImageRef,
			"processing_type": entry.ProcessingType,
			"created_at":      entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"items": items,
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

// HandleIssueAPIKey generates a fresh API key for the user. The raw secret is
// returned exactly once; only its hash is stored.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	rawKey, err := user.IssueAPIKey()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to generate API key")
	}
	if err := repo.Update(user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store API key")
	}

	return c.JSON(fiber.Map{
		"api_key":    rawKey,
		"prefix":     user.APIKeyPrefix,
		"created_at": formatTimePtr(user.APIKeyCreatedAt),
	})
}

// HandleRevokeAPIKey invalidates the user's current API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	if !user.HasActiveAPIKey() {
		return jsonError(c, fiber.StatusConflict, "conflict", "No active API key")
	}

	user.RevokeAPIKey()
	if err := repo.Update(user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to revoke API key")
	}

	return c.JSON(fiber.Map{"revoked": true})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
