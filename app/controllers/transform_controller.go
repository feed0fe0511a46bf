package controllers

import (
	"context"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/FelixHaller/RoomCanvas/internal/pkg/entitlements"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/objectstore"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/transform"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/usercontext"
)

var allowedUploadExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// entitlementChecker is the slice of the entitlement service the upload
// endpoint needs for its synchronous pre-check.
type entitlementChecker interface {
	CheckAndReserve(ctx context.Context, userID uint) (entitlements.Decision, error)
}

var (
	transformOrchestrator *transform.Orchestrator
	transformTracker      transform.StatusTracker
	transformStore        *objectstore.Client
	transformEntitlements entitlementChecker
)

// InitializeTransformController wires the orchestrator, the status tracker,
// the object store, and the entitlement service used by the transformation
// endpoints.
func InitializeTransformController(orc *transform.Orchestrator, tracker transform.StatusTracker, store *objectstore.Client, ents entitlementChecker) {
	transformOrchestrator = orc
	transformTracker = tracker
	transformStore = store
	transformEntitlements = ents
}

// HandleCreateTransformation accepts a property photo plus a room type and a
// design style, starts the transformation pipeline, and returns a request ID
// the client can poll.
// Security: session or API key required via router middleware
func HandleCreateTransformation(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}
	if transformOrchestrator == nil || transformEntitlements == nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Transformation pipeline not initialized")
	}

	roomType := strings.TrimSpace(c.FormValue("room_type"))
	style := strings.TrimSpace(c.FormValue("style"))
	if !transform.IsValidRoomType(roomType) {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown room type")
	}
	if !transform.IsValidStyle(style) {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown design style")
	}

	file, err := c.FormFile("image")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Image file missing")
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	contentType, ok := allowedUploadExtensions[ext]
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unsupported image type")
	}

	// Quick non-consuming check so a user over the limit gets an immediate
	// answer instead of a failed poll. Runs before the upload so a denied
	// request leaves nothing behind in the object store. The pipeline
	// re-checks before submitting work.
	decision, err := transformEntitlements.CheckAndReserve(c.Context(), user.UserID)
	if err != nil {
		log.Errorf("[Transform] Entitlement check failed for user %d: %v", user.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Entitlement check failed")
	}
	if !decision.Allowed {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":            "limit_exceeded",
			"message":          "Image limit reached. Upgrade your plan or buy an image pack.",
			"used_images":      decision.UsedImages,
			"available_images": decision.AvailableImages,
		})
	}

	imageURL, sourceKey, err := storeSourceImage(c.Context(), file, ext, contentType)
	if err != nil {
		log.Errorf("[Transform] Failed to store source image for user %d: %v", user.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store image")
	}

	requestID := uuid.New().String()
	req := transform.Request{
		RequestID: requestID,
		UserID:    user.UserID,
		ImageURL:  imageURL,
		RoomType:  roomType,
		Style:     style,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := transformOrchestrator.Run(ctx, req); err != nil {
			log.Errorf("[Transform] Request %s for user %d failed: %v", requestID, user.UserID, err)
			// Nothing references the uploaded photo after a failure.
			if err := transformStore.Delete(ctx, sourceKey); err != nil {
				log.Warnf("[Transform] Failed to clean up source image %s: %v", sourceKey, err)
			}
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"request_id": requestID,
		"status":     transform.StateCheckingLimit,
		"status_url": "/api/v1/transformations/" + requestID,
	})
}

// HandleTransformationStatus reports pipeline progress for a request ID.
// Security: session or API key required via router middleware
func HandleTransformationStatus(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	requestID := c.Params("id")
	if requestID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Request ID missing")
	}

	state := transformTracker.GetState(requestID)
	if state == "" {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown transformation request")
	}

	payload := fiber.Map{"request_id": requestID, "status": state}
	switch state {
	case transform.StateDone:
		payload["output_url"] = transformTracker.GetResult(requestID)
	case transform.StateFailed:
		payload["reason"] = transformTracker.GetFailure(requestID)
	}
	return c.JSON(payload)
}

// storeSourceImage uploads the user photo and returns a time-limited URL the
// inference provider can fetch it from, plus the stored object key.
func storeSourceImage(ctx context.Context, file *multipart.FileHeader, ext, contentType string) (string, string, error) {
	src, err := file.Open()
	if err != nil {
		return "", "", err
	}
	defer src.Close()

	now := time.Now()
	key := transformStore.Config().GetObjectKey(uuid.New().String(), ext, now.Year(), int(now.Month()))
	if _, err := transformStore.Upload(ctx, key, src, contentType); err != nil {
		return "", "", err
	}
	url, err := transformStore.PresignGet(ctx, key)
	if err != nil {
		return "", "", err
	}
	return url, key, nil
}
