package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelixHaller/RoomCanvas/internal/pkg/entitlements"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/transform"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/usercontext"
)

type memoryTracker struct {
	states   map[string]string
	results  map[string]string
	failures map[string]string
}

func newMemoryTracker() *memoryTracker {
	return &memoryTracker{
		states:   map[string]string{},
		results:  map[string]string{},
		failures: map[string]string{},
	}
}

func (t *memoryTracker) SetState(requestID, state string) { t.states[requestID] = state }

func (t *memoryTracker) SetResult(requestID, outputURL string) {
	t.states[requestID] = transform.StateDone
	t.results[requestID] = outputURL
}

func (t *memoryTracker) SetFailure(requestID, reason string) {
	t.states[requestID] = transform.StateFailed
	t.failures[requestID] = reason
}

func (t *memoryTracker) GetState(requestID string) string   { return t.states[requestID] }
func (t *memoryTracker) GetResult(requestID string) string  { return t.results[requestID] }
func (t *memoryTracker) GetFailure(requestID string) string { return t.failures[requestID] }

func newStatusTestApp(tracker transform.StatusTracker, loggedIn bool) *fiber.App {
	InitializeTransformController(nil, tracker, nil, nil)

	app := fiber.New()
	app.Get("/api/v1/transformations/:id", func(c *fiber.Ctx) error {
		c.Locals("USER_CONTEXT", usercontext.UserContext{UserID: 7, Username: "tester", IsLoggedIn: loggedIn})
		return HandleTransformationStatus(c)
	})
	return app
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

type denyAllChecker struct {
	calls int
}

func (d *denyAllChecker) CheckAndReserve(ctx context.Context, userID uint) (entitlements.Decision, error) {
	d.calls++
	return entitlements.Decision{
		Allowed:         false,
		Reason:          entitlements.DenyReasonLimitExceeded,
		UsedImages:      5,
		AvailableImages: 5,
	}, nil
}

func newUploadRequest(t *testing.T) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("room_type", "living_room"))
	require.NoError(t, w.WriteField("style", "scandinavian"))
	part, err := w.CreateFormFile("image", "room.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/transformations", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHandleCreateTransformation_DeniedBeforeUpload(t *testing.T) {
	checker := &denyAllChecker{}
	// The nil object store panics on any upload attempt; a denied request
	// must be turned away before it gets there.
	tracker := newMemoryTracker()
	InitializeTransformController(transform.NewOrchestrator(nil, nil, nil, tracker), tracker, nil, checker)

	app := fiber.New()
	app.Post("/api/v1/transformations", func(c *fiber.Ctx) error {
		c.Locals("USER_CONTEXT", usercontext.UserContext{UserID: 7, Username: "tester", IsLoggedIn: true})
		return HandleCreateTransformation(c)
	})

	resp, err := app.Test(newUploadRequest(t), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, 1, checker.calls)

	payload := decodeBody(t, resp)
	assert.Equal(t, "limit_exceeded", payload["error"])
	assert.Equal(t, float64(5), payload["used_images"])
	assert.Equal(t, float64(5), payload["available_images"])
}

func TestHandleTransformationStatus_InProgress(t *testing.T) {
	tracker := newMemoryTracker()
	tracker.SetState("req-1", transform.StatePolling)
	app := newStatusTestApp(tracker, true)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/transformations/req-1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, transform.StatePolling, payload["status"])
	assert.NotContains(t, payload, "output_url")
}

func TestHandleTransformationStatus_Done(t *testing.T) {
	tracker := newMemoryTracker()
	tracker.SetResult("req-1", "https://cdn.example/out.png")
	app := newStatusTestApp(tracker, true)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/transformations/req-1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, transform.StateDone, payload["status"])
	assert.Equal(t, "https://cdn.example/out.png", payload["output_url"])
}

func TestHandleTransformationStatus_Failed(t *testing.T) {
	tracker := newMemoryTracker()
	tracker.SetFailure("req-1", "limit_exceeded")
	app := newStatusTestApp(tracker, true)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/transformations/req-1", nil), -1)
	require.NoError(t, err)

	payload := decodeBody(t, resp)
	assert.Equal(t, transform.StateFailed, payload["status"])
	assert.Equal(t, "limit_exceeded", payload["reason"])
}

func TestHandleTransformationStatus_Unknown(t *testing.T) {
	app := newStatusTestApp(newMemoryTracker(), true)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/transformations/req-unknown", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHandleTransformationStatus_RequiresAuth(t *testing.T) {
	app := newStatusTestApp(newMemoryTracker(), false)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/transformations/req-1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
