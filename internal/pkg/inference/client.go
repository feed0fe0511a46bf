// Package inference wraps the external image-generation provider: an
// untrusted, slow, fallible black box reached over HTTP and observed by
// polling job status.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FelixHaller/RoomCanvas/internal/pkg/env"
)

const defaultInferenceAPIBaseURL = "https://api.replicate.com/v1"

// ErrBadInput marks provider-level validation rejections of a submission.
var ErrBadInput = errors.New("inference provider rejected the input")

// Status is the provider-side lifecycle of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// JobRequest describes a transformation or enhancement job submission.
type JobRequest struct {
	// Version selects the provider model.
	Version string
	// ImageURL is a reference the provider can fetch; raw bytes never pass
	// through this service.
	ImageURL string
	Prompt   string
	Params   map[string]interface{}
}

// JobStatus is a snapshot of a submitted job.
type JobStatus struct {
	ID        string
	Status    Status
	OutputURL string
	Error     string
}

// Client submits jobs and reads their status.
type Client interface {
	CreateJob(ctx context.Context, req JobRequest) (string, error)
	GetJob(ctx context.Context, jobID string) (*JobStatus, error)
}

// HTTPClient talks to the provider's prediction API.
type HTTPClient struct {
	APIBaseURL string
	APIToken   string

	HTTP *http.Client
}

// NewClientFromEnv builds the provider client from environment configuration.
// A missing API token is an unrecoverable configuration error.
func NewClientFromEnv() *HTTPClient {
	token := strings.TrimSpace(env.GetEnv("INFERENCE_API_TOKEN", ""))
	if token == "" {
		panic("INFERENCE_API_TOKEN is not configured")
	}
	return &HTTPClient{
		APIBaseURL: strings.TrimRight(env.GetEnv("INFERENCE_API_BASE_URL", defaultInferenceAPIBaseURL), "/"),
		APIToken:   token,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateJob submits a prediction and returns the provider job id.
func (c *HTTPClient) CreateJob(ctx context.Context, req JobRequest) (string, error) {
	input := map[string]interface{}{
		"image": req.ImageURL,
	}
	if req.Prompt != "" {
		input["prompt"] = req.Prompt
	}
	for k, v := range req.Params {
		input[k] = v
	}
	payload, err := json.Marshal(map[string]interface{}{
		"version": req.Version,
		"input":   input,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/predictions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Token "+c.APIToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrBadInput, resp.StatusCode, string(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("inference job submission failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("inference job submission returned empty id")
	}
	return out.ID, nil
}

// GetJob reads the current status of a job.
func (c *HTTPClient) GetJob(ctx context.Context, jobID string) (*JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("job id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+"/predictions/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Token "+c.APIToken)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inference status request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var raw struct {
		ID     string          `json:"id"`
		Status string          `json:"status"`
		Output json.RawMessage `json:"output"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	return &JobStatus{
		ID:        raw.ID,
		Status:    normalizeStatus(raw.Status),
		OutputURL: firstOutputURL(raw.Output),
		Error:     strings.TrimSpace(raw.Error),
	}, nil
}

func normalizeStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "starting", "queued", "pending":
		return StatusQueued
	case "processing", "running":
		return StatusProcessing
	case "succeeded", "success", "completed":
		return StatusSucceeded
	case "failed", "canceled", "cancelled", "error":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// firstOutputURL handles both output shapes the provider uses: a plain URL
// string, or an array of URLs where the first entry is the primary result.
func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return strings.TrimSpace(many[0])
	}
	return ""
}
