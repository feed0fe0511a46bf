// Package transform sequences a single image transformation: entitlement
// check, generation, best-effort enhancement, consumption commit, and audit
// logging.
package transform

import (
	"context"
	"errors"
	"strings"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/entitlements"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/env"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/inference"
	"github.com/gofiber/fiber/v2/log"
)

// Typed failures surfaced to callers. Enhancement has no error of its own;
// it is best-effort and degrades silently.
var (
	ErrLimitExceeded    = errors.New("image limit exceeded")
	ErrBadInput         = errors.New("transformation input rejected")
	ErrGenerationFailed = errors.New("image generation failed")
	ErrTimeout          = errors.New("image generation timed out")
)

// Entitlements is the slice of the entitlement service the orchestrator uses.
type Entitlements interface {
	CheckAndReserve(ctx context.Context, userID uint) (entitlements.Decision, error)
	CommitConsumption(ctx context.Context, userID uint) error
}

// HistoryStore appends audit entries for delivered transformations.
type HistoryStore interface {
	Create(entry *models.ProcessingHistoryEntry) error
}

// ResultArchiver copies provider-hosted outputs into durable storage and
// returns a URL for the stored copy.
type ResultArchiver interface {
	ArchiveResult(ctx context.Context, requestID, resultURL string) (string, error)
}

// Request describes one transformation.
type Request struct {
	RequestID string
	UserID    uint
	ImageURL  string
	RoomType  string
	Style     string
}

// Result is the outcome of a completed transformation.
type Result struct {
	OutputURL string
	Enhanced  bool
	Decision  entitlements.Decision
}

// Orchestrator runs transformation requests end to end.
type Orchestrator struct {
	ents     Entitlements
	client   inference.Client
	history  HistoryStore
	tracker  Tracker
	archiver ResultArchiver

	generatePolicy inference.PollPolicy
	enhancePolicy  inference.PollPolicy

	generateVersion string
	enhanceVersion  string
}

// NewOrchestrator creates an orchestrator from injected dependencies. Both
// poll stages use the documented 1s/30-attempt policy unless overridden.
func NewOrchestrator(ents Entitlements, client inference.Client, history HistoryStore, tracker Tracker) *Orchestrator {
	return &Orchestrator{
		ents:            ents,
		client:          client,
		history:         history,
		tracker:         tracker,
		generatePolicy:  inference.DefaultPollPolicy(),
		enhancePolicy:   inference.DefaultPollPolicy(),
		generateVersion: env.GetEnv("INFERENCE_GENERATE_VERSION", ""),
		enhanceVersion:  env.GetEnv("INFERENCE_ENHANCE_VERSION", ""),
	}
}

// WithPollPolicies overrides the generation and enhancement poll policies.
func (o *Orchestrator) WithPollPolicies(generate, enhance inference.PollPolicy) *Orchestrator {
	o.generatePolicy = generate
	o.enhancePolicy = enhance
	return o
}

// WithArchiver enables copying delivered outputs into durable storage.
func (o *Orchestrator) WithArchiver(archiver ResultArchiver) *Orchestrator {
	o.archiver = archiver
	return o
}

// Run executes one transformation request. The consumption commit happens
// only after a usable output exists; a failed generation never charges the
// user.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == 0 {
		return nil, errors.New("user_id is required")
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, ErrBadInput
	}

	o.tracker.SetState(req.RequestID, StateCheckingLimit)
	decision, err := o.ents.CheckAndReserve(ctx, req.UserID)
	if err != nil {
		o.tracker.SetFailure(req.RequestID, "internal_error")
		return nil, err
	}
	if !decision.Allowed {
		o.tracker.SetFailure(req.RequestID, string(decision.Reason))
		return nil, ErrLimitExceeded
	}

	o.tracker.SetState(req.RequestID, StateSubmitting)
	jobID, err := o.client.CreateJob(ctx, inference.JobRequest{
		Version:  o.generateVersion,
		ImageURL: req.ImageURL,
		Prompt:   ComposePrompt(req.RoomType, req.Style),
	})
	if err != nil {
		if errors.Is(err, inference.ErrBadInput) {
			o.tracker.SetFailure(req.RequestID, "bad_input")
			return nil, ErrBadInput
		}
		o.tracker.SetFailure(req.RequestID, "generation_failed")
		return nil, ErrGenerationFailed
	}

	o.tracker.SetState(req.RequestID, StatePolling)
	outputURL, err := o.generatePolicy.WaitForOutput(ctx, o.client, jobID)
	if err != nil {
		if errors.Is(err, inference.ErrPollTimeout) {
			o.tracker.SetFailure(req.RequestID, "timeout")
			return nil, ErrTimeout
		}
		o.tracker.SetFailure(req.RequestID, "generation_failed")
		return nil, ErrGenerationFailed
	}

	// Enhancement is best-effort: any failure here falls back to the
	// generation output, never to a failed request.
	o.tracker.SetState(req.RequestID, StateEnhancing)
	finalURL, enhanced := o.enhance(ctx, outputURL)

	// Provider output URLs expire; archive a durable copy when a store is
	// configured. Archive failures keep the provider URL.
	if o.archiver != nil {
		if archivedURL, err := o.archiver.ArchiveResult(ctx, req.RequestID, finalURL); err != nil {
			log.Warnf("[Transform] result archiving failed for request %s, keeping provider URL: %v", req.RequestID, err)
		} else {
			finalURL = archivedURL
		}
	}

	o.tracker.SetState(req.RequestID, StateCommitting)
	if err := o.ents.CommitConsumption(ctx, req.UserID); err != nil {
		// The output is already delivered at this point; commit failures are
		// logged, never propagated.
		log.Errorf("[Transform] consumption commit failed for user %d request %s: %v", req.UserID, req.RequestID, err)
	}

	entry := &models.ProcessingHistoryEntry{
		UserID:           req.UserID,
		OriginalImageRef: req.ImageURL,
		EnhancedImageRef: finalURL,
		ProcessingType:   models.ProcessingTypeRedesign,
	}
	if err := o.history.Create(entry); err != nil {
		// History is best-effort; the consumption stands either way.
		log.Errorf("[Transform] history append failed for user %d request %s: %v", req.UserID, req.RequestID, err)
	}

	o.tracker.SetResult(req.RequestID, finalURL)
	return &Result{
		OutputURL: finalURL,
		Enhanced:  enhanced,
		Decision:  decision,
	}, nil
}

// enhance runs the upscale job and returns the enhanced output, or the
// original output when enhancement fails or times out.
func (o *Orchestrator) enhance(ctx context.Context, generatedURL string) (string, bool) {
	jobID, err := o.client.CreateJob(ctx, inference.JobRequest{
		Version:  o.enhanceVersion,
		ImageURL: generatedURL,
		Params: map[string]interface{}{
			"scale": 2,
		},
	})
	if err != nil {
		log.Warnf("[Transform] enhancement submission failed, using unenhanced output: %v", err)
		return generatedURL, false
	}

	enhancedURL, err := o.enhancePolicy.WaitForOutput(ctx, o.client, jobID)
	if err != nil {
		log.Warnf("[Transform] enhancement did not complete, using unenhanced output: %v", err)
		return generatedURL, false
	}
	return enhancedURL, true
}
