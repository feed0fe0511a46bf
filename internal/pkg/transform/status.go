package transform

import (
	"fmt"
	"time"

	"github.com/FelixHaller/RoomCanvas/internal/pkg/cache"
)

// Cache key formats for transformation request tracking
const (
	requestStateKeyFormat  = "transform:state:%s"  // transform:state:<uuid>
	requestResultKeyFormat = "transform:result:%s" // transform:result:<uuid>
	requestErrorKeyFormat  = "transform:error:%s"  // transform:error:<uuid>

	requestTTL = 24 * time.Hour
)

// States a transformation request passes through. Terminal states are
// StateDone and StateFailed.
const (
	StateCheckingLimit = "checking_limit"
	StateSubmitting    = "submitting"
	StatePolling       = "polling"
	StateEnhancing     = "enhancing"
	StateCommitting    = "committing"
	StateDone          = "done"
	StateFailed        = "failed"
)

// Tracker records per-request progress so clients can poll it. Implementations
// are best-effort: tracking failures never fail the transformation.
type Tracker interface {
	SetState(requestID, state string)
	SetResult(requestID, outputURL string)
	SetFailure(requestID, reason string)
}

// StatusTracker extends Tracker with read access for status endpoints.
type StatusTracker interface {
	Tracker
	GetState(requestID string) string
	GetResult(requestID string) string
	GetFailure(requestID string) string
}

// CacheTracker stores request progress in Redis.
type CacheTracker struct{}

// NewCacheTracker creates a Redis-backed progress tracker.
func NewCacheTracker() *CacheTracker {
	return &CacheTracker{}
}

func (t *CacheTracker) SetState(requestID, state string) {
	_ = cache.Set(fmt.Sprintf(requestStateKeyFormat, requestID), state, requestTTL)
}

func (t *CacheTracker) SetResult(requestID, outputURL string) {
	t.SetState(requestID, StateDone)
	_ = cache.Set(fmt.Sprintf(requestResultKeyFormat, requestID), outputURL, requestTTL)
}

func (t *CacheTracker) SetFailure(requestID, reason string) {
	t.SetState(requestID, StateFailed)
	_ = cache.Set(fmt.Sprintf(requestErrorKeyFormat, requestID), reason, requestTTL)
}

// GetState returns the recorded state for a request, or empty when unknown.
func (t *CacheTracker) GetState(requestID string) string {
	state, err := cache.Get(fmt.Sprintf(requestStateKeyFormat, requestID))
	if err != nil {
		return ""
	}
	return state
}

// GetResult returns the final output reference for a completed request.
func (t *CacheTracker) GetResult(requestID string) string {
	result, err := cache.Get(fmt.Sprintf(requestResultKeyFormat, requestID))
	if err != nil {
		return ""
	}
	return result
}

// GetFailure returns the recorded failure reason, or empty.
func (t *CacheTracker) GetFailure(requestID string) string {
	reason, err := cache.Get(fmt.Sprintf(requestErrorKeyFormat, requestID))
	if err != nil {
		return ""
	}
	return reason
}
