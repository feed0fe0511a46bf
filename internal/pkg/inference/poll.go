package inference

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobFailed is returned when the provider reports a terminal failure.
	ErrJobFailed = errors.New("inference job failed")
	// ErrPollTimeout is returned when the attempt ceiling is exhausted before
	// the job reaches a terminal state.
	ErrPollTimeout = errors.New("inference job polling timed out")
)

// PollPolicy bounds the status-polling loop. Sleep is injectable so tests can
// simulate success, failure, and timeout without real delays.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       func(time.Duration)
}

// DefaultPollPolicy is the documented production behavior: 1-second interval,
// 30 attempts, roughly a 30-second ceiling.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		MaxAttempts: 30,
		Sleep:       time.Sleep,
	}
}

// WaitForOutput polls a job until it succeeds, fails, or the attempt ceiling
// is reached. Polling is a status check, not a retry of a mutating
// operation, so repeating it is always safe.
func (p PollPolicy) WaitForOutput(ctx context.Context, c Client, jobID string) (string, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			sleep(p.Interval)
		}

		status, err := c.GetJob(ctx, jobID)
		if err != nil {
			return "", err
		}

		switch status.Status {
		case StatusSucceeded:
			if status.OutputURL == "" {
				return "", fmt.Errorf("%w: succeeded without output", ErrJobFailed)
			}
			return status.OutputURL, nil
		case StatusFailed:
			if status.Error != "" {
				return "", fmt.Errorf("%w: %s", ErrJobFailed, status.Error)
			}
			return "", ErrJobFailed
		}
	}

	return "", ErrPollTimeout
}
