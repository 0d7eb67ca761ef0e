package queue

import (
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"
)

const (
	BaseDelay = 1 * time.Second
	MaxDelay  = 30 * time.Second
)

// Delay is the wait required after an attempt before the next one:
// BaseDelay doubled per prior failure, capped at MaxDelay. No jitter.
func Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return BaseDelay
	}
	d := BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	return d
}

// Eligible reports whether op may be attempted at now
func Eligible(op models.QueuedOperation, now time.Time) bool {
	if op.SyncStatus == models.SyncSynced {
		return false
	}
	return now.Sub(op.LastRetry) >= Delay(op.RetryCount)
}
