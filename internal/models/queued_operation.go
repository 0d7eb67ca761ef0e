package models

import "time"

// OperationType identifies which remote mutation replays a queued operation
type OperationType string

const (
	OpCreateVisitor         OperationType = "create_visitor"
	OpUpdateVisitor         OperationType = "update_visitor"
	OpDeleteVisitor         OperationType = "delete_visitor"
	OpCheckIn               OperationType = "check_in"
	OpCheckOut              OperationType = "check_out"
	OpCreateSecurityRequest OperationType = "create_security_request"
	OpCreateEvent           OperationType = "create_event"
	OpDeleteEvent           OperationType = "delete_event"
)

// Valid reports whether t belongs to the closed set of mutation kinds
func (t OperationType) Valid() bool {
	switch t {
	case OpCreateVisitor, OpUpdateVisitor, OpDeleteVisitor,
		OpCheckIn, OpCheckOut, OpCreateSecurityRequest,
		OpCreateEvent, OpDeleteEvent:
		return true
	}
	return false
}

// SyncStatus is the replay state of a queued operation
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// EpochZero marks an operation that has never been attempted
var EpochZero = time.Unix(0, 0).UTC()

// QueuedOperation is a mutation captured while the console was offline
type QueuedOperation struct {
	ID             string         `json:"id"`
	Type           OperationType  `json:"type"`
	Payload        map[string]any `json:"payload"`
	QueuedAt       time.Time      `json:"queuedAt"`
	SyncStatus     SyncStatus     `json:"sync_status"`
	RetryCount     int            `json:"retry_count"`
	LastRetry      time.Time      `json:"last_retry"`
	Error          string         `json:"error,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// Clone returns a copy whose payload map is not shared with op
func (op QueuedOperation) Clone() QueuedOperation {
	if op.Payload != nil {
		payload := make(map[string]any, len(op.Payload))
		for k, v := range op.Payload {
			payload[k] = v
		}
		op.Payload = payload
	}
	return op
}
