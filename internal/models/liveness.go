package models

import "time"

// PeerKind distinguishes fixed hardware from mobile field agents
type PeerKind string

const (
	PeerDevice PeerKind = "device"
	PeerAgent  PeerKind = "agent"
)

type LivenessStatus string

const (
	StatusOnline  LivenessStatus = "online"
	StatusOffline LivenessStatus = "offline"
)

// DeviceLivenessRecord tracks the last heartbeat of a reader or agent.
// LastHeartbeat holds the raw reported timestamp; empty means none yet.
type DeviceLivenessRecord struct {
	ID            string         `json:"id"`
	Kind          PeerKind       `json:"kind"`
	LastHeartbeat string         `json:"last_heartbeat,omitempty"`
	Status        LivenessStatus `json:"status"`
}

// Heartbeat is a single report from a device or agent
type Heartbeat struct {
	ID        string   `json:"id"`
	Kind      PeerKind `json:"kind"`
	Timestamp string   `json:"timestamp"`
}

// LivenessSnapshot is the exposed view of one record
type LivenessSnapshot struct {
	Kind          PeerKind       `json:"kind"`
	Status        LivenessStatus `json:"status"`
	LastHeartbeat *time.Time     `json:"last_heartbeat"`
}

// HeartbeatAdvances reports whether next should replace current as a peer's
// last heartbeat. A malformed next always wins so that it forces the peer
// offline; a well-formed next must be strictly later than a well-formed current.
func HeartbeatAdvances(current, next string) bool {
	if current == "" {
		return true
	}
	n, err := ParseTimestamp(next)
	if err != nil {
		return true
	}
	c, err := ParseTimestamp(current)
	if err != nil {
		return true
	}
	return n.After(c)
}
