package models

import "time"

type ConflictType string

const (
	ConflictDoubleSpend       ConflictType = "DOUBLE_SPEND"
	ConflictInsufficientFunds ConflictType = "INSUFFICIENT_FUNDS"
	ConflictInvalidHash       ConflictType = "INVALID_HASH"
	ConflictInvalidSignature  ConflictType = "INVALID_SIGNATURE"
	ConflictNonceReused       ConflictType = "NONCE_REUSED"
	ConflictChainBroken       ConflictType = "CHAIN_BROKEN"
	ConflictTimestampInvalid  ConflictType = "TIMESTAMP_INVALID"
)

// Security reports whether the conflict indicates tampering or replay
// rather than a client-side bug or ordinary state conflict.
func (c ConflictType) Security() bool {
	switch c {
	case ConflictInvalidHash, ConflictInvalidSignature, ConflictNonceReused:
		return true
	}
	return false
}

// Priority ranks a conflict type for review queues.
func (c ConflictType) Priority() ConflictPriority {
	switch c {
	case ConflictInvalidHash, ConflictInvalidSignature, ConflictNonceReused:
		return PriorityCritical
	case ConflictDoubleSpend, ConflictInsufficientFunds:
		return PriorityHigh
	case ConflictChainBroken:
		return PriorityMedium
	}
	return PriorityLow
}

type ConflictPriority string

const (
	PriorityLow      ConflictPriority = "LOW"
	PriorityMedium   ConflictPriority = "MEDIUM"
	PriorityHigh     ConflictPriority = "HIGH"
	PriorityCritical ConflictPriority = "CRITICAL"
)

type ResolutionStatus string

const (
	ResolutionUnresolved     ResolutionStatus = "UNRESOLVED"
	ResolutionAutoResolved   ResolutionStatus = "AUTO_RESOLVED"
	ResolutionManualResolved ResolutionStatus = "MANUAL_RESOLVED"
	ResolutionRejected       ResolutionStatus = "REJECTED"
	ResolutionPendingUser    ResolutionStatus = "PENDING_USER"
)

// Final reports whether no further resolution is allowed.
func (r ResolutionStatus) Final() bool {
	switch r {
	case ResolutionAutoResolved, ResolutionManualResolved, ResolutionRejected:
		return true
	}
	return false
}

// ParseResolutionStatus accepts any known status name.
func ParseResolutionStatus(s string) (ResolutionStatus, bool) {
	switch r := ResolutionStatus(s); r {
	case ResolutionUnresolved, ResolutionAutoResolved, ResolutionManualResolved,
		ResolutionRejected, ResolutionPendingUser:
		return r, true
	}
	return "", false
}

// SyncConflict is an audit record of a problem found during reconciliation.
// Expected/Actual hold hashes for chain and hash conflicts and balances for
// funds conflicts.
type SyncConflict struct {
	ID              string
	TransactionHash string
	SenderID        string
	Type            ConflictType
	ExpectedValue   string
	ActualValue     string
	Priority        ConflictPriority
	Status          ResolutionStatus
	DetectedAt      time.Time
	ResolvedAt      *time.Time
	Notes           string
}
