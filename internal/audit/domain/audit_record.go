// Package domain defines the audit trail model for key lifecycle and
// encryption operations.
//
// Audit records are append-only: they are created once and never updated or
// deleted. Persistence failures must never roll back the operation being
// audited; the usecase layer logs and swallows them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operation identifies the audited action.
type Operation string

const (
	OperationKeyGenerate        Operation = "KEY_GENERATE"
	OperationKeyRotate          Operation = "KEY_ROTATE"
	OperationKeyRevoke          Operation = "KEY_REVOKE"
	OperationEncrypt            Operation = "ENCRYPT"
	OperationDecrypt            Operation = "DECRYPT"
	OperationSessionKeyExchange Operation = "SESSION_KEY_EXCHANGE"
)

// Result classifies the outcome of an audited action.
type Result string

const (
	// ResultSuccess marks a completed operation.
	ResultSuccess Result = "success"
	// ResultFailure marks an operation that errored.
	ResultFailure Result = "failure"
	// ResultDenied marks an operation rejected by policy, such as a decrypt
	// attempt against a revoked key.
	ResultDenied Result = "denied"
)

// AuditRecord is one immutable entry in the audit trail.
//
// ErrorMessage carries a sanitized description only: never plaintext, key
// material, or the root secret.
type AuditRecord struct {
	ID             uuid.UUID // Unique identifier (UUIDv7)
	TenantID       string
	Operation      Operation
	Result         Result
	KeyID          *uuid.UUID
	KeyVersion     *uint
	ResourceID     *string
	ConversationID *string
	PerformedBy    string
	ErrorMessage   string
	DataSizeBytes  int64
	DurationMs     int64
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Filter narrows audit queries. Nil fields are ignored; set fields are
// combined with AND. From/To bound CreatedAt inclusively/exclusively.
type Filter struct {
	Operation      *Operation
	Result         *Result
	KeyID          *uuid.UUID
	ResourceID     *string
	ConversationID *string
	PerformedBy    *string
	From           *time.Time
	To             *time.Time
}

// OperationCount is one aggregation bucket of Stats.
type OperationCount struct {
	Operation Operation
	Result    Result
	Count     int64
}

// Aggregate is the raw rollup a repository computes over a window of audit
// records. AvgDurationMs covers all operations; TotalBytesEncrypted sums the
// data size of successful ENCRYPT operations only.
type Aggregate struct {
	OperationCounts     []OperationCount
	AvgDurationMs       float64
	TotalBytesEncrypted int64
}

// Stats summarizes audited activity over a rolling window, combined by the
// usecase layer with key status counts from the key store.
type Stats struct {
	Window              time.Duration
	OperationCounts     []OperationCount
	AvgDurationMs       float64
	TotalBytesEncrypted int64
	KeysByStatus        map[string]int64
	ActiveSessionKeys   int64
}
