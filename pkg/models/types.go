package models

import "time"

// ObjectDescriptor is a point-in-time snapshot of one remote object, taken
// at listing time. It may be stale relative to the live object.
type ObjectDescriptor struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type,omitempty"`
}

// Action is the outcome of comparing a source object against its
// destination counterpart.
type Action string

const (
	ActionCopy Action = "copy"
	ActionSkip Action = "skip"
)

// Reason explains which rule produced the action.
type Reason string

const (
	ReasonNewObject           Reason = "new_object"
	ReasonSizeMismatch        Reason = "size_mismatch"
	ReasonFingerprintMismatch Reason = "fingerprint_mismatch"
	ReasonNewerSource         Reason = "newer_source"
	ReasonIdentical           Reason = "identical"
)

// CopyDecision pairs an action with the rule that produced it.
type CopyDecision struct {
	Action Action `json:"action"`
	Reason Reason `json:"reason"`
}

// TransferTask is one unit of work: a source object, the destination key it
// maps to, and the decision made for it. Created during enumeration and
// consumed exactly once by the copy stage.
type TransferTask struct {
	Source   ObjectDescriptor `json:"source"`
	DestKey  string           `json:"dest_key"`
	Decision CopyDecision     `json:"decision"`
}

// EventKind classifies a progress event.
type EventKind string

const (
	EventChunkCopied     EventKind = "chunk_copied"
	EventObjectCompleted EventKind = "object_completed"
	EventObjectFailed    EventKind = "object_failed"
	EventObjectSkipped   EventKind = "object_skipped"
)

// ProgressEvent is emitted by workers as bytes move and objects terminate.
// Terminal kinds carry the object size so extension statistics can be
// attributed without another metadata lookup.
type ProgressEvent struct {
	Kind       EventKind
	Key        string
	BytesDelta int64
	Size       int64
	Err        error
}

// FailureRecord captures one object that could not be copied.
type FailureRecord struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// ExtensionStat aggregates object count and bytes per file extension.
type ExtensionStat struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
}

// RunState is the terminal state of a transfer run.
type RunState string

const (
	RunCompleted   RunState = "completed"
	RunInterrupted RunState = "interrupted"
	RunFailed      RunState = "failed"
)

// RunSummary is the final accounting of a run. Counters only grow while the
// run is live; at completion FilesTransferred+FilesSkipped+FilesFailed
// equals the number of enumerated source objects.
type RunSummary struct {
	State                 RunState                 `json:"state"`
	FilesTransferred      int64                    `json:"files_transferred"`
	FilesSkipped          int64                    `json:"files_skipped"`
	FilesFailed           int64                    `json:"files_failed"`
	TotalObjects          int64                    `json:"total_objects"`
	TotalBytes            int64                    `json:"total_bytes"`
	TotalBytesTransferred int64                    `json:"total_bytes_transferred"`
	SkippedBytes          int64                    `json:"skipped_bytes"`
	Extensions            map[string]ExtensionStat `json:"extensions"`
	Failures              []FailureRecord          `json:"failures"`
	StartTime             time.Time                `json:"start_time"`
	EndTime               time.Time                `json:"end_time"`
}
