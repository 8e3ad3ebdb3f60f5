package service

import "time"

// Tender is the top-level grouping entity owning files and batches.
// FileCount is maintained by the store and always equals the number of live
// file records scoped to the tender; it is never user-supplied on mutation
// paths.
type Tender struct {
	ID           string
	Name         string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SourceFolder string
	OutputFolder string
	FileCount    int
}

// FileSource distinguishes locally uploaded files from files that arrived
// through a submitted batch.
type FileSource string

const (
	SourceLocal   FileSource = "local"
	SourceBatched FileSource = "batched"
)

// DefaultCategory labels files that have not been assigned to any batch.
const DefaultCategory = "uncategorized"

// File is one document record owned by a tender. Path is unique within the
// tender and is the natural key. BatchID is nil while the file is unbatched;
// the empty-string wire sentinel never leaves the codec.
type File struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
	Category    string
	UploadedBy  string
	UploadedAt  time.Time
	ModifiedAt  time.Time
	Source      FileSource
	BatchID     *string
}

// BatchStatus is the submission lifecycle state of a batch.
type BatchStatus string

const (
	StatusPending    BatchStatus = "pending"
	StatusSubmitting BatchStatus = "submitting"
	StatusRunning    BatchStatus = "running"
	StatusCompleted  BatchStatus = "completed"
	StatusFailed     BatchStatus = "failed"
)

// ValidStatus reports whether s is a member of the status enum.
func ValidStatus(s BatchStatus) bool {
	switch s {
	case StatusPending, StatusSubmitting, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// SubmissionAttempt is one append-only entry of a batch's attempt history.
type SubmissionAttempt struct {
	Owner string
	At    time.Time
}

// Batch groups a set of file paths for submission to the downstream RPA
// system. FilePaths is derived from the files whose BatchID points here and
// is populated on reads, never stored authoritatively.
type Batch struct {
	ID         string
	Name       string
	Discipline string
	Status     BatchStatus

	SubmittedBy string
	SubmittedAt *time.Time

	FilePaths   []string
	Coordinates map[string]any
	Attempts    []SubmissionAttempt
	LastError   string

	UiPathReference    string
	UiPathSubmissionID string
	UiPathProjectID    string

	SubmissionOwner       string
	SubmissionLockedUntil *time.Time
}

// LockActive reports whether the batch holds a live submission lease at now.
func (b Batch) LockActive(now time.Time) bool {
	return b.Status == StatusSubmitting &&
		b.SubmissionLockedUntil != nil &&
		b.SubmissionLockedUntil.After(now)
}

// CreateTenderInput is the request to create a tender.
type CreateTenderInput struct {
	Name         string
	CreatedBy    string
	SourceFolder string
	OutputFolder string
	// FileCount seeds the counter when restoring from existing storage;
	// normal creation leaves it zero.
	FileCount int
}

// CreateBatchInput is the request to create a batch. The listed file paths
// are tagged with the new batch id as part of creation.
type CreateBatchInput struct {
	Name        string
	Discipline  string
	CreatedBy   string
	Coordinates map[string]any
	FilePaths   []string
}

// FilePatch carries the mergeable file fields; nil leaves a field untouched.
type FilePatch struct {
	Name        *string
	Size        *int64
	ContentType *string
	Category    *string
	Source      *FileSource
	BatchID     *string
	// ClearBatchID detaches the file from its batch; wins over BatchID.
	ClearBatchID bool
}

// BatchPatch carries the mergeable batch fields; nil leaves a field untouched.
type BatchPatch struct {
	Name               *string
	Discipline         *string
	Coordinates        map[string]any
	LastError          *string
	UiPathReference    *string
	UiPathSubmissionID *string
	UiPathProjectID    *string
	SubmittedBy        *string
	SubmittedAt        *time.Time
}

// Health is the result of a cheap backend connectivity probe.
type Health struct {
	OK      bool
	Backend string
	Error   string
	// FallbackReads counts reads served by the secondary store since process
	// start; only the dual facade populates it.
	FallbackReads int64
}
