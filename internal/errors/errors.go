// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrBranchClosed     = errors.New("branch is closed")
	ErrEmptyManifest    = errors.New("manifest has no segments")
	ErrSegmentNotFound  = errors.New("segment not found at manifest path")
	ErrCompactionBusy   = errors.New("compaction already in progress")
	ErrBulkModeActive   = errors.New("bulk operation already in progress")
	ErrConnectionLost   = errors.New("connection lost")
)

// ValidationError represents a schema, directive, or operator-shape
// violation. Field names the offending field.
type ValidationError struct {
	Namespace string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: namespace=%s field=%s: %s", e.Namespace, e.Field, e.Reason)
}

// DuplicateIdError represents a collision with a live (non-deleted) entity id.
type DuplicateIdError struct {
	Namespace string
	LocalID   string
}

func (e *DuplicateIdError) Error() string {
	return fmt.Sprintf("duplicate id: %s/%s already exists", e.Namespace, e.LocalID)
}

// NotFoundError represents a get/update against a missing entity when
// upsert semantics do not apply.
type NotFoundError struct {
	Namespace string
	LocalID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s/%s", e.Namespace, e.LocalID)
}

// VersionConflictError represents an optimistic-concurrency mismatch.
type VersionConflictError struct {
	Namespace string
	LocalID   string
	Expected  uint64
	Actual    uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: %s/%s expected=%d actual=%d",
		e.Namespace, e.LocalID, e.Expected, e.Actual)
}

// RelationshipResolutionError represents an outbound relationship
// target missing when auto-create is disabled or not applicable.
type RelationshipResolutionError struct {
	SourceNamespace string
	SourceLocalID   string
	Field           string
	Target          string
}

func (e *RelationshipResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve relationship: %s/%s.%s -> %s",
		e.SourceNamespace, e.SourceLocalID, e.Field, e.Target)
}

// PrototypePollutionError represents a guarded path segment rejected
// before any mutation was applied.
type PrototypePollutionError struct {
	Path    string
	Segment string
}

func (e *PrototypePollutionError) Error() string {
	return fmt.Sprintf("prototype pollution guard: path=%q segment=%q is forbidden", e.Path, e.Segment)
}

// ParquetWriteError represents a Parquet encoding or I/O failure while
// writing a segment or entity file. No alternate-format file is ever
// left behind when this error occurs.
type ParquetWriteError struct {
	Path  string
	Cause error
}

func (e *ParquetWriteError) Error() string {
	return fmt.Sprintf("parquet write error: path=%s: %v", e.Path, e.Cause)
}

func (e *ParquetWriteError) Unwrap() error {
	return e.Cause
}

// ParquetReadError represents a corrupt or truncated segment/entity file.
type ParquetReadError struct {
	Path  string
	Cause error
}

func (e *ParquetReadError) Error() string {
	return fmt.Sprintf("parquet read error: path=%s: %v", e.Path, e.Cause)
}

func (e *ParquetReadError) Unwrap() error {
	return e.Cause
}

// BlobStoreError represents an underlying blob-store I/O failure.
type BlobStoreError struct {
	Operation string
	Path      string
	Err       error
}

func (e *BlobStoreError) Error() string {
	return fmt.Sprintf("blob store error: operation=%s path=%s: %v", e.Operation, e.Path, e.Err)
}

func (e *BlobStoreError) Unwrap() error {
	return e.Err
}

// CompactionError represents a merge/rewrite failure. Because the
// manifest swap happens only after a successful rewrite, data is
// intact whenever this error is returned.
type CompactionError struct {
	Branch string
	Err    error
}

func (e *CompactionError) Error() string {
	return fmt.Sprintf("compaction error: branch=%s: %v", e.Branch, e.Err)
}

func (e *CompactionError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types and sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	var blobErr *BlobStoreError
	if errors.As(err, &blobErr) {
		return blobErr.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a BlobStoreError is retryable based on the operation type.
func (e *BlobStoreError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "read"
}

// IsRetryable determines if a CompactionError is retryable.
// Compaction can always be safely retried: the manifest swap only
// happens after a successful rewrite, so a failed attempt never
// corrupts state.
func (e *CompactionError) IsRetryable() bool {
	return true
}
