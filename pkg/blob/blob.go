// Package blob defines the storage abstraction every ParqueDB segment,
// manifest, and exported entity file is written through (§4.A).
//
// Implementations must make WriteAtomic all-or-nothing: a failed
// atomic write must leave no partial file behind. Two implementations
// are required to exist and behave identically: an in-memory store for
// tests and a filesystem store for production use; internal/blob adds
// S3, GCS, and Azure Blob adapters on top of the same interface.
package blob

import "context"

// Store is an opaque byte-blob store with atomic write and listing.
type Store interface {
	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)

	// Read returns the full contents of path.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write writes data to path, replacing any existing content. It
	// need not be atomic; callers that require atomicity use
	// WriteAtomic.
	Write(ctx context.Context, path string, data []byte) error

	// WriteAtomic writes data to path such that readers never observe
	// a partial write: either the full new content becomes visible at
	// path, or path is left exactly as it was before the call.
	WriteAtomic(ctx context.Context, path string, data []byte) error

	// Delete removes path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// List returns every path with the given prefix, in no particular
	// order.
	List(ctx context.Context, prefix string) ([]string, error)
}
