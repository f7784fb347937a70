package utils

import "fmt"

// ConfigurationError signals an invalid cube view or pipeline
// configuration. Fatal at construction time.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// EmptyCollectionError signals that no images survived collection
// filtering, leaving nothing to compute.
type EmptyCollectionError struct {
	Dropped int
}

func (e *EmptyCollectionError) Error() string {
	return fmt.Sprintf("empty collection: no images left after filtering (%d dropped)", e.Dropped)
}

// ChunkIOError signals that a chunk could not be read after the retry
// budget was exhausted. The pipeline downgrades it to nodata unless
// configured to be fatal.
type ChunkIOError struct {
	ChunkID int
	Path    string
	Err     error
}

func (e *ChunkIOError) Error() string {
	return fmt.Sprintf("chunk %d: read failed for %s: %v", e.ChunkID, e.Path, e.Err)
}

func (e *ChunkIOError) Unwrap() error {
	return e.Err
}

// ReprojectionError signals a source image whose geometry could not be
// transformed into the target grid. Per-image, never fatal.
type ReprojectionError struct {
	Path string
	Err  error
}

func (e *ReprojectionError) Error() string {
	return fmt.Sprintf("reprojection failed for %s: %v", e.Path, e.Err)
}

func (e *ReprojectionError) Unwrap() error {
	return e.Err
}

// ReducerContractViolationError signals a reducer that returned a
// different number of values than it declared. Fatal immediately,
// never a silent truncation or padding.
type ReducerContractViolationError struct {
	Expected int
	Actual   int
}

func (e *ReducerContractViolationError) Error() string {
	return fmt.Sprintf("reducer contract violation: declared output length %d, got %d", e.Expected, e.Actual)
}
