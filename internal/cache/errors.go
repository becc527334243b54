package cache

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
)

// #region errors

// ErrBuiltElsewhere is returned by Store.Begin when another process finished
// the build while this one waited. The caller loads the committed entry
// instead of building.
var ErrBuiltElsewhere = errors.New("canvas built by another process")

// BuildError is returned when the build function still fails after retries.
// The key is released, so the next independent request builds again.
type BuildError struct {
	Fingerprint canvas.Fingerprint
	Attempts    int
	Err         error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build canvas %s failed after %d attempt(s): %v", e.Fingerprint, e.Attempts, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// CorruptionError is returned when a persisted entry cannot be decoded.
// Corrupt entries are never rebuilt silently.
type CorruptionError struct {
	Fingerprint canvas.Fingerprint
	Err         error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("canvas %s is corrupt: %v", e.Fingerprint, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// #endregion errors
