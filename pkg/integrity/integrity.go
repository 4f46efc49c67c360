// Package integrity implements the platform finalizers: the last pass
// over a patched image that re-establishes whatever validation the
// console performs at boot. Each finalizer is idempotent, so running a
// pipeline twice over the same image is harmless.
package integrity

import "errors"

var (
	// ErrIntegrity reports a finalizer that could not establish a valid
	// checksum or ECC state.
	ErrIntegrity = errors.New("integrity failed")
	// ErrValidation reports an image failing a structural check before
	// finalization.
	ErrValidation = errors.New("validation failed")
)

// Finalizer repairs an image's validation codes in place. It is the last
// stage of a patch pipeline and must be safe to run more than once.
type Finalizer interface {
	Name() string
	Finalize(image []byte) error
}
