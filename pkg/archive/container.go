// Package archive opens the container formats patched in place: AFS
// and BIGF archives, ISO9660 file extents, and archives nested inside
// an ISO. Entries are replaced within their existing allocation;
// growing past it needs an explicit rebuild.
package archive

import (
	"errors"
)

var (
	// ErrValidation reports an archive failing its magic/structure checks.
	ErrValidation = errors.New("validation failed")
	// ErrCapacity reports a replacement that cannot fit in its slot and
	// has no rebuild path.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrNotFound reports an entry index or name that does not exist.
	ErrNotFound = errors.New("entry not found")
)

// Entry is one file in a container's table of contents. Flat archives key
// entries by Index; named archives also carry Name.
type Entry struct {
	Index  int
	Name   string
	Offset int
	Size   int
}

// Container is the common surface over the archive shapes: a flat
// offset/size TOC archive, a named-entry archive, and the nested
// disc-image stack. Replace patches in place when the payload fits its
// slot and otherwise marks the container dirty; Rebuild serializes the
// container with every pending oversized replacement applied and is the
// only operation allowed to change the total size.
type Container interface {
	Entries() []Entry
	Extract(index int) ([]byte, error)
	Replace(index int, data []byte) error
	Dirty() bool
	Rebuild() ([]byte, error)
	// Bytes returns the container's current serialized form. Dirty
	// containers must Rebuild first.
	Bytes() []byte
}

func align(n, boundary int) int {
	return (n + boundary - 1) / boundary * boundary
}

func zeroFill(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
