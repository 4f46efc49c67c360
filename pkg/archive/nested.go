package archive

import (
	"fmt"

	"github.com/hiitsgabe/rompatch/pkg/lzc"
)

// Nested is the multi-layer disc stack: an ISO 9660 image holding one
// named sub-archive (BIGF), whose members are RefPack-compressed database
// files. Extract and Replace work on the decompressed member payloads;
// dirty members are batched and pushed outward exactly once per Rebuild,
// which recompresses members, re-serializes the sub-archive if needed,
// and writes it back into the image's fixed allocation.
type Nested struct {
	iso      *ISO
	subPath  string
	sub      *BIGF
	codec    lzc.Codec
	modified bool
}

// OpenNested locates subPath inside the image and parses it as a BIGF
// archive. The image slice is retained; Rebuild mutates it in place.
func OpenNested(image []byte, subPath string) (*Nested, error) {
	iso, err := OpenISO(image)
	if err != nil {
		return nil, err
	}
	raw, err := iso.Extract(subPath)
	if err != nil {
		return nil, err
	}
	sub, err := OpenBIGF(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", subPath, err)
	}
	return &Nested{iso: iso, subPath: subPath, sub: sub, codec: lzc.RefPack{}}, nil
}

// Sub exposes the parsed sub-archive.
func (n *Nested) Sub() *BIGF { return n.sub }

// Entries implements Container, listing the sub-archive's members.
func (n *Nested) Entries() []Entry { return n.sub.Entries() }

// Extract returns a member's payload, transparently decompressed when it
// carries a RefPack signature.
func (n *Nested) Extract(index int) ([]byte, error) {
	raw, err := n.sub.Extract(index)
	if err != nil {
		return nil, err
	}
	if lzc.IsRefPack(raw, 0) {
		out, _, err := n.codec.Decompress(raw, 0)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return raw, nil
}

// ExtractName extracts by case-insensitive member name.
func (n *Nested) ExtractName(name string) ([]byte, error) {
	e, ok := n.sub.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", n.subPath, name, ErrNotFound)
	}
	return n.Extract(e.Index)
}

// Replace stores a member's new payload, recompressing it when the
// original was compressed. The outer image is untouched until Rebuild.
func (n *Nested) Replace(index int, data []byte) error {
	payload := data
	if raw, err := n.sub.Extract(index); err == nil && lzc.IsRefPack(raw, 0) {
		payload = n.codec.Compress(data)
	}
	if err := n.sub.Replace(index, payload); err != nil {
		return err
	}
	n.modified = true
	return nil
}

// ReplaceName replaces by case-insensitive member name.
func (n *Nested) ReplaceName(name string, data []byte) error {
	e, ok := n.sub.Lookup(name)
	if !ok {
		return fmt.Errorf("%s: %q: %w", n.subPath, name, ErrNotFound)
	}
	return n.Replace(e.Index, data)
}

// Dirty reports whether any member changed since the last Rebuild.
func (n *Nested) Dirty() bool { return n.modified || n.sub.Dirty() }

// Bytes returns the outer image.
func (n *Nested) Bytes() []byte { return n.iso.Image() }

// Rebuild pushes batched member changes outward: the sub-archive is
// re-serialized if any member outgrew its slot, then written back into
// the image's allocation. A sub-archive that no longer fits that
// allocation fails with ErrCapacity.
func (n *Nested) Rebuild() ([]byte, error) {
	if !n.Dirty() {
		return n.iso.Image(), nil
	}
	if n.sub.Dirty() {
		if _, err := n.sub.Rebuild(); err != nil {
			return nil, err
		}
	}
	if err := n.iso.Replace(n.subPath, n.sub.Bytes()); err != nil {
		return nil, err
	}
	n.modified = false
	return n.iso.Image(), nil
}
