package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// AFS is Konami's flat TOC archive: "AFS\x00", a little-endian entry
// count, (offset, size) pairs, then entry payloads aligned to CD sectors.
const afsSectorSize = 2048

var afsMagic = [4]byte{'A', 'F', 'S', 0x00}

// AFS holds one parsed archive. The raw bytes stay resident; in-place
// replacements mutate them directly, oversized replacements are queued
// until Rebuild.
type AFS struct {
	raw          []byte
	entries      []Entry
	pending      map[int][]byte
	allowRebuild bool
}

// AFSOption configures an AFS archive.
type AFSOption func(*AFS)

// WithRebuild permits Replace to queue payloads larger than their slot
// for a later Rebuild. Without it such a Replace fails with ErrCapacity.
func WithRebuild() AFSOption {
	return func(a *AFS) { a.allowRebuild = true }
}

// OpenAFS parses an AFS archive. The slice is retained and mutated by
// in-place replacements.
func OpenAFS(raw []byte, opts ...AFSOption) (*AFS, error) {
	if len(raw) < 8 || !bytes.Equal(raw[:4], afsMagic[:]) {
		return nil, fmt.Errorf("afs: bad magic: %w", ErrValidation)
	}
	count := int(binary.LittleEndian.Uint32(raw[4:8]))
	if 8+count*8 > len(raw) {
		return nil, fmt.Errorf("afs: TOC for %d entries exceeds %d bytes: %w", count, len(raw), ErrValidation)
	}

	a := &AFS{raw: raw, entries: make([]Entry, count), pending: make(map[int][]byte)}
	for i := 0; i < count; i++ {
		off := int(binary.LittleEndian.Uint32(raw[8+i*8:]))
		size := int(binary.LittleEndian.Uint32(raw[12+i*8:]))
		if off+size > len(raw) {
			return nil, fmt.Errorf("afs: entry %d extent [%#x,%#x) exceeds %d bytes: %w",
				i, off, off+size, len(raw), ErrValidation)
		}
		a.entries[i] = Entry{Index: i, Offset: off, Size: size}
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Entries implements Container.
func (a *AFS) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Extract returns a copy of an entry's payload. A pending oversized
// replacement is returned as queued.
func (a *AFS) Extract(index int) ([]byte, error) {
	if index < 0 || index >= len(a.entries) {
		return nil, fmt.Errorf("afs: entry %d of %d: %w", index, len(a.entries), ErrNotFound)
	}
	if data, ok := a.pending[index]; ok {
		return append([]byte(nil), data...), nil
	}
	e := a.entries[index]
	return append([]byte(nil), a.raw[e.Offset:e.Offset+e.Size]...), nil
}

// Replace overwrites an entry. Payloads no larger than the slot are
// written in place and zero-padded to the original size; larger payloads
// need the rebuild path.
func (a *AFS) Replace(index int, data []byte) error {
	if index < 0 || index >= len(a.entries) {
		return fmt.Errorf("afs: entry %d of %d: %w", index, len(a.entries), ErrNotFound)
	}
	e := a.entries[index]
	if len(data) <= e.Size {
		slot := a.raw[e.Offset : e.Offset+e.Size]
		n := copy(slot, data)
		zeroFill(slot[n:])
		delete(a.pending, index)
		return nil
	}
	if !a.allowRebuild {
		return fmt.Errorf("afs: entry %d: %d bytes into a %d-byte slot: %w", index, len(data), e.Size, ErrCapacity)
	}
	a.pending[index] = append([]byte(nil), data...)
	return nil
}

// Dirty reports whether oversized replacements are queued.
func (a *AFS) Dirty() bool { return len(a.pending) > 0 }

// Bytes returns the archive's serialized form. Call Rebuild first when
// the archive is dirty.
func (a *AFS) Bytes() []byte { return a.raw }

// Rebuild recomputes every offset, pads the header and each entry to the
// sector boundary, and replaces the archive's raw form. Pending
// replacements are applied and cleared.
func (a *AFS) Rebuild() ([]byte, error) {
	payloads := make([][]byte, len(a.entries))
	for i, e := range a.entries {
		if data, ok := a.pending[i]; ok {
			payloads[i] = data
		} else {
			payloads[i] = a.raw[e.Offset : e.Offset+e.Size]
		}
	}

	headerSize := align(8+len(a.entries)*8, afsSectorSize)
	total := headerSize
	for _, p := range payloads {
		total += align(len(p), afsSectorSize)
	}

	out := make([]byte, total)
	copy(out, afsMagic[:])
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(a.entries)))

	offset := headerSize
	for i, p := range payloads {
		binary.LittleEndian.PutUint32(out[8+i*8:], uint32(offset))
		binary.LittleEndian.PutUint32(out[12+i*8:], uint32(len(p)))
		copy(out[offset:], p)
		a.entries[i] = Entry{Index: i, Offset: offset, Size: len(p)}
		offset += align(len(p), afsSectorSize)
	}

	a.raw = out
	a.pending = make(map[int][]byte)
	return out, nil
}
