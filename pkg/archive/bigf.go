package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// BIGF is EA's named-entry archive: "BIGF", a little-endian total size, a
// big-endian file count and header size, then per-file big-endian
// (offset, size) pairs with null-terminated names. File data is aligned
// to 128-byte boundaries.
const bigfAlign = 128

var bigfMagic = [4]byte{'B', 'I', 'G', 'F'}

// BIGF holds one parsed archive. Lookups by name are case-insensitive,
// matching how the games resolve paths inside their assets.
type BIGF struct {
	raw     []byte
	entries []Entry
	pending map[int][]byte
}

// OpenBIGF parses a BIGF archive. The slice is retained and mutated by
// in-place replacements.
func OpenBIGF(raw []byte) (*BIGF, error) {
	if len(raw) < 16 || !bytes.Equal(raw[:4], bigfMagic[:]) {
		return nil, fmt.Errorf("bigf: bad magic: %w", ErrValidation)
	}
	count := int(binary.BigEndian.Uint32(raw[8:12]))

	b := &BIGF{raw: raw, pending: make(map[int][]byte)}
	pos := 16
	for i := 0; i < count; i++ {
		if pos+8 > len(raw) {
			return nil, fmt.Errorf("bigf: directory truncated at entry %d: %w", i, ErrValidation)
		}
		off := int(binary.BigEndian.Uint32(raw[pos:]))
		size := int(binary.BigEndian.Uint32(raw[pos+4:]))
		pos += 8
		end := bytes.IndexByte(raw[pos:], 0)
		if end < 0 {
			return nil, fmt.Errorf("bigf: unterminated name in entry %d: %w", i, ErrValidation)
		}
		name := string(raw[pos : pos+end])
		pos += end + 1
		if off+size > len(raw) {
			return nil, fmt.Errorf("bigf: entry %q extent [%#x,%#x) exceeds %d bytes: %w",
				name, off, off+size, len(raw), ErrValidation)
		}
		b.entries = append(b.entries, Entry{Index: i, Name: name, Offset: off, Size: size})
	}
	return b, nil
}

// Entries implements Container.
func (b *BIGF) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Lookup finds an entry by case-insensitive name.
func (b *BIGF) Lookup(name string) (Entry, bool) {
	for _, e := range b.entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Extract returns a copy of an entry's payload.
func (b *BIGF) Extract(index int) ([]byte, error) {
	if index < 0 || index >= len(b.entries) {
		return nil, fmt.Errorf("bigf: entry %d of %d: %w", index, len(b.entries), ErrNotFound)
	}
	if data, ok := b.pending[index]; ok {
		return append([]byte(nil), data...), nil
	}
	e := b.entries[index]
	return append([]byte(nil), b.raw[e.Offset:e.Offset+e.Size]...), nil
}

// ExtractName extracts by case-insensitive name.
func (b *BIGF) ExtractName(name string) ([]byte, error) {
	e, ok := b.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("bigf: %q: %w", name, ErrNotFound)
	}
	return b.Extract(e.Index)
}

// Replace overwrites an entry. Fitting payloads are written at the
// original offset and zero-padded; the directory keeps the original size
// so the game still reads the full allocation (RefPack payloads stop at
// their own end marker). Oversized payloads are queued for Rebuild.
func (b *BIGF) Replace(index int, data []byte) error {
	if index < 0 || index >= len(b.entries) {
		return fmt.Errorf("bigf: entry %d of %d: %w", index, len(b.entries), ErrNotFound)
	}
	e := b.entries[index]
	if len(data) <= e.Size {
		slot := b.raw[e.Offset : e.Offset+e.Size]
		n := copy(slot, data)
		zeroFill(slot[n:])
		delete(b.pending, index)
		return nil
	}
	b.pending[index] = append([]byte(nil), data...)
	return nil
}

// ReplaceName replaces by case-insensitive name.
func (b *BIGF) ReplaceName(name string, data []byte) error {
	e, ok := b.Lookup(name)
	if !ok {
		return fmt.Errorf("bigf: %q: %w", name, ErrNotFound)
	}
	return b.Replace(e.Index, data)
}

// Dirty reports whether oversized replacements are queued.
func (b *BIGF) Dirty() bool { return len(b.pending) > 0 }

// Bytes returns the archive's serialized form. Call Rebuild first when
// the archive is dirty.
func (b *BIGF) Bytes() []byte { return b.raw }

// Rebuild serializes the archive from scratch: directory first, file data
// at 128-byte boundaries, every offset recomputed. Pending replacements
// are applied and cleared.
func (b *BIGF) Rebuild() ([]byte, error) {
	payloads := make([][]byte, len(b.entries))
	for i, e := range b.entries {
		if data, ok := b.pending[i]; ok {
			payloads[i] = data
		} else {
			payloads[i] = b.raw[e.Offset : e.Offset+e.Size]
		}
	}

	headerSize := 16
	for _, e := range b.entries {
		headerSize += 8 + len(e.Name) + 1
	}

	out := make([]byte, 0, headerSize+len(b.raw))
	out = append(out, bigfMagic[:]...)
	out = append(out, make([]byte, 12)...)

	dirPos := make([]int, len(b.entries))
	for i, e := range b.entries {
		dirPos[i] = len(out)
		out = append(out, make([]byte, 4)...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(payloads[i])))
		out = append(out, e.Name...)
		out = append(out, 0)
	}

	out = append(out, make([]byte, align(len(out), bigfAlign)-len(out))...)
	for i, p := range payloads {
		offset := len(out)
		binary.BigEndian.PutUint32(out[dirPos[i]:], uint32(offset))
		b.entries[i].Offset = offset
		b.entries[i].Size = len(p)
		out = append(out, p...)
		if i < len(payloads)-1 {
			out = append(out, make([]byte, align(len(out), bigfAlign)-len(out))...)
		}
	}

	// total size is little-endian, unlike the rest of the header
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)))
	binary.BigEndian.PutUint32(out[8:12], uint32(len(b.entries)))
	binary.BigEndian.PutUint32(out[12:16], uint32(headerSize))

	b.raw = out
	b.pending = make(map[int][]byte)
	return out, nil
}
