package layout

import "fmt"

// Chunk is one contiguous byte extent in an image.
type Chunk struct {
	Offset int
	Size   int
}

// Placement locates a record's bytes in an image. Most records occupy one
// chunk; records straddling a raw-sector boundary are split into several,
// in record order, so their logical bytes stay contiguous while their file
// extents are not.
type Placement []Chunk

// At places size bytes contiguously at offset.
func At(offset, size int) Placement {
	return Placement{{Offset: offset, Size: size}}
}

// Size returns the total byte count across all chunks.
func (p Placement) Size() int {
	n := 0
	for _, c := range p {
		n += c.Size
	}
	return n
}

// Read gathers the placement's bytes from image into one contiguous buffer.
func (p Placement) Read(image []byte) ([]byte, error) {
	buf := make([]byte, 0, p.Size())
	for _, c := range p {
		if c.Offset < 0 || c.Offset+c.Size > len(image) {
			return nil, fmt.Errorf("chunk [%#x,%#x) outside image of %d bytes: %w",
				c.Offset, c.Offset+c.Size, len(image), ErrRange)
		}
		buf = append(buf, image[c.Offset:c.Offset+c.Size]...)
	}
	return buf, nil
}

// Write scatters data across the placement's chunks. data must match the
// placement's total size exactly.
func (p Placement) Write(image []byte, data []byte) error {
	if len(data) != p.Size() {
		return fmt.Errorf("placement holds %d bytes, got %d: %w", p.Size(), len(data), ErrRange)
	}
	pos := 0
	for _, c := range p {
		if c.Offset < 0 || c.Offset+c.Size > len(image) {
			return fmt.Errorf("chunk [%#x,%#x) outside image of %d bytes: %w",
				c.Offset, c.Offset+c.Size, len(image), ErrRange)
		}
		copy(image[c.Offset:], data[pos:pos+c.Size])
		pos += c.Size
	}
	return nil
}

// DecodeAt decodes a fixed-stride record through a placement: the chunks
// are gathered, decoded, and the record returned.
func (l *Layout) DecodeAt(image []byte, p Placement) (Record, error) {
	if l.stride > 0 && p.Size() != l.stride {
		return nil, fmt.Errorf("layout %q: placement %d bytes for stride %d: %w", l.name, p.Size(), l.stride, ErrRange)
	}
	buf, err := p.Read(image)
	if err != nil {
		return nil, err
	}
	return l.Decode(buf, 0)
}

// PatchAt read-modify-writes a record through a placement, preserving every
// bit the layout does not cover even when the record straddles chunks.
func (l *Layout) PatchAt(image []byte, p Placement, r Record) error {
	buf, err := p.Read(image)
	if err != nil {
		return err
	}
	if err := l.EncodeTo(buf, r); err != nil {
		return err
	}
	return p.Write(image, buf)
}
