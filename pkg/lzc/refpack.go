package lzc

import "fmt"

// RefPack is EA's QFS block format, used by the TDB database files.
// Streams open with 0x10 0xFB and a 3-byte big-endian uncompressed size,
// followed by copy commands (2, 3, or 4 bytes wide, each carrying up to
// 3 attached literals), bulk literal runs (0xE0..0xFB), and an end marker
// (0xFC..0xFF) holding 0-3 trailing literals.
type RefPack struct{}

// Name implements Codec.
func (RefPack) Name() string { return "refpack" }

// refpack command limits per width
const (
	refMaxOffset = 0x20000
	refMaxMatch  = 1028
	refHashBits  = 16
	refMaxChain  = 128
)

// IsRefPack reports whether data at start carries a RefPack signature.
func IsRefPack(data []byte, start int) bool {
	return start >= 0 && start+2 <= len(data) && data[start] == 0x10 && data[start+1] == 0xFB
}

// Decompress unpacks one RefPack stream beginning at start. consumed runs
// through the end marker and its trailing literals.
func (RefPack) Decompress(src []byte, start int) ([]byte, int, error) {
	if !IsRefPack(src, start) || start+5 > len(src) {
		return nil, 0, fmt.Errorf("refpack: no 10FB signature at %#x: %w", start, ErrDecode)
	}
	size := int(src[start+2])<<16 | int(src[start+3])<<8 | int(src[start+4])
	out := make([]byte, 0, size)
	pos := start + 5

	for {
		if pos >= len(src) {
			return nil, 0, fmt.Errorf("refpack: stream truncated before end marker at %#x: %w", pos, ErrDecode)
		}
		b0 := int(src[pos])
		var lits, clen, coff int
		switch {
		case b0 < 0x80:
			if pos+2 > len(src) {
				return nil, 0, fmt.Errorf("refpack: 2-byte command truncated at %#x: %w", pos, ErrDecode)
			}
			b1 := int(src[pos+1])
			pos += 2
			lits = b0 & 0x03
			clen = (b0&0x1C)>>2 + 3
			coff = (b0&0x60)<<3 + b1 + 1
		case b0 < 0xC0:
			if pos+3 > len(src) {
				return nil, 0, fmt.Errorf("refpack: 3-byte command truncated at %#x: %w", pos, ErrDecode)
			}
			b1, b2 := int(src[pos+1]), int(src[pos+2])
			pos += 3
			lits = b1 >> 6 & 0x03
			clen = b0&0x3F + 4
			coff = (b1&0x3F)<<8 + b2 + 1
		case b0 < 0xE0:
			if pos+4 > len(src) {
				return nil, 0, fmt.Errorf("refpack: 4-byte command truncated at %#x: %w", pos, ErrDecode)
			}
			b1, b2, b3 := int(src[pos+1]), int(src[pos+2]), int(src[pos+3])
			pos += 4
			lits = b0 & 0x03
			clen = (b0&0x0C)<<6 + b3 + 5
			coff = (b0&0x10)<<12 + b1<<8 + b2 + 1
		case b0 < 0xFC:
			pos++
			lits = (b0&0x1F)<<2 + 4
		default:
			pos++
			lits = b0 & 0x03
		}

		if lits > 0 {
			if pos+lits > len(src) {
				return nil, 0, fmt.Errorf("refpack: %d literals truncated at %#x: %w", lits, pos, ErrDecode)
			}
			out = append(out, src[pos:pos+lits]...)
			pos += lits
		}
		if clen > 0 {
			if coff > len(out) {
				return nil, 0, fmt.Errorf("refpack: copy offset %d at %#x with %d bytes written: %w",
					coff, pos, len(out), ErrDecode)
			}
			for i := 0; i < clen; i++ {
				out = append(out, out[len(out)-coff])
			}
		}
		if b0 >= 0xFC {
			break
		}
	}

	if len(out) != size {
		return nil, 0, fmt.Errorf("refpack: header size %d, stream yields %d: %w", size, len(out), ErrDecode)
	}
	return out, pos - start, nil
}

// refEncodable reports whether (length, offset) fits any command width.
func refEncodable(length, offset int) bool {
	switch {
	case length >= 3 && length <= 10 && offset <= 1024:
		return true
	case length >= 4 && length <= 67 && offset <= 16384:
		return true
	case length >= 5 && length <= refMaxMatch && offset <= refMaxOffset:
		return true
	}
	return false
}

// refEmitCopy appends one copy command carrying 0-3 literals.
func refEmitCopy(out []byte, lits []byte, length, offset int) []byte {
	nl := len(lits)
	switch {
	case length <= 10 && offset <= 1024:
		out = append(out,
			byte(nl&0x03|(length-3)&0x07<<2|(offset-1)>>3&0x60),
			byte(offset-1))
	case length <= 67 && offset <= 16384:
		out = append(out,
			byte(0x80|(length-4)&0x3F),
			byte(nl&0x03<<6|(offset-1)>>8&0x3F),
			byte(offset-1))
	default:
		out = append(out,
			byte(0xC0|nl&0x03|(length-5)>>6&0x0C|(offset-1)>>12&0x10),
			byte((offset-1)>>8),
			byte(offset-1),
			byte(length-5))
	}
	return append(out, lits...)
}

// Compress packs src with hash-chain match finding and lazy evaluation:
// a match is deferred when the next position holds a strictly longer one.
func (RefPack) Compress(src []byte) []byte {
	size := len(src)
	out := make([]byte, 0, size/2+8)
	out = append(out, 0x10, 0xFB, byte(size>>16), byte(size>>8), byte(size))
	if size == 0 {
		return append(out, 0xFC)
	}

	m := newRefMatcher(src)
	flushBulk := func(litStart, pos int) int {
		for pos-litStart > 3 {
			chunk := pos - litStart
			if chunk > 112 {
				chunk = 112
			}
			chunk = chunk / 4 * 4
			if chunk < 4 {
				break
			}
			out = append(out, byte(0xE0+(chunk-4)>>2))
			out = append(out, src[litStart:litStart+chunk]...)
			litStart += chunk
		}
		return litStart
	}

	pos, litStart := 0, 0
	for pos < size {
		offset, length := m.find(pos)
		if length < 3 || !refEncodable(length, offset) {
			m.insert(pos)
			pos++
			continue
		}
		if length < refMaxMatch && pos+1 < size-2 {
			m.insert(pos)
			nextOff, nextLen := m.find(pos + 1)
			if nextLen > length+1 && refEncodable(nextLen, nextOff) {
				pos++
				continue
			}
		}

		litStart = flushBulk(litStart, pos)
		out = refEmitCopy(out, src[litStart:pos], length, offset)
		for i := pos; i < pos+length && i < size-2; i++ {
			m.insert(i)
		}
		pos += length
		litStart = pos
	}

	litStart = flushBulk(litStart, size)
	trail := size - litStart
	out = append(out, byte(0xFC+trail))
	return append(out, src[litStart:]...)
}

// refMatcher is a hash-chain index over 3-byte seeds.
type refMatcher struct {
	src      []byte
	head     []int32
	chain    []int32
	inserted []bool
}

func newRefMatcher(src []byte) *refMatcher {
	head := make([]int32, 1<<refHashBits)
	for i := range head {
		head[i] = -1
	}
	return &refMatcher{
		src:      src,
		head:     head,
		chain:    make([]int32, len(src)),
		inserted: make([]bool, len(src)),
	}
}

func (m *refMatcher) hash(p int) int {
	return (int(m.src[p])<<8 ^ int(m.src[p+1])<<4 ^ int(m.src[p+2])) & (1<<refHashBits - 1)
}

func (m *refMatcher) insert(p int) {
	if p+2 >= len(m.src) || m.inserted[p] {
		return
	}
	m.inserted[p] = true
	h := m.hash(p)
	m.chain[p] = m.head[h]
	m.head[h] = int32(p)
}

// find returns the longest match at p as (offset, length), or (0, 0).
func (m *refMatcher) find(p int) (int, int) {
	src := m.src
	if p+2 >= len(src) {
		return 0, 0
	}
	cand := m.head[m.hash(p)]
	bestLen, bestOff := 2, 0
	d0, d1, d2 := src[p], src[p+1], src[p+2]

	for depth := 0; cand >= 0 && depth < refMaxChain; depth++ {
		c := int(cand)
		off := p - c
		if off > refMaxOffset {
			break
		}
		if src[c] == d0 && src[c+1] == d1 && src[c+2] == d2 {
			limit := refMaxMatch
			if rest := len(src) - p; rest < limit {
				limit = rest
			}
			ml := 3
			for ml < limit && src[c+ml] == src[p+ml] {
				ml++
			}
			if ml > bestLen {
				bestLen, bestOff = ml, off
				if ml >= refMaxMatch {
					break
				}
			}
		}
		cand = m.chain[c]
	}
	if bestLen < 3 {
		return 0, 0
	}
	return bestOff, bestLen
}
