package lzc

import "fmt"

// Tile opcode stream:
//
//	0x00        terminator
//	0x01..0x3F  literal run, length = op, followed by that many bytes
//	0x40..0x7F  RLE fill, length = op-0x40+3, followed by the fill byte;
//	            op 0x7F additionally reads continuation bytes before the
//	            fill byte, each adding its value, stopping at the first
//	            byte below 0xFF
//	0x80..0xFF  window copy, length = op&0x3F+3, followed by a 2-byte
//	            little-endian distance back from the write position
const (
	tileWindow     = 1024
	tileMaxLiteral = 0x3F
	tileMaxRun     = 0x7E - 0x40 + 3 // longest run of the plain form
	tileExtRunBase = 0x7F - 0x40 + 3 // extended form starts here
	tileMaxCopy    = 0x3F + 3
)

// Tile is the Konami-style tile codec.
type Tile struct{}

// Name implements Codec.
func (Tile) Name() string { return "tile" }

// Decompress unpacks one tile stream beginning at start, stopping at the
// terminator opcode. consumed includes the terminator byte.
func (Tile) Decompress(src []byte, start int) ([]byte, int, error) {
	if start < 0 || start > len(src) {
		return nil, 0, fmt.Errorf("tile: start %#x outside %d-byte input: %w", start, len(src), ErrDecode)
	}
	out := make([]byte, 0, 256)
	pos := start
	for {
		if pos >= len(src) {
			return nil, 0, fmt.Errorf("tile: stream truncated before terminator at %#x: %w", pos, ErrDecode)
		}
		op := src[pos]
		pos++
		switch {
		case op == 0x00:
			return out, pos - start, nil

		case op <= tileMaxLiteral:
			n := int(op)
			if pos+n > len(src) {
				return nil, 0, fmt.Errorf("tile: literal run of %d truncated at %#x: %w", n, pos, ErrDecode)
			}
			out = append(out, src[pos:pos+n]...)
			pos += n

		case op < 0x80:
			n := int(op) - 0x40 + 3
			if op == 0x7F {
				for {
					if pos >= len(src) {
						return nil, 0, fmt.Errorf("tile: run continuation truncated at %#x: %w", pos, ErrDecode)
					}
					c := src[pos]
					pos++
					n += int(c)
					if c != 0xFF {
						break
					}
				}
			}
			if pos >= len(src) {
				return nil, 0, fmt.Errorf("tile: run value truncated at %#x: %w", pos, ErrDecode)
			}
			v := src[pos]
			pos++
			for i := 0; i < n; i++ {
				out = append(out, v)
			}

		default:
			n := int(op&0x3F) + 3
			if pos+2 > len(src) {
				return nil, 0, fmt.Errorf("tile: copy distance truncated at %#x: %w", pos, ErrDecode)
			}
			dist := int(src[pos]) | int(src[pos+1])<<8
			pos += 2
			if dist < 1 || dist > len(out) || dist > tileWindow {
				return nil, 0, fmt.Errorf("tile: copy distance %d at %#x with %d bytes written: %w",
					dist, pos-2, len(out), ErrDecode)
			}
			// byte-at-a-time: copies may overlap their own output
			for i := 0; i < n; i++ {
				out = append(out, out[len(out)-dist])
			}
		}
	}
}

// Compress packs src greedily. At each position the longest window copy,
// the run length, and the literal cost are weighed by output bytes saved;
// ties resolve copy, then run, then literal, so output is deterministic.
func (Tile) Compress(src []byte) []byte {
	out := make([]byte, 0, len(src)/2+16)
	litStart := 0

	flushLiterals := func(end int) {
		for litStart < end {
			n := end - litStart
			if n > tileMaxLiteral {
				n = tileMaxLiteral
			}
			out = append(out, byte(n))
			out = append(out, src[litStart:litStart+n]...)
			litStart += n
		}
	}

	pos := 0
	for pos < len(src) {
		copyLen, copyDist := tileFindCopy(src, pos)
		runLen := tileRunLength(src, pos)

		// net output bytes saved by each option over raw literals
		copyGain, runGain := 0, 0
		if copyLen >= 3 {
			copyGain = copyLen - 3
		}
		if runLen >= 3 {
			runGain = runLen - tileRunCost(runLen)
		}
		if copyGain == 0 && runGain == 0 {
			pos++
			continue
		}

		flushLiterals(pos)
		if copyGain >= runGain {
			out = append(out, 0x80|byte(copyLen-3), byte(copyDist), byte(copyDist>>8))
			pos += copyLen
		} else {
			out = tileEmitRun(out, runLen, src[pos])
			pos += runLen
		}
		litStart = pos
	}

	flushLiterals(len(src))
	return append(out, 0x00)
}

func tileRunCost(n int) int {
	if n <= tileMaxRun {
		return 2
	}
	return 3 + (n-tileExtRunBase)/0xFF
}

func tileEmitRun(out []byte, n int, v byte) []byte {
	if n <= tileMaxRun {
		return append(out, byte(0x40+n-3), v)
	}
	out = append(out, 0x7F)
	rest := n - tileExtRunBase
	for rest >= 0xFF {
		out = append(out, 0xFF)
		rest -= 0xFF
	}
	return append(out, byte(rest), v)
}

func tileRunLength(src []byte, pos int) int {
	n := 1
	for pos+n < len(src) && src[pos+n] == src[pos] {
		n++
	}
	return n
}

// tileFindCopy returns the longest window match at pos and its distance.
// Matches may extend past their own start (overlapping copies).
func tileFindCopy(src []byte, pos int) (length, dist int) {
	lo := pos - tileWindow
	if lo < 0 {
		lo = 0
	}
	limit := len(src) - pos
	if limit > tileMaxCopy {
		limit = tileMaxCopy
	}
	for cand := pos - 1; cand >= lo; cand-- {
		n := 0
		for n < limit && src[cand+n] == src[pos+n] {
			n++
		}
		if n > length {
			length, dist = n, pos-cand
			if n == limit {
				break
			}
		}
	}
	return length, dist
}
