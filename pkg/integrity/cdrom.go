package integrity

import "fmt"

// SectorSize is the raw CD-ROM sector size in bytes (Mode 2 / 2352).
const SectorSize = 2352

const (
	cdSyncSize      = 12
	cdHeaderOffset  = 12
	cdDataOffset    = 0x18
	cdForm1EDC      = 0x818
	cdForm1ECCP     = 0x81C
	cdForm1ECCQ     = 0x8C8
	cdForm2EDC      = 0x92C
	cdModeOffset    = 0x0F
	cdSubmodeOffset = 0x12
	cdForm2Flag     = 0x20
)

var cdSync = [cdSyncSize]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// EDC table for the CRC-32/EDC polynomial used by CD-ROM sectors.
var edcLUT [256]uint32

// GF(2^8) tables for the Reed-Solomon product code covering the sector
// payload. fLUT multiplies by alpha, bLUT inverts the (x, x*alpha) sum.
var eccFLUT, eccBLUT [256]byte

func init() {
	for i := range edcLUT {
		edc := uint32(i)
		for j := 0; j < 8; j++ {
			if edc&1 != 0 {
				edc = (edc >> 1) ^ 0xD8018001
			} else {
				edc >>= 1
			}
		}
		edcLUT[i] = edc
	}
	for i := 0; i < 256; i++ {
		f := byte(i << 1)
		if i&0x80 != 0 {
			f ^= 0x1D
		}
		eccFLUT[i] = f
		eccBLUT[byte(i)^f] = byte(i)
	}
}

func edcCompute(data []byte) uint32 {
	var edc uint32
	for _, b := range data {
		edc = (edc >> 8) ^ edcLUT[(edc^uint32(b))&0xFF]
	}
	return edc
}

// eccCompute writes one parity plane over src, which must start at the
// sector header (offset 12) with the address bytes already zeroed for
// Mode 2 XA sectors.
func eccCompute(src []byte, majorCount, minorCount, majorMult, minorInc int, dest []byte) {
	size := majorCount * minorCount
	for major := 0; major < majorCount; major++ {
		index := (major >> 1) * majorMult
		if major&1 != 0 {
			index++
		}
		var eccA, eccB byte
		for minor := 0; minor < minorCount; minor++ {
			temp := src[index]
			index += minorInc
			if index >= size {
				index -= size
			}
			eccA ^= temp
			eccB ^= temp
			eccA = eccFLUT[eccA]
		}
		eccA = eccBLUT[eccFLUT[eccA]^eccB]
		dest[major] = eccA
		dest[major+majorCount] = eccA ^ eccB
	}
}

// CD regenerates the error-detection and error-correction codes of raw
// Mode 2 sectors touched by a patch. Byte ranges are registered with
// MarkRange as they are written; Finalize then rebuilds only the
// affected sectors.
type CD struct {
	dirty map[int]struct{}
}

// NewCD returns a finalizer with no sectors marked.
func NewCD() *CD {
	return &CD{dirty: make(map[int]struct{})}
}

func (c *CD) Name() string { return "cdrom-edc" }

// MarkRange records that image bytes [offset, offset+size) were modified.
func (c *CD) MarkRange(offset, size int) {
	if size <= 0 {
		return
	}
	first := offset / SectorSize
	last := (offset + size - 1) / SectorSize
	for s := first; s <= last; s++ {
		c.dirty[s] = struct{}{}
	}
}

// Finalize rewrites the EDC and ECC fields of every marked sector and
// clears the mark set. Sectors past the end of the image or with a
// malformed sync pattern fail the whole pass.
func (c *CD) Finalize(image []byte) error {
	for s := range c.dirty {
		off := s * SectorSize
		if off+SectorSize > len(image) {
			return fmt.Errorf("%w: sector %d beyond image end", ErrValidation, s)
		}
		if err := RegenerateSector(image[off : off+SectorSize]); err != nil {
			return fmt.Errorf("sector %d: %w", s, err)
		}
	}
	c.dirty = make(map[int]struct{})
	return nil
}

// RegenerateSector recomputes the EDC, and for Form 1 the ECC, of a
// single raw 2352-byte sector in place.
func RegenerateSector(sector []byte) error {
	if len(sector) != SectorSize {
		return fmt.Errorf("%w: sector is %d bytes, want %d", ErrValidation, len(sector), SectorSize)
	}
	if [cdSyncSize]byte(sector[:cdSyncSize]) != cdSync {
		return fmt.Errorf("%w: bad sync pattern", ErrValidation)
	}
	if mode := sector[cdModeOffset]; mode != 2 {
		return fmt.Errorf("%w: mode %d sector, want mode 2", ErrValidation, mode)
	}
	if sector[cdSubmodeOffset]&cdForm2Flag != 0 {
		putEDC(sector[cdForm2EDC:], edcCompute(sector[0x10:cdForm2EDC]))
		return nil
	}
	putEDC(sector[cdForm1EDC:], edcCompute(sector[0x10:cdForm1EDC]))

	// Mode 2 XA parity is computed with the sector address zeroed. The
	// P plane covers header through EDC (2064 bytes); the Q plane adds
	// the P parity on top.
	var work [86*24 + 172]byte
	copy(work[4:], sector[cdHeaderOffset+4:cdForm1ECCP])
	eccCompute(work[:], 86, 24, 2, 86, sector[cdForm1ECCP:cdForm1ECCQ])
	copy(work[86*24:], sector[cdForm1ECCP:cdForm1ECCQ])
	eccCompute(work[:], 52, 43, 86, 88, sector[cdForm1ECCQ:SectorSize])
	return nil
}

func putEDC(dst []byte, edc uint32) {
	dst[0] = byte(edc)
	dst[1] = byte(edc >> 8)
	dst[2] = byte(edc >> 16)
	dst[3] = byte(edc >> 24)
}
