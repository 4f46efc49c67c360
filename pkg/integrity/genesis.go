package integrity

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	genesisHeaderOffset   = 0x100
	genesisChecksumOffset = 0x18E
	genesisDataStart      = 0x200
	genesisRTS            = 0x4E75
)

// Genesis repairs the cartridge header checksum of a Mega Drive ROM.
// Some titles verify the checksum themselves at boot with a routine the
// header value alone cannot satisfy once record data moved; for those,
// WithChecksumBypass plants an RTS at the start of the routine so it
// returns before comparing.
type Genesis struct {
	bypass []int
}

// GenesisOption configures a Genesis finalizer.
type GenesisOption func(*Genesis)

// WithChecksumBypass stubs out the in-ROM checksum routine at offset.
func WithChecksumBypass(offset int) GenesisOption {
	return func(g *Genesis) { g.bypass = append(g.bypass, offset) }
}

// NewGenesis returns a finalizer for Mega Drive cartridge images.
func NewGenesis(opts ...GenesisOption) *Genesis {
	g := &Genesis{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Genesis) Name() string { return "genesis-checksum" }

// Finalize recomputes the header checksum and applies any configured
// routine bypasses. Already-bypassed routines are left untouched.
func (g *Genesis) Finalize(image []byte) error {
	if len(image) < genesisDataStart || len(image)%2 != 0 {
		return fmt.Errorf("%w: image too small or odd-sized for a cartridge", ErrValidation)
	}
	if !bytes.HasPrefix(image[genesisHeaderOffset:], []byte("SEGA")) {
		return fmt.Errorf("%w: no SEGA header at 0x100", ErrValidation)
	}
	for _, off := range g.bypass {
		if off+2 > len(image) {
			return fmt.Errorf("%w: bypass offset 0x%X beyond image end", ErrValidation, off)
		}
		binary.BigEndian.PutUint16(image[off:], genesisRTS)
	}
	var sum uint16
	for off := genesisDataStart; off < len(image); off += 2 {
		sum += binary.BigEndian.Uint16(image[off:])
	}
	binary.BigEndian.PutUint16(image[genesisChecksumOffset:], sum)
	return nil
}
