// Package lzc implements the block-compression codecs found in console
// game data: a Konami-style tile codec (sliding-window LZ plus run-length
// fill) and EA's RefPack/QFS scheme (dictionary copy commands plus literal
// runs). Both are pure functions over byte slices with an explicit cursor,
// so several structures can be unpacked from one stream.
package lzc

import "errors"

// ErrDecode reports a malformed or truncated compressed stream.
var ErrDecode = errors.New("decode failed")

// Codec compresses and decompresses one block format. Compress is
// deterministic: identical input yields identical output. Decompress
// reports the exact number of input bytes consumed so the caller can
// locate the next structure in the same stream.
type Codec interface {
	Name() string
	Decompress(src []byte, start int) (out []byte, consumed int, err error)
	Compress(src []byte) []byte
}
