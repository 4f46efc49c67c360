package patch

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/DataDog/zstd"
	"github.com/klauspost/compress/gzip"
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	gzipMagic = []byte{0x1F, 0x8B}
)

// ReadSource loads a source image into memory, transparently
// decompressing zstd and gzip containers. Compression is detected by
// magic bytes, not file extension, so renamed dumps still load.
func ReadSource(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	switch {
	case bytes.HasPrefix(raw, zstdMagic):
		out, err := zstd.Decompress(nil, raw)
		if err != nil {
			return nil, fmt.Errorf("decompress zstd source %s: %w", path, err)
		}
		return out, nil
	case bytes.HasPrefix(raw, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decompress gzip source %s: %w", path, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress gzip source %s: %w", path, err)
		}
		return out, nil
	default:
		return raw, nil
	}
}
