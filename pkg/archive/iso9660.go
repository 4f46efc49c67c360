package archive

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ISO 9660 constants. The volume descriptors start at sector 16; the
// primary descriptor carries the root directory record at offset 156.
const (
	isoSectorSize = 2048
	isoPVDOffset  = 16 * isoSectorSize
	isoRootRecOff = 156
)

// ISOFile is one located file inside an ISO 9660 image: its data extent
// and the position of its directory record, so a size change can be
// written back.
type ISOFile struct {
	Path   string
	Offset int
	Size   int

	recOffset int // directory record position in the image
}

// ISO wraps an ISO 9660 image for file lookup and in-place replacement.
// The filesystem's allocation is fixed, so there is no rebuild path:
// payloads must fit the file's existing extent.
type ISO struct {
	image []byte
}

// OpenISO validates the primary volume descriptor of an in-memory image.
func OpenISO(image []byte) (*ISO, error) {
	if len(image) < isoPVDOffset+isoSectorSize {
		return nil, fmt.Errorf("iso: %d bytes is too small for a volume descriptor: %w", len(image), ErrValidation)
	}
	pvd := image[isoPVDOffset:]
	if pvd[0] != 1 || string(pvd[1:6]) != "CD001" {
		return nil, fmt.Errorf("iso: no primary volume descriptor at sector 16: %w", ErrValidation)
	}
	return &ISO{image: image}, nil
}

// Image returns the underlying image bytes.
func (iso *ISO) Image() []byte { return iso.image }

// Locate resolves a slash-separated path ("PSP_GAME/USRDIR/DB/DB.VIV")
// through the directory tree. Lookup is case-insensitive and ignores the
// ";1" version suffix ISO 9660 appends to file identifiers.
func (iso *ISO) Locate(path string) (ISOFile, error) {
	rec := iso.image[isoPVDOffset+isoRootRecOff:]
	lba := int(binary.LittleEndian.Uint32(rec[2:]))
	size := int(binary.LittleEndian.Uint32(rec[10:]))

	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		recOff, entryLBA, entrySize, isDir, err := iso.findEntry(lba, size, part)
		if err != nil {
			return ISOFile{}, fmt.Errorf("iso: %s: %w", path, err)
		}
		last := i == len(parts)-1
		if last {
			if isDir {
				return ISOFile{}, fmt.Errorf("iso: %s is a directory: %w", path, ErrValidation)
			}
			f := ISOFile{Path: path, Offset: entryLBA * isoSectorSize, Size: entrySize, recOffset: recOff}
			if f.Offset+f.Size > len(iso.image) {
				return ISOFile{}, fmt.Errorf("iso: %s extent [%#x,%#x) exceeds image: %w",
					path, f.Offset, f.Offset+f.Size, ErrValidation)
			}
			return f, nil
		}
		if !isDir {
			return ISOFile{}, fmt.Errorf("iso: %s: %q is not a directory: %w", path, part, ErrValidation)
		}
		lba, size = entryLBA, entrySize
	}
	return ISOFile{}, fmt.Errorf("iso: empty path: %w", ErrValidation)
}

// findEntry scans one directory extent for a named record. Records never
// straddle sector boundaries; a zero length byte skips to the next sector.
func (iso *ISO) findEntry(dirLBA, dirSize int, name string) (recOff, lba, size int, isDir bool, err error) {
	base := dirLBA * isoSectorSize
	if base+dirSize > len(iso.image) {
		return 0, 0, 0, false, fmt.Errorf("directory extent [%#x,%#x) exceeds image: %w",
			base, base+dirSize, ErrValidation)
	}
	dir := iso.image[base : base+dirSize]

	pos := 0
	for pos < len(dir) {
		recLen := int(dir[pos])
		if recLen == 0 {
			pos = (pos/isoSectorSize + 1) * isoSectorSize
			continue
		}
		if pos+recLen > len(dir) {
			break
		}
		nameLen := int(dir[pos+32])
		if nameLen > 0 && pos+33+nameLen <= len(dir) {
			entryName := string(dir[pos+33 : pos+33+nameLen])
			entryName, _, _ = strings.Cut(entryName, ";")
			if strings.EqualFold(entryName, name) {
				return base + pos,
					int(binary.LittleEndian.Uint32(dir[pos+2:])),
					int(binary.LittleEndian.Uint32(dir[pos+10:])),
					dir[pos+25]&0x02 != 0,
					nil
			}
		}
		pos += recLen
	}
	return 0, 0, 0, false, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// Extract returns a copy of a file's data.
func (iso *ISO) Extract(path string) ([]byte, error) {
	f, err := iso.Locate(path)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), iso.image[f.Offset:f.Offset+f.Size]...), nil
}

// Replace writes data over a file's extent in place, zero-padding the
// remainder of the allocation. Data larger than the extent fails with
// ErrCapacity — relocating extents would mean rewriting the filesystem.
func (iso *ISO) Replace(path string, data []byte) error {
	f, err := iso.Locate(path)
	if err != nil {
		return err
	}
	// the allocation runs to the sector boundary past the recorded size
	alloc := align(f.Size, isoSectorSize)
	if f.Offset+alloc > len(iso.image) {
		alloc = len(iso.image) - f.Offset
	}
	if len(data) > alloc {
		return fmt.Errorf("iso: %s: %d bytes into a %d-byte allocation: %w", path, len(data), alloc, ErrCapacity)
	}
	slot := iso.image[f.Offset : f.Offset+alloc]
	n := copy(slot, data)
	zeroFill(slot[n:])

	// record the new size in both directory-record byte orders
	rec := iso.image[f.recOffset:]
	binary.LittleEndian.PutUint32(rec[10:], uint32(len(data)))
	binary.BigEndian.PutUint32(rec[14:], uint32(len(data)))
	return nil
}
