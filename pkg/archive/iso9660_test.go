package archive

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiitsgabe/rompatch/pkg/lzc"
)

// isoDirRecord builds one ISO 9660 directory record. Records are padded
// to even length as the standard requires.
func isoDirRecord(name string, lba, size int, dir bool) []byte {
	recLen := 33 + len(name)
	if recLen%2 == 1 {
		recLen++
	}
	rec := make([]byte, recLen)
	rec[0] = byte(recLen)
	binary.LittleEndian.PutUint32(rec[2:], uint32(lba))
	binary.BigEndian.PutUint32(rec[6:], uint32(lba))
	binary.LittleEndian.PutUint32(rec[10:], uint32(size))
	binary.BigEndian.PutUint32(rec[14:], uint32(size))
	if dir {
		rec[25] = 0x02
	}
	rec[32] = byte(len(name))
	copy(rec[33:], name)
	return rec
}

// buildISO lays out a minimal image: PVD at sector 16, root directory at
// sector 20, one subdirectory at 21, the payload file at 22 with a
// two-sector allocation.
func buildISO(t *testing.T, payload []byte) []byte {
	t.Helper()
	require.LessOrEqual(t, len(payload), 2*isoSectorSize)
	image := make([]byte, 25*isoSectorSize)

	pvd := image[isoPVDOffset:]
	pvd[0] = 1
	copy(pvd[1:], "CD001")
	copy(pvd[isoRootRecOff:], isoDirRecord("\x00", 20, isoSectorSize, true))

	root := image[20*isoSectorSize:]
	copy(root, isoDirRecord("SUB", 21, isoSectorSize, true))

	sub := image[21*isoSectorSize:]
	copy(sub, isoDirRecord("DATA.BIN;1", 22, len(payload), false))

	copy(image[22*isoSectorSize:], payload)
	return image
}

func TestISOLocateAndExtract(t *testing.T) {
	image := buildISO(t, []byte("payload bytes"))
	iso, err := OpenISO(image)
	require.NoError(t, err)

	// version suffix and case are ignored
	f, err := iso.Locate("sub/data.bin")
	require.NoError(t, err)
	require.Equal(t, 22*isoSectorSize, f.Offset)
	require.Equal(t, 13, f.Size)

	data, err := iso.Extract("SUB/DATA.BIN")
	require.NoError(t, err)
	require.Equal(t, []byte("payload bytes"), data)

	_, err = iso.Extract("SUB/MISSING.BIN")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = iso.Extract("SUB")
	require.ErrorIs(t, err, ErrValidation)
}

func TestOpenISORejectsGarbage(t *testing.T) {
	_, err := OpenISO(make([]byte, 1024))
	require.ErrorIs(t, err, ErrValidation)

	image := make([]byte, 20*isoSectorSize)
	_, err = OpenISO(image) // no CD001
	require.ErrorIs(t, err, ErrValidation)
}

func TestISOReplace(t *testing.T) {
	image := buildISO(t, bytes.Repeat([]byte{0x33}, 100))
	iso, err := OpenISO(image)
	require.NoError(t, err)

	require.NoError(t, iso.Replace("SUB/DATA.BIN", []byte("new")))
	data, err := iso.Extract("SUB/DATA.BIN")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), data)

	// the allocation runs to the sector boundary, so growing within it is
	// fine, but outgrowing it is a hard failure
	require.NoError(t, iso.Replace("SUB/DATA.BIN", make([]byte, isoSectorSize)))
	err = iso.Replace("SUB/DATA.BIN", make([]byte, 3*isoSectorSize))
	require.ErrorIs(t, err, ErrCapacity)
}

func TestNestedStack(t *testing.T) {
	table := bytes.Repeat([]byte("row data "), 40)
	packed := lzc.RefPack{}.Compress(table)
	viv := buildBIGF(t, map[string][]byte{
		"stats.tdb": packed,
		"plain.bin": []byte("uncompressed"),
	}, "stats.tdb", "plain.bin")

	image := buildISO(t, viv)
	n, err := OpenNested(image, "SUB/DATA.BIN")
	require.NoError(t, err)

	// compressed members come back decompressed
	data, err := n.ExtractName("stats.tdb")
	require.NoError(t, err)
	require.Equal(t, table, data)

	// uncompressed members pass through
	data, err = n.ExtractName("plain.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("uncompressed"), data)

	// replace recompresses and a single Rebuild pushes the change into
	// the outer image
	edited := bytes.Replace(table, []byte("row data "), []byte("new rows "), 3)
	require.NoError(t, n.ReplaceName("stats.tdb", edited))
	require.True(t, n.Dirty())

	_, err = n.Rebuild()
	require.NoError(t, err)
	require.False(t, n.Dirty())

	reopened, err := OpenNested(image, "SUB/DATA.BIN")
	require.NoError(t, err)
	data, err = reopened.ExtractName("stats.tdb")
	require.NoError(t, err)
	require.Equal(t, edited, data)
}

func TestNestedRebuildCapacity(t *testing.T) {
	// sub-archive sized right at its allocation; growing a member forces
	// a sub-archive rebuild that can no longer fit the image slot
	big := bytes.Repeat([]byte{0x7E}, isoSectorSize)
	viv := buildBIGF(t, map[string][]byte{"blob.bin": big}, "blob.bin")
	require.LessOrEqual(t, len(viv), 2*isoSectorSize)

	image := buildISO(t, viv)
	n, err := OpenNested(image, "SUB/DATA.BIN")
	require.NoError(t, err)

	require.NoError(t, n.ReplaceName("blob.bin", make([]byte, 4*isoSectorSize)))
	_, err = n.Rebuild()
	require.ErrorIs(t, err, ErrCapacity)
}
