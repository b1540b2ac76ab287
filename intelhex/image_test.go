package intelhex

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReader(t *testing.T) {
	t.Run("single data record", func(t *testing.T) {
		img, err := LoadReader(strings.NewReader(":0300300002337A1E\n:00000001FF\n"))
		require.NoError(t, err)

		require.Len(t, img.Blocks, 1)
		blk := img.Blocks[0]
		assert.Equal(t, uint64(0), blk.StartAddress)
		assert.Equal(t, uint64(0x33), blk.Size)
		assert.Equal(t, []byte{0x02, 0x33, 0x7A}, blk.Data[0x30:0x33])
		assert.Equal(t, make([]byte, 0x30), blk.Data[:0x30])
		assert.Equal(t, uint64(0x33), img.Size)
	})

	t.Run("extended linear address opens a new block", func(t *testing.T) {
		input := ":0400000001020304F2\n" +
			":020000040001F9\n" +
			":04001000DEADBEEFB4\n" +
			":00000001FF\n"

		img, err := LoadReader(strings.NewReader(input))
		require.NoError(t, err)

		require.Len(t, img.Blocks, 2)
		assert.Equal(t, uint64(0), img.Blocks[0].StartAddress)
		assert.Equal(t, uint64(4), img.Blocks[0].Size)
		assert.Equal(t, uint64(0x10000), img.Blocks[1].StartAddress)
		assert.Equal(t, uint64(0x14), img.Blocks[1].Size)
		assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, img.Blocks[1].Data[0x10:0x14])
		assert.Equal(t, uint64(0x18), img.Size)
	})

	t.Run("leading extended address rebases the empty block", func(t *testing.T) {
		input := ":020000041D00DD\n" +
			":0400000001020304F2\n" +
			":00000001FF\n"

		img, err := LoadReader(strings.NewReader(input))
		require.NoError(t, err)

		require.Len(t, img.Blocks, 1)
		assert.Equal(t, uint64(0x1D000000), img.Blocks[0].StartAddress)
		assert.Equal(t, []byte{1, 2, 3, 4}, img.Blocks[0].Data[:4])
	})

	t.Run("same base keeps the current block", func(t *testing.T) {
		input := ":020000040000FA\n" +
			":0400000001020304F2\n" +
			":020000040000FA\n" +
			":04000800AABBCCDDE6\n" +
			":00000001FF\n"

		img, err := LoadReader(strings.NewReader(input))
		require.NoError(t, err)

		require.Len(t, img.Blocks, 1)
		assert.Equal(t, uint64(0x0C), img.Blocks[0].Size)
	})

	t.Run("record crossing 0xFFFF splits the block", func(t *testing.T) {
		input := ":10FFF800000102030405060708090A0B0C0D0E0F81\n:00000001FF\n"

		img, err := LoadReader(strings.NewReader(input))
		require.NoError(t, err)

		require.Len(t, img.Blocks, 2)
		assert.Equal(t, uint64(BlockSize), img.Blocks[0].Size)
		assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, img.Blocks[0].Data[0xFFF8:])
		assert.Equal(t, uint64(0x10000), img.Blocks[1].StartAddress)
		assert.Equal(t, uint64(8), img.Blocks[1].Size)
		assert.Equal(t, []byte{8, 9, 10, 11, 12, 13, 14, 15}, img.Blocks[1].Data[:8])

		data, err := img.Region(0xFFFC, 8, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte{4, 5, 6, 7, 8, 9, 10, 11}, data)
	})

	t.Run("consecutive crossings advance the block base", func(t *testing.T) {
		record := ":10FFF800000102030405060708090A0B0C0D0E0F81\n"
		input := record + record + ":00000001FF\n"

		img, err := LoadReader(strings.NewReader(input))
		require.NoError(t, err)

		require.Len(t, img.Blocks, 3)
		assert.Equal(t, uint64(0), img.Blocks[0].StartAddress)
		assert.Equal(t, uint64(0x10000), img.Blocks[1].StartAddress)
		assert.Equal(t, uint64(BlockSize), img.Blocks[1].Size)
		assert.Equal(t, uint64(0x20000), img.Blocks[2].StartAddress)
		assert.Equal(t, uint64(8), img.Blocks[2].Size)

		data, err := img.Region(0xFFF8, 16, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, data)

		data, err = img.Region(0x1FFF8, 16, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, data)
	})

	t.Run("stops at EOF record", func(t *testing.T) {
		input := ":0400000001020304F2\n:00000001FF\nthis is not a record\n"

		img, err := LoadReader(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, uint64(4), img.Size)
	})

	t.Run("blank lines and CRLF", func(t *testing.T) {
		input := ":0400000001020304F2\r\n\r\n:00000001FF\r\n"

		img, err := LoadReader(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, uint64(4), img.Size)
	})

	t.Run("end of input without EOF record", func(t *testing.T) {
		img, err := LoadReader(strings.NewReader(":0400000001020304F2"))
		require.NoError(t, err)
		assert.Equal(t, uint64(4), img.Size)
	})

	t.Run("empty input", func(t *testing.T) {
		img, err := LoadReader(strings.NewReader(""))
		require.NoError(t, err)
		require.Len(t, img.Blocks, 1)
		assert.Equal(t, uint64(0), img.Size)
	})
}

func TestLoadReaderErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		check    func(t *testing.T, err error)
	}{
		{
			name:     "missing colon",
			input:    ":0400000001020304F2\n0400000001020304F2\n",
			wantLine: 2,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrMissingColon))
			},
		},
		{
			name:     "bad checksum",
			input:    ":0400000001020304F3\n",
			wantLine: 1,
			check: func(t *testing.T, err error) {
				var csErr *ChecksumError
				assert.True(t, errors.As(err, &csErr))
			},
		},
		{
			name:     "unsupported record",
			input:    ":020000020000FC\n",
			wantLine: 1,
			check: func(t *testing.T, err error) {
				var recErr *UnsupportedRecordError
				require.True(t, errors.As(err, &recErr))
				assert.Equal(t, RecordExtendedSegmentAddress, recErr.Type)
			},
		},
		{
			name: "revisited block",
			input: ":0400000001020304F2\n" +
				":020000040001F9\n" +
				":04001000DEADBEEFB4\n" +
				":020000040000FA\n",
			wantLine: 4,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrBlockRevisited))
			},
		},
		{
			name: "crossing into a loaded block",
			input: ":020000040002F8\n" +
				":0400000001020304F2\n" +
				":020000040001F9\n" +
				":10FFF800000102030405060708090A0B0C0D0E0F81\n",
			wantLine: 4,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrBlockRevisited))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadReader(strings.NewReader(tt.input))
			require.Error(t, err)

			var fmtErr *FormatError
			require.True(t, errors.As(err, &fmtErr), "got %v", err)
			assert.Equal(t, tt.wantLine, fmtErr.Line)
			assert.Contains(t, err.Error(), "line")
			tt.check(t, err)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device unplugged")
}

func TestLoadReaderIOError(t *testing.T) {
	_, err := LoadReader(failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.hex")
	require.NoError(t, os.WriteFile(path, []byte(":0300300002337A1E\n:00000001FF\n"), 0o644))

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x33), img.Size)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hex"))
	assert.Error(t, err)
}

func TestRegion(t *testing.T) {
	img, err := LoadReader(strings.NewReader(":0400000001020304F2\n:04000800AABBCCDDE6\n:00000001FF\n"))
	require.NoError(t, err)

	tests := []struct {
		name            string
		address, size   uint32
		bytesPerAddress int
		want            []byte
	}{
		{name: "bytes", address: 0, size: 4, bytesPerAddress: 1, want: []byte{1, 2, 3, 4}},
		{name: "gap reads zero", address: 2, size: 8, bytesPerAddress: 1, want: []byte{3, 4, 0, 0, 0, 0, 0xAA, 0xBB}},
		{name: "pic24 words", address: 2, size: 3, bytesPerAddress: 2, want: []byte{0, 0, 0, 0, 0xAA, 0xBB}},
		{name: "past image", address: 0x100, size: 2, bytesPerAddress: 2, want: []byte{0, 0, 0, 0}},
		{name: "empty", address: 0, size: 0, bytesPerAddress: 1, want: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := img.Region(tt.address, tt.size, tt.bytesPerAddress)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegionNotLoaded(t *testing.T) {
	var img *Image
	_, err := img.Region(0, 1, 1)
	assert.True(t, errors.Is(err, ErrNotLoaded))

	_, err = (&Image{}).Region(0, 1, 1)
	assert.True(t, errors.Is(err, ErrNotLoaded))
}

func TestRegionInvalidWidth(t *testing.T) {
	img, err := LoadReader(strings.NewReader(":00000001FF\n"))
	require.NoError(t, err)

	_, err = img.Region(0, 1, 0)
	assert.Error(t, err)
}

// randomImage dumps a few random segments through gohex so fixtures cover
// extended linear addressing exactly as common tooling writes it.
func randomImage(t *testing.T, rng *rand.Rand) (*gohex.Memory, []byte) {
	t.Helper()

	mem := gohex.NewMemory()
	segments := []struct {
		addr uint32
		size int
	}{
		{0x0000, 0x200},
		{0x0400, 0x40},
		{0xFF00, 0x200}, // crosses into the second 64 KiB window
		{0x30000, 0x80},
	}
	for _, s := range segments {
		data := make([]byte, s.size)
		rng.Read(data)
		require.NoError(t, mem.AddBinary(s.addr, data))
	}

	var buf bytes.Buffer
	require.NoError(t, mem.DumpIntelHex(&buf, 16))
	return mem, buf.Bytes()
}

func TestRegionRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	mem, hexData := randomImage(t, rng)

	img, err := LoadReader(bytes.NewReader(hexData))
	require.NoError(t, err)

	windows := []struct {
		address, size   uint32
		bytesPerAddress int
	}{
		{0, 0x400, 1},
		{0, 0x300, 2},
		{0x7F80, 0x100, 2},
		{0xFE00, 0x400, 1},
		{0x2FFF0, 0x100, 1},
	}

	for _, w := range windows {
		got, err := img.Region(w.address, w.size, w.bytesPerAddress)
		require.NoError(t, err)

		want := mem.ToBinary(w.address*uint32(w.bytesPerAddress), w.size*uint32(w.bytesPerAddress), 0x00)
		assert.Equal(t, want, got, "window 0x%X+0x%X x%d", w.address, w.size, w.bytesPerAddress)
	}
}

func TestLoadIdempotent(t *testing.T) {
	_, hexData := randomImage(t, rand.New(rand.NewSource(7)))

	first, err := LoadReader(bytes.NewReader(hexData))
	require.NoError(t, err)
	second, err := LoadReader(bytes.NewReader(hexData))
	require.NoError(t, err)

	require.Equal(t, len(first.Blocks), len(second.Blocks))
	assert.Equal(t, first.Size, second.Size)
	for i := range first.Blocks {
		assert.Equal(t, first.Blocks[i].StartAddress, second.Blocks[i].StartAddress)
		assert.Equal(t, first.Blocks[i].Size, second.Blocks[i].Size)
		assert.True(t, bytes.Equal(first.Blocks[i].Data, second.Blocks[i].Data))
	}
}

func TestSegments(t *testing.T) {
	mem, hexData := randomImage(t, rand.New(rand.NewSource(3)))

	img, err := LoadReader(bytes.NewReader(hexData))
	require.NoError(t, err)

	var want []Segment
	for _, s := range mem.GetDataSegments() {
		want = append(want, Segment{Address: uint64(s.Address), Length: len(s.Data)})
	}

	// The block split at 0x10000 shows up as two segments.
	got := img.Segments()
	require.Len(t, got, len(want)+1)
	assert.Equal(t, want[0], got[0])
	assert.Equal(t, want[1], got[1])
	assert.Equal(t, Segment{Address: 0xFF00, Length: 0x100}, got[2])
	assert.Equal(t, Segment{Address: 0x10000, Length: 0x100}, got[3])
	assert.Equal(t, want[3], got[4])
}
