package intelhex

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
)

// BlockSize is the capacity of a MemoryBlock, the span of a 16-bit record address.
const BlockSize = 0x10000

// MemoryBlock is a 64 KiB window of the image starting at StartAddress.
type MemoryBlock struct {
	// StartAddress is the absolute byte address of Data[0]
	StartAddress uint64

	// Size is one past the highest offset written, at most BlockSize
	Size uint64

	Data []byte

	written *bitset.BitSet
}

func newMemoryBlock(start uint64) *MemoryBlock {
	return &MemoryBlock{
		StartAddress: start,
		Data:         make([]byte, BlockSize),
		written:      bitset.New(BlockSize),
	}
}

func (b *MemoryBlock) write(offset uint64, value byte) {
	b.Data[offset] = value
	b.written.Set(uint(offset))
	if offset+1 > b.Size {
		b.Size = offset + 1
	}
}

// Image is a firmware image loaded from a HEX file.
//
// Blocks are kept in the order the file introduced them, which is ascending
// for any file produced by a linker. They are never re-sorted.
type Image struct {
	Blocks []*MemoryBlock

	// Size is the sum of all block sizes
	Size uint64
}

// Segment is a contiguous run of bytes actually present in the HEX file.
type Segment struct {
	Address uint64
	Length  int
}

// Load reads a HEX file from disk.
//
// Example:
//
//	img, err := intelhex.Load("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes in %d blocks\n", img.Size, len(img.Blocks))
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open hex file")
	}
	defer func() { _ = f.Close() }()

	return LoadReader(f)
}

// LoadReader reads HEX records from r until an EOF record or end of input.
func LoadReader(r io.Reader) (*Image, error) {
	l := &loader{
		img:     &Image{Blocks: make([]*MemoryBlock, 0, 4)},
		current: newMemoryBlock(0),
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := ParseLine(line)
		if err != nil {
			return nil, &FormatError{Line: lineNum, Text: line, Err: err}
		}

		eof, err := l.apply(rec)
		if err != nil {
			return nil, &FormatError{Line: lineNum, Text: line, Err: err}
		}
		if eof {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read hex stream")
	}

	return l.finish(), nil
}

type loader struct {
	img     *Image
	current *MemoryBlock
}

func (l *loader) apply(rec Record) (bool, error) {
	switch rec.Type {
	case RecordEOF:
		return true, nil

	case RecordExtendedLinearAddress:
		base := rec.ExtendedAddress()

		switch {
		case base == l.current.StartAddress:
		case l.img.blockAt(base) != nil:
			return false, errors.Wrapf(ErrBlockRevisited, "base 0x%X", base)
		case l.current.Size == 0:
			l.current.StartAddress = base
		default:
			l.flush()
			l.current = newMemoryBlock(base)
		}

	case RecordData:
		if end := uint64(rec.Address) + uint64(rec.Length); end > l.current.Size {
			l.current.Size = end
		}

		var rebase uint64
		for j, b := range rec.Data {
			addr := uint64(rec.Address) + uint64(j) - rebase
			if addr >= BlockSize {
				// Record runs past 0xFFFF: close this block and spill into the next.
				next := l.current.StartAddress + BlockSize
				if l.img.blockAt(next) != nil {
					return false, errors.Wrapf(ErrBlockRevisited, "base 0x%X", next)
				}
				l.current.Size = BlockSize
				l.flush()
				l.current = newMemoryBlock(next)
				rebase = BlockSize
				addr -= rebase
			}
			l.current.write(addr, b)
		}
	}

	return false, nil
}

func (l *loader) flush() {
	l.img.Blocks = append(l.img.Blocks, l.current)
}

func (l *loader) finish() *Image {
	l.flush()
	l.current = nil

	l.img.Size = 0
	for _, b := range l.img.Blocks {
		l.img.Size += b.Size
	}
	return l.img
}

func (img *Image) blockAt(start uint64) *MemoryBlock {
	for _, b := range img.Blocks {
		if b.StartAddress == start {
			return b
		}
	}
	return nil
}

// Region returns size words starting at word address, where a word is
// bytesPerAddress bytes wide. The result is always size*bytesPerAddress
// bytes long; addresses the image does not cover are 0x00.
//
// Example:
//
//	// PIC24: 0x200 words of program memory = 0x400 bytes
//	data, err := img.Region(0, 0x200, 2)
func (img *Image) Region(address, size uint32, bytesPerAddress int) ([]byte, error) {
	if img == nil || img.Blocks == nil {
		return nil, ErrNotLoaded
	}
	if bytesPerAddress <= 0 {
		return nil, errors.Errorf("invalid bytes per address %d", bytesPerAddress)
	}

	width := uint64(bytesPerAddress)
	out := make([]byte, uint64(size)*width)
	start := uint64(address) * width
	end := start + uint64(len(out))

	for _, b := range img.Blocks {
		lo := max(start, b.StartAddress)
		hi := min(end, b.StartAddress+b.Size)
		if lo >= hi {
			continue
		}
		copy(out[lo-start:hi-start], b.Data[lo-b.StartAddress:hi-b.StartAddress])
	}

	return out, nil
}

// Segments lists the byte ranges that were written by data records, in
// block order. Gaps inside a block's Size are not part of any segment.
func (img *Image) Segments() []Segment {
	if img == nil {
		return nil
	}

	var segs []Segment
	for _, b := range img.Blocks {
		i, ok := b.written.NextSet(0)
		for ok {
			j, more := b.written.NextClear(i)
			if !more {
				j = b.written.Len()
			}
			segs = append(segs, Segment{
				Address: b.StartAddress + uint64(i),
				Length:  int(j - i),
			})
			i, ok = b.written.NextSet(j)
		}
	}
	return segs
}
