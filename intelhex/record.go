package intelhex

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RecordType is the type field of a HEX record.
type RecordType byte

// Record types defined by the Intel HEX format.
const (
	RecordData                   RecordType = 0x00
	RecordEOF                    RecordType = 0x01
	RecordExtendedSegmentAddress RecordType = 0x02
	RecordStartSegmentAddress    RecordType = 0x03
	RecordExtendedLinearAddress  RecordType = 0x04
	RecordStartLinearAddress     RecordType = 0x05
)

// recordHeaderSize is LEN(1) + ADDR(2) + TYPE(1).
const recordHeaderSize = 4

func (t RecordType) String() string {
	switch t {
	case RecordData:
		return "Data"
	case RecordEOF:
		return "EOF"
	case RecordExtendedSegmentAddress:
		return "ExtendedSegmentAddress"
	case RecordStartSegmentAddress:
		return "StartSegmentAddress"
	case RecordExtendedLinearAddress:
		return "ExtendedLinearAddress"
	case RecordStartLinearAddress:
		return "StartLinearAddress"
	default:
		return fmt.Sprintf("0x%02X", byte(t))
	}
}

// Record is one decoded line of a HEX file.
type Record struct {
	Length   byte
	Address  uint16
	Type     RecordType
	Data     []byte
	Checksum byte
}

// ExtendedAddress returns the base address carried by an Extended Linear
// Address record, already shifted into the upper 16 bits.
func (r Record) ExtendedAddress() uint64 {
	return uint64(binary.BigEndian.Uint16(r.Data)) << 16
}

// ParseLine decodes a single HEX record.
//
// The checksum is validated before the record type is interpreted, so a
// corrupted line is always reported as a checksum error.
func ParseLine(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != ':' {
		return Record{}, ErrMissingColon
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return Record{}, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	if len(raw) < recordHeaderSize+1 {
		return Record{}, errors.Wrapf(ErrMalformedRecord, "record too short: %d bytes", len(raw))
	}

	body := raw[:len(raw)-1]
	checksum := raw[len(raw)-1]
	if calculated := calculateChecksum(body); calculated != checksum {
		return Record{}, &ChecksumError{Expected: calculated, Actual: checksum}
	}

	length := raw[0]
	if len(raw) != recordHeaderSize+int(length)+1 {
		return Record{}, errors.Wrapf(ErrMalformedRecord,
			"record length %d does not match %d data bytes", length, len(raw)-recordHeaderSize-1)
	}

	rec := Record{
		Length:   length,
		Address:  binary.BigEndian.Uint16(raw[1:3]),
		Type:     RecordType(raw[3]),
		Data:     raw[recordHeaderSize : recordHeaderSize+int(length)],
		Checksum: checksum,
	}

	switch rec.Type {
	case RecordData, RecordEOF:
	case RecordExtendedLinearAddress:
		if rec.Length != 2 {
			return Record{}, errors.Wrapf(ErrMalformedRecord,
				"extended linear address record carries %d bytes, expected 2", rec.Length)
		}
	default:
		return Record{}, &UnsupportedRecordError{Type: rec.Type}
	}

	return rec, nil
}

// calculateChecksum returns the two's complement of the byte sum.
func calculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}
