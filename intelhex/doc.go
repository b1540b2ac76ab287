// Package intelhex loads Intel HEX firmware images into memory.
//
// # HEX Record Format
//
// Each line of a HEX file is one record, hex-encoded after a leading colon:
//
//	:[LEN(1)][ADDR(2)][TYPE(1)][DATA(LEN)][CHECKSUM(1)]
//
// Example:
//
//	:0300300002337A1E
//	  03 = 3 data bytes
//	  0030 = load offset 0x0030
//	  00 = Data record
//	  02337A = data
//	  1E = checksum (two's complement of the byte sum)
//
// Only the record types needed by PIC toolchains are accepted: Data (0x00),
// End Of File (0x01) and Extended Linear Address (0x04). Every other type is
// rejected with an UnsupportedRecordError rather than silently ignored.
//
// # Memory Image
//
// Data is collected into 64 KiB MemoryBlocks keyed by their absolute start
// address. Bytes never written by the file read back as 0x00, not as the
// 0xFF of erased flash.
//
// Load a file and extract a device region expressed in words:
//
//	img, err := intelhex.Load("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// 0x100 words of program memory on a PIC24 (2 bytes per address)
//	data, err := img.Region(0x0000, 0x100, 2)
//
// # Error Handling
//
// Every parse failure is returned as a *FormatError carrying the line number
// and text of the offending record. The underlying cause can be inspected
// with errors.As / errors.Is:
//   - *ChecksumError for a record checksum mismatch
//   - *UnsupportedRecordError for record types other than 0x00, 0x01, 0x04
//   - ErrMissingColon, ErrMalformedRecord, ErrBlockRevisited
package intelhex
