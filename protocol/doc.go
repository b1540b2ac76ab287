// Package protocol implements the packet format of the Microchip USB HID bootloader.
//
// This package provides functions to build command packets and parse response
// packets exchanged with PIC18, PIC24 and PIC32 devices running the HID
// bootloader.
//
// # Protocol Overview
//
// Every packet is exactly PacketSize (65) bytes: a reserved byte that carries
// the HID report ID, a command byte, and a command-specific payload. Unused
// trailing bytes are zero.
//
//	Query:           [RSVD][0x02][0...]
//	Query response:  [RSVD][0x02][BYTES_PER_PACKET][FAMILY][REGION(9) x 6]
//	Erase:           [RSVD][0x04][0...]
//	Program:         [RSVD][0x05][ADDR(4, LE)][LEN][0...][DATA(LEN)]
//	Program complete:[RSVD][0x06][0...]
//	Get data:        [RSVD][0x07][ADDR(4, LE)][LEN][0...]
//	Reset:           [RSVD][0x08][0...]
//
// Addresses are device word addresses. Program and Get Data payloads are
// right-aligned inside the 58-byte data field.
//
// # Command Builders
//
//	packet := protocol.BuildQueryCmd()
//	packet, err := protocol.BuildProgramCmd(address, data)
//
// # Response Parsers
//
//	info, err := protocol.ParseQueryResponse(packet)
//	fmt.Println(info.Family, info.BytesPerPacket, info.Regions)
//
// # Error Handling
//
// Malformed responses are reported as *ProtocolError:
//
//	info, err := protocol.ParseQueryResponse(packet)
//	if protocol.IsProtocolError(err) {
//	    // err.Error() returns: "query: invalid response: unknown device family 0x07"
//	}
package protocol
