package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// newPacket returns a zeroed packet with the command byte set.
func newPacket(cmd byte) []byte {
	packet := make([]byte, PacketSize)
	packet[offsetReserved] = ReportID
	packet[offsetCommand] = cmd
	return packet
}

// BuildQueryCmd constructs a Query Device packet.
//
// Packet structure:
//
//	[RSVD][CMD][0...]
func BuildQueryCmd() []byte {
	return newPacket(CmdQueryDevice)
}

// BuildEraseCmd constructs an Erase Device packet.
func BuildEraseCmd() []byte {
	return newPacket(CmdEraseDevice)
}

// BuildResetCmd constructs a Reset Device packet.
func BuildResetCmd() []byte {
	return newPacket(CmdResetDevice)
}

// BuildProgramCompleteCmd constructs a Program Complete packet.
func BuildProgramCompleteCmd() []byte {
	return newPacket(CmdProgramComplete)
}

// BuildUnlockConfigCmd constructs an Unlock Config packet.
// unlock=false locks the configuration bits again.
//
// Packet structure:
//
//	[RSVD][CMD][SETTING][0...]
func BuildUnlockConfigCmd(unlock bool) []byte {
	packet := newPacket(CmdUnlockConfig)
	if unlock {
		packet[offsetSetting] = ConfigUnlock
	} else {
		packet[offsetSetting] = ConfigLock
	}
	return packet
}

// BuildProgramCmd constructs a Program Device packet.
// The data bytes are right-aligned in the data field and the front is
// zero-filled; the length byte is len(data).
//
// Packet structure:
//
//	[RSVD][CMD][ADDR(4, LE)][LEN][0...][DATA(LEN)]
func BuildProgramCmd(address uint32, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, errors.Errorf("data length %d exceeds maximum %d bytes", len(data), MaxDataSize)
	}

	packet := newPacket(CmdProgramDevice)
	binary.LittleEndian.PutUint32(packet[offsetAddress:], address)
	packet[offsetLength] = byte(len(data))
	copy(packet[PacketSize-len(data):], data)

	return packet, nil
}

// BuildGetDataCmd constructs a Get Data packet requesting length bytes
// starting at the given word address.
//
// Packet structure:
//
//	[RSVD][CMD][ADDR(4, LE)][LEN][0...]
func BuildGetDataCmd(address uint32, length int) ([]byte, error) {
	if length <= 0 || length > MaxDataSize {
		return nil, errors.Errorf("read length %d out of range 1-%d", length, MaxDataSize)
	}

	packet := newPacket(CmdGetData)
	binary.LittleEndian.PutUint32(packet[offsetAddress:], address)
	packet[offsetLength] = byte(length)

	return packet, nil
}

// DecodeProgramCmd extracts the address and data of a Program Device packet.
// Used by device simulators and tests.
func DecodeProgramCmd(packet []byte) (uint32, []byte, error) {
	if err := checkPacket(packet, CmdProgramDevice); err != nil {
		return 0, nil, err
	}

	n := int(packet[offsetLength])
	if n > MaxDataSize {
		return 0, nil, errors.Errorf("program length %d exceeds maximum %d bytes", n, MaxDataSize)
	}

	address := binary.LittleEndian.Uint32(packet[offsetAddress:])
	return address, packet[PacketSize-n:], nil
}

// checkPacket validates size and command byte.
func checkPacket(packet []byte, cmd byte) error {
	if len(packet) != PacketSize {
		return errors.Errorf("invalid packet size: got %d bytes, expected %d", len(packet), PacketSize)
	}
	if packet[offsetCommand] != cmd {
		return errors.Errorf("unexpected command 0x%02X, expected 0x%02X", packet[offsetCommand], cmd)
	}
	return nil
}
