package protocol

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ParseQueryResponse decodes a Query Device response packet.
//
// Packet structure:
//
//	[RSVD][CMD][BYTES_PER_PACKET][FAMILY][REGION(9) x 6]
//	REGION = [TYPE][ADDR(4, LE)][SIZE(4, LE)]
//
// The region list ends at the first RegionEnd record or after MaxRegions.
func ParseQueryResponse(packet []byte) (*DeviceInfo, error) {
	if err := checkPacket(packet, CmdQueryDevice); err != nil {
		return nil, &ProtocolError{Operation: "query", Err: err}
	}

	info := &DeviceInfo{
		Family:         Family(packet[offsetFamily]),
		BytesPerPacket: int(packet[offsetBytesPerPacket]),
	}

	if info.Family.BytesPerAddress() == 0 {
		return nil, &ProtocolError{Operation: "query", Err: errors.Errorf("unknown device family 0x%02X", byte(info.Family))}
	}
	if info.BytesPerPacket == 0 || info.BytesPerPacket > MaxDataSize {
		return nil, &ProtocolError{Operation: "query", Err: errors.Errorf(
			"bytes per packet %d out of range 1-%d", info.BytesPerPacket, MaxDataSize)}
	}

	for i := 0; i < MaxRegions; i++ {
		rec := packet[offsetRegions+i*regionRecordSize:]
		typ := RegionType(rec[0])
		if typ == RegionEnd {
			break
		}

		switch typ {
		case RegionProgram, RegionEEData, RegionConfig:
		default:
			return nil, &ProtocolError{Operation: "query", Err: errors.Errorf("unknown memory region type 0x%02X", byte(typ))}
		}

		region := MemoryRegion{
			Type:    typ,
			Address: binary.LittleEndian.Uint32(rec[1:5]),
			Size:    binary.LittleEndian.Uint32(rec[5:9]),
		}
		if uint64(region.Address)+uint64(region.Size) > math.MaxUint32 {
			return nil, &ProtocolError{Operation: "query", Err: errors.Errorf(
				"%s region at 0x%X size 0x%X exceeds the 32-bit address space", typ, region.Address, region.Size)}
		}
		info.Regions = append(info.Regions, region)
	}

	return info, nil
}

// BuildQueryResponse encodes a Query Device response. Unused region slots are
// filled with RegionEnd. Used by device simulators and tests.
func BuildQueryResponse(info *DeviceInfo) ([]byte, error) {
	if len(info.Regions) > MaxRegions {
		return nil, errors.Errorf("%d regions exceed maximum %d", len(info.Regions), MaxRegions)
	}

	packet := newPacket(CmdQueryDevice)
	packet[offsetBytesPerPacket] = byte(info.BytesPerPacket)
	packet[offsetFamily] = byte(info.Family)

	for i := 0; i < MaxRegions; i++ {
		rec := packet[offsetRegions+i*regionRecordSize:]
		if i >= len(info.Regions) {
			rec[0] = byte(RegionEnd)
			continue
		}
		r := info.Regions[i]
		rec[0] = byte(r.Type)
		binary.LittleEndian.PutUint32(rec[1:5], r.Address)
		binary.LittleEndian.PutUint32(rec[5:9], r.Size)
	}

	return packet, nil
}

// ParseGetDataResponse decodes a Get Data response. Like Program packets,
// the returned bytes are right-aligned in the data field.
//
// Packet structure:
//
//	[RSVD][CMD][ADDR(4, LE)][LEN][0...][DATA(LEN)]
func ParseGetDataResponse(packet []byte) (*GetDataResult, error) {
	if err := checkPacket(packet, CmdGetData); err != nil {
		return nil, &ProtocolError{Operation: "get data", Err: err}
	}

	n := int(packet[offsetLength])
	if n > MaxDataSize {
		return nil, &ProtocolError{Operation: "get data", Err: errors.Errorf(
			"data length %d exceeds maximum %d bytes", n, MaxDataSize)}
	}

	data := make([]byte, n)
	copy(data, packet[PacketSize-n:])

	return &GetDataResult{
		Address: binary.LittleEndian.Uint32(packet[offsetAddress:]),
		Data:    data,
	}, nil
}

// BuildGetDataResponse encodes a Get Data response. Used by device
// simulators and tests.
func BuildGetDataResponse(address uint32, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, errors.Errorf("data length %d exceeds maximum %d bytes", len(data), MaxDataSize)
	}

	packet := newPacket(CmdGetData)
	binary.LittleEndian.PutUint32(packet[offsetAddress:], address)
	packet[offsetLength] = byte(len(data))
	copy(packet[PacketSize-len(data):], data)

	return packet, nil
}

// DecodeGetDataCmd extracts the address and requested length of a Get Data
// request. Used by device simulators and tests.
func DecodeGetDataCmd(packet []byte) (uint32, int, error) {
	if err := checkPacket(packet, CmdGetData); err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(packet[offsetAddress:]), int(packet[offsetLength]), nil
}

// DecodeUnlockConfigCmd reports whether an Unlock Config packet unlocks.
func DecodeUnlockConfigCmd(packet []byte) (bool, error) {
	if err := checkPacket(packet, CmdUnlockConfig); err != nil {
		return false, err
	}
	return packet[offsetSetting] == ConfigUnlock, nil
}
