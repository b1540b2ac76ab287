package bootloader

import "github.com/moffa90/go-picboot/protocol"

// erasedByte is the value of flash after an erase cycle.
const erasedByte = 0xFF

// packetChunk is the payload of one Program packet.
type packetChunk struct {
	// Address is the device word address of the first byte
	Address uint32

	// Data holds the valid bytes; shorter than bytesPerPacket only for the
	// last chunk of a region
	Data []byte

	// Erased is true when every byte that matters is 0xFF, so the packet
	// can be elided after a device erase
	Erased bool
}

// isDontCareByte reports whether a byte is ignored when deciding if a packet
// is erased. On 2-byte-word devices a 24-bit instruction spans two word
// addresses and the upper byte of the odd word is a phantom byte that does
// not exist in flash.
//
// positionInAddress is 1-based.
func isDontCareByte(address uint32, positionInAddress, bytesPerAddress int) bool {
	return bytesPerAddress == 2 && address%2 != 0 && positionInAddress == 2
}

// splitRegion cuts the bytes of a region into packet payloads of
// bytesPerPacket bytes. data must hold region.Size*bytesPerAddress bytes.
func splitRegion(region protocol.MemoryRegion, data []byte, bytesPerPacket, bytesPerAddress int) []packetChunk {
	var chunks []packetChunk

	address := region.Address
	end := region.End()
	position := 1
	j := 0

	for address < end && j < len(data) {
		chunk := packetChunk{Address: address, Erased: true}

		for i := 0; i < bytesPerPacket && address < end && j < len(data); i++ {
			b := data[j]
			j++
			chunk.Data = append(chunk.Data, b)

			if b != erasedByte && !isDontCareByte(address, position, bytesPerAddress) {
				chunk.Erased = false
			}

			if position == bytesPerAddress {
				address++
				position = 1
			} else {
				position++
			}
		}

		chunks = append(chunks, chunk)
	}

	return chunks
}

// packetCount returns the number of packets splitRegion produces for a region.
func packetCount(region protocol.MemoryRegion, bytesPerPacket, bytesPerAddress int) int {
	total := int(region.Size) * bytesPerAddress
	return (total + bytesPerPacket - 1) / bytesPerPacket
}
