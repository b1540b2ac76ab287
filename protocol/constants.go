package protocol

// Packet layout constants.
const (
	// PacketSize is the size of every command and response packet:
	// one reserved byte (HID report ID, always 0) plus a 64-byte report.
	PacketSize = 65

	// MaxDataSize is the size of the data field of Program and GetData packets
	MaxDataSize = 58

	// MaxRegions is the number of memory region records in a Query response
	MaxRegions = 6

	// ReportID is the value of the reserved first byte
	ReportID = 0x00
)

// Byte offsets inside a packet.
const (
	offsetReserved = 0
	offsetCommand  = 1

	// Program / GetData
	offsetAddress = 2
	offsetLength  = 6
	offsetData    = 7

	// Query response
	offsetBytesPerPacket = 2
	offsetFamily         = 3
	offsetRegions        = 4
	regionRecordSize     = 9

	// UnlockConfig
	offsetSetting = 2
)

// Command codes of the Microchip USB HID bootloader.
const (
	// CmdQueryDevice asks for packet size, device family and memory regions
	CmdQueryDevice = 0x02

	// CmdUnlockConfig unlocks or locks configuration memory for erase/write
	CmdUnlockConfig = 0x03

	// CmdEraseDevice erases all erasable memory; the device stops answering until done
	CmdEraseDevice = 0x04

	// CmdProgramDevice carries up to MaxDataSize bytes of program data
	CmdProgramDevice = 0x05

	// CmdProgramComplete flushes buffered program data
	CmdProgramComplete = 0x06

	// CmdGetData reads back up to MaxDataSize bytes
	CmdGetData = 0x07

	// CmdResetDevice resets the target; no response is sent
	CmdResetDevice = 0x08

	// CmdGetEncryptedFF is defined by the bootloader but not used by this library
	CmdGetEncryptedFF = 0xFF
)

// UnlockConfig settings.
const (
	ConfigUnlock = 0x00
	ConfigLock   = 0x01
)

// DefaultVendorID and DefaultProductID identify the stock Microchip HID bootloader.
const (
	DefaultVendorID  = 0x04D8
	DefaultProductID = 0x003C
)
