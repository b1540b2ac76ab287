package protocol

import "fmt"

// Family is the device family reported by the Query command.
type Family byte

// Device families.
const (
	FamilyPIC18 Family = 0x01
	FamilyPIC24 Family = 0x02
	FamilyPIC32 Family = 0x03
)

func (f Family) String() string {
	switch f {
	case FamilyPIC18:
		return "PIC18"
	case FamilyPIC24:
		return "PIC24"
	case FamilyPIC32:
		return "PIC32"
	default:
		return fmt.Sprintf("Family(0x%02X)", byte(f))
	}
}

// BytesPerAddress returns the word size of the family in bytes, or 0 for an
// unknown family.
func (f Family) BytesPerAddress() int {
	switch f {
	case FamilyPIC18, FamilyPIC32:
		return 1
	case FamilyPIC24:
		return 2
	default:
		return 0
	}
}

// RegionType is the kind of a device memory region.
type RegionType byte

// Region types. RegionEnd terminates the region list of a Query response
// and never appears in a MemoryRegion.
const (
	RegionProgram RegionType = 0x01
	RegionEEData  RegionType = 0x02
	RegionConfig  RegionType = 0x03
	RegionEnd     RegionType = 0xFF
)

func (t RegionType) String() string {
	switch t {
	case RegionProgram:
		return "program"
	case RegionEEData:
		return "eedata"
	case RegionConfig:
		return "config"
	case RegionEnd:
		return "end"
	default:
		return fmt.Sprintf("RegionType(0x%02X)", byte(t))
	}
}

// MemoryRegion is one programmable region of the device.
// Address and Size are in device words, not bytes.
type MemoryRegion struct {
	Type    RegionType `json:"type" yaml:"type"`
	Address uint32     `json:"address" yaml:"address"`
	Size    uint32     `json:"size" yaml:"size"`
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("%s@0x%X+0x%X", r.Type, r.Address, r.Size)
}

// End returns the first word address past the region.
func (r MemoryRegion) End() uint32 {
	return r.Address + r.Size
}

// DeviceInfo holds the device capabilities returned by the Query command.
type DeviceInfo struct {
	// Family determines the word size
	Family Family `json:"family" yaml:"family"`

	// BytesPerPacket is the number of data bytes per Program packet (<= MaxDataSize)
	BytesPerPacket int `json:"bytes_per_packet" yaml:"bytes_per_packet"`

	// Regions is the device memory map, in the order reported
	Regions []MemoryRegion `json:"regions" yaml:"regions"`
}

// BytesPerAddress returns the device word size in bytes.
func (d *DeviceInfo) BytesPerAddress() int {
	return d.Family.BytesPerAddress()
}

// RegionsOfType returns the regions matching the predicate, preserving order.
func (d *DeviceInfo) RegionsOfType(match func(RegionType) bool) []MemoryRegion {
	var out []MemoryRegion
	for _, r := range d.Regions {
		if match(r.Type) {
			out = append(out, r)
		}
	}
	return out
}

// GetDataResult is the decoded response of a GetData command.
type GetDataResult struct {
	Address uint32
	Data    []byte
}

// MarshalText renders the family by name in JSON and YAML output.
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// MarshalText renders the region type by name in JSON and YAML output.
func (t RegionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
