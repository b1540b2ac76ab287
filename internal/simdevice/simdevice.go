// Package simdevice emulates the device side of the Microchip HID bootloader
// in memory. It answers the same 65-byte packets a real bootloader does and
// keeps a log of every packet it receives.
//
// Program data is written through a program pointer the way the firmware
// does it: the first Program packet after a ProgramComplete sets the pointer
// to the packet address, later packets append at the pointer, and
// ProgramComplete releases it. Flash writes can only clear bits, so
// programming without an erase leaves old data visible.
package simdevice

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/moffa90/go-picboot/protocol"
)

var (
	// ErrNoResponse is returned by Read when no response is pending. A real
	// device would leave the host waiting until its read timeout.
	ErrNoResponse = errors.New("simdevice: no response pending")

	// ErrDetached is returned after the device was reset or closed.
	ErrDetached = errors.New("simdevice: device detached")

	// ErrInjected is the default error of injected failures.
	ErrInjected = errors.New("simdevice: injected failure")
)

// Packet is one packet received from the host.
type Packet []byte

// Command returns the command code of the packet.
func (p Packet) Command() byte {
	return p[1]
}

// Write is one applied Program packet.
type Write struct {
	Address uint32
	Data    []byte
}

type regionMemory struct {
	region protocol.MemoryRegion
	data   []byte
}

// Device is a simulated bootloader. It implements io.ReadWriteCloser with
// one 65-byte packet per call. Device is not safe for concurrent use.
type Device struct {
	info    protocol.DeviceInfo
	regions []*regionMemory

	configUnlocked bool
	pending        [][]byte
	pointer        uint64
	pointerValid   bool
	detached       bool

	packets []Packet
	resets  int
	strays  int

	writesLeft int
	writeErr   error
	readErr    error
}

// New returns a simulated device reporting info. All memory starts as 0x00.
func New(info protocol.DeviceInfo) *Device {
	d := &Device{info: info, writesLeft: -1}
	for _, r := range info.Regions {
		d.regions = append(d.regions, &regionMemory{
			region: r,
			data:   make([]byte, int(r.Size)*info.BytesPerAddress()),
		})
	}
	return d
}

// Info returns the capabilities the device reports on Query.
func (d *Device) Info() protocol.DeviceInfo {
	return d.info
}

// Write accepts one host packet.
func (d *Device) Write(p []byte) (int, error) {
	if d.detached {
		return 0, ErrDetached
	}
	if d.writesLeft == 0 {
		return 0, d.writeErr
	}
	if d.writesLeft > 0 {
		d.writesLeft--
	}
	if len(p) != protocol.PacketSize {
		return 0, errors.Errorf("simdevice: packet is %d bytes, expected %d", len(p), protocol.PacketSize)
	}

	packet := make(Packet, len(p))
	copy(packet, p)
	d.packets = append(d.packets, packet)

	if err := d.handle(packet); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns the oldest pending response.
func (d *Device) Read(p []byte) (int, error) {
	if d.readErr != nil {
		return 0, d.readErr
	}
	if d.detached {
		return 0, ErrDetached
	}
	if len(d.pending) == 0 {
		return 0, ErrNoResponse
	}

	response := d.pending[0]
	d.pending = d.pending[1:]
	return copy(p, response), nil
}

// Close detaches the device.
func (d *Device) Close() error {
	d.detached = true
	return nil
}

func (d *Device) handle(packet Packet) error {
	switch packet.Command() {
	case protocol.CmdQueryDevice:
		response, err := protocol.BuildQueryResponse(&d.info)
		if err != nil {
			return err
		}
		d.pending = append(d.pending, response)

	case protocol.CmdUnlockConfig:
		unlock, err := protocol.DecodeUnlockConfigCmd(packet)
		if err != nil {
			return err
		}
		d.configUnlocked = unlock

	case protocol.CmdEraseDevice:
		for _, m := range d.regions {
			if m.region.Type == protocol.RegionConfig && !d.configUnlocked {
				continue
			}
			for i := range m.data {
				m.data[i] = 0xFF
			}
		}

	case protocol.CmdProgramDevice:
		address, data, err := protocol.DecodeProgramCmd(packet)
		if err != nil {
			return err
		}
		if !d.pointerValid {
			d.pointer = uint64(address) * uint64(d.info.BytesPerAddress())
			d.pointerValid = true
		}
		for _, b := range data {
			d.program(d.pointer, b)
			d.pointer++
		}

	case protocol.CmdProgramComplete:
		d.pointerValid = false

	case protocol.CmdGetData:
		address, n, err := protocol.DecodeGetDataCmd(packet)
		if err != nil {
			return err
		}
		start := uint64(address) * uint64(d.info.BytesPerAddress())
		data := make([]byte, n)
		for i := range data {
			data[i] = d.peek(start + uint64(i))
		}
		response, err := protocol.BuildGetDataResponse(address, data)
		if err != nil {
			return err
		}
		d.pending = append(d.pending, response)

	case protocol.CmdResetDevice:
		d.resets++
		d.detached = true

	default:
		return errors.Errorf("simdevice: unsupported command 0x%02X", packet.Command())
	}

	return nil
}

// locate maps an absolute byte address to region memory.
func (d *Device) locate(byteAddr uint64) (*regionMemory, int) {
	width := uint64(d.info.BytesPerAddress())
	for _, m := range d.regions {
		start := uint64(m.region.Address) * width
		if byteAddr >= start && byteAddr < start+uint64(len(m.data)) {
			return m, int(byteAddr - start)
		}
	}
	return nil, 0
}

func (d *Device) program(byteAddr uint64, value byte) {
	m, off := d.locate(byteAddr)
	if m == nil {
		d.strays++
		return
	}
	if m.region.Type == protocol.RegionConfig && !d.configUnlocked {
		return
	}
	m.data[off] &= value
}

func (d *Device) peek(byteAddr uint64) byte {
	m, off := d.locate(byteAddr)
	if m == nil {
		return 0x00
	}
	return m.data[off]
}

// Memory returns the memory of the i-th reported region. The slice aliases
// device memory.
func (d *Device) Memory(i int) []byte {
	return d.regions[i].data
}

// Fill sets every byte of device memory to value.
func (d *Device) Fill(value byte) {
	for _, m := range d.regions {
		for i := range m.data {
			m.data[i] = value
		}
	}
}

// Packets returns every packet received so far.
func (d *Device) Packets() []Packet {
	return d.packets
}

// Commands returns the command codes of every packet received so far.
func (d *Device) Commands() []byte {
	cmds := make([]byte, len(d.packets))
	for i, p := range d.packets {
		cmds[i] = p.Command()
	}
	return cmds
}

// ProgramWrites decodes every Program packet received so far.
func (d *Device) ProgramWrites() []Write {
	var writes []Write
	for _, p := range d.packets {
		if p.Command() != protocol.CmdProgramDevice {
			continue
		}
		address, data, err := protocol.DecodeProgramCmd(p)
		if err != nil {
			continue
		}
		writes = append(writes, Write{Address: address, Data: append([]byte(nil), data...)})
	}
	return writes
}

// Resets returns how many Reset commands were received.
func (d *Device) Resets() int {
	return d.resets
}

// StrayWrites returns how many programmed bytes fell outside every region.
func (d *Device) StrayWrites() int {
	return d.strays
}

// ConfigUnlocked reports the current config lock setting.
func (d *Device) ConfigUnlocked() bool {
	return d.configUnlocked
}

// FailWriteAfter makes every Write after the next n fail with err
// (ErrInjected when err is nil).
func (d *Device) FailWriteAfter(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	d.writesLeft = n
	d.writeErr = err
}

// FailReads makes every Read fail with err; nil clears it.
func (d *Device) FailReads(err error) {
	d.readErr = err
}

// String describes the device for logs.
func (d *Device) String() string {
	return fmt.Sprintf("simulated %s bootloader (%d regions)", d.info.Family, len(d.info.Regions))
}

// PIC18 returns the capabilities of a PIC18F4550 running the HID bootloader.
func PIC18() protocol.DeviceInfo {
	return protocol.DeviceInfo{
		Family:         protocol.FamilyPIC18,
		BytesPerPacket: 56,
		Regions: []protocol.MemoryRegion{
			{Type: protocol.RegionProgram, Address: 0x1000, Size: 0x7000},
			{Type: protocol.RegionEEData, Address: 0xF00000, Size: 0x100},
			{Type: protocol.RegionConfig, Address: 0x300000, Size: 14},
		},
	}
}

// PIC24 returns the capabilities of a PIC24FJ256GB106 running the HID bootloader.
func PIC24() protocol.DeviceInfo {
	return protocol.DeviceInfo{
		Family:         protocol.FamilyPIC24,
		BytesPerPacket: 56,
		Regions: []protocol.MemoryRegion{
			{Type: protocol.RegionProgram, Address: 0x1400, Size: 0x29400},
			{Type: protocol.RegionConfig, Address: 0x2ABFA, Size: 6},
		},
	}
}

// PIC32 returns the capabilities of a PIC32MX795F512L running the HID bootloader.
func PIC32() protocol.DeviceInfo {
	return protocol.DeviceInfo{
		Family:         protocol.FamilyPIC32,
		BytesPerPacket: 56,
		Regions: []protocol.MemoryRegion{
			{Type: protocol.RegionProgram, Address: 0x1D005000, Size: 0x7B000},
		},
	}
}
