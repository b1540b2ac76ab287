package bootloader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/moffa90/go-picboot/intelhex"
	"github.com/moffa90/go-picboot/protocol"
)

// State is the session state of a Programmer.
type State int

// Programmer states. A session moves forward from StateIdle; any failure
// returns it to StateIdle and a new Query is required.
const (
	StateIdle State = iota
	StateQueried
	StateErasing
	StateProgramming
	StateVerifying
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueried:
		return "queried"
	case StateErasing:
		return "erasing"
	case StateProgramming:
		return "programming"
	case StateVerifying:
		return "verifying"
	case StateResetting:
		return "resetting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Programmer drives a programming session with a Microchip HID bootloader.
//
// Every exchange is a blocking write of one 65-byte packet followed, where
// the command has a response, by a blocking read. The context is checked
// before an operation sends its first packet; once started, an operation
// runs to completion or to the first transport error. Nothing is retried.
//
// Programmer is not safe for concurrent use.
type Programmer struct {
	device io.ReadWriter
	config Config

	state State
	info  *protocol.DeviceInfo
}

// New creates a new Programmer with the given device and options.
// The device must exchange whole 65-byte packets per Read and Write call.
//
// Example:
//
//	dev, _ := usbhid.Open(usbhid.DefaultDeviceID, "")
//	defer dev.Close()
//	prog := bootloader.New(dev,
//	    bootloader.WithProgressCallback(progressFunc),
//	)
func New(device io.ReadWriter, opts ...Option) *Programmer {
	if device == nil {
		panic("device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Programmer{
		device: device,
		config: cfg,
	}
}

// State returns the current session state.
func (p *Programmer) State() State {
	return p.state
}

// DeviceInfo returns the capabilities read by the last successful Query,
// or nil.
func (p *Programmer) DeviceInfo() *protocol.DeviceInfo {
	return p.info
}

// Query reads the device family, packet size and memory regions.
// It must succeed before any other operation.
func (p *Programmer) Query(ctx context.Context) (*protocol.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "cancelled")
	}

	response, err := p.sendCommandWithResponse(protocol.BuildQueryCmd())
	if err != nil {
		return nil, p.abort("query", err)
	}

	info, err := protocol.ParseQueryResponse(response)
	if err != nil {
		return nil, p.abort("query", err)
	}

	p.info = info
	p.state = StateQueried

	p.logInfo("device queried",
		"family", info.Family.String(),
		"bytes_per_packet", info.BytesPerPacket,
		"regions", len(info.Regions),
	)
	for _, r := range info.Regions {
		p.logDebug("memory region",
			"type", r.Type.String(),
			"address", fmt.Sprintf("0x%08X", r.Address),
			"size", fmt.Sprintf("0x%X", r.Size),
		)
	}

	return info, nil
}

// Erase erases the device and blocks until it answers again. The device
// does not reply to the erase itself; a Query round-trip is used as the
// readiness probe, so an unbounded erase is limited only by the transport
// read timeout.
func (p *Programmer) Erase(ctx context.Context) error {
	if err := p.begin(ctx, StateErasing); err != nil {
		return err
	}

	p.reportProgress(Progress{Phase: PhaseErasing})
	start := time.Now()

	if err := p.sendCommand(protocol.BuildEraseCmd()); err != nil {
		return p.abort("erase", err)
	}
	if err := p.waitForCommand(); err != nil {
		return p.abort("erase", err)
	}

	p.logInfo("device erased", "elapsed", time.Since(start).String())
	return p.finish()
}

// UnlockConfig unlocks (unlock=true) or locks the configuration memory for
// the next erase and program cycle. The device sends no response.
func (p *Programmer) UnlockConfig(ctx context.Context, unlock bool) error {
	if err := p.begin(ctx, StateQueried); err != nil {
		return err
	}

	if err := p.sendCommand(protocol.BuildUnlockConfigCmd(unlock)); err != nil {
		return p.abort("unlock config", err)
	}

	p.logDebug("config lock changed", "unlocked", unlock)
	return p.finish()
}

// Program writes the image into the device's memory regions. With
// programConfigs, config regions are programmed first, before any other
// region, to keep the window between config erase and config rewrite short.
// All non-config regions are programmed afterwards.
//
// The device must have been erased: packets whose bytes are all 0xFF are
// not sent.
func (p *Programmer) Program(ctx context.Context, img *intelhex.Image, programConfigs bool) error {
	if err := p.begin(ctx, StateProgramming); err != nil {
		return err
	}

	var regions []protocol.MemoryRegion
	if programConfigs {
		configs := p.info.RegionsOfType(isConfig)
		if len(configs) == 0 {
			return p.abort("program", ErrNoConfigRegion)
		}
		regions = append(regions, configs...)
	}

	memory := p.info.RegionsOfType(isMemory)
	if len(memory) == 0 {
		return p.abort("program", ErrNoProgrammableRegion)
	}
	regions = append(regions, memory...)

	tracker := p.newTracker(PhaseProgramming, regions)

	for i, region := range regions {
		tracker.regionIndex = i + 1
		tracker.region = region

		if err := p.programRegion(img, region, tracker); err != nil {
			return p.abort("program", &RegionError{Region: region, Err: err})
		}
	}

	tracker.complete()
	p.logInfo("programming complete",
		"regions", len(regions),
		"packets_sent", tracker.sent,
		"packets_skipped", tracker.skipped,
		"elapsed", time.Since(tracker.start).String(),
	)

	return p.finish()
}

// programRegion sends one region as Program packets.
//
// A ProgramComplete is sent before the first packet that follows a run of
// skipped packets, and always once at the end of the region.
func (p *Programmer) programRegion(img *intelhex.Image, region protocol.MemoryRegion, tracker *progressTracker) error {
	bytesPerAddress := p.info.BytesPerAddress()

	data, err := img.Region(region.Address, region.Size, bytesPerAddress)
	if err != nil {
		return errors.Wrap(err, "extract image data")
	}

	p.logDebug("programming region",
		"type", region.Type.String(),
		"address", fmt.Sprintf("0x%08X", region.Address),
		"size", fmt.Sprintf("0x%X", region.Size),
	)

	skipped := false
	for _, chunk := range splitRegion(region, data, p.info.BytesPerPacket, bytesPerAddress) {
		if chunk.Erased {
			skipped = true
			tracker.skip()
			continue
		}

		if skipped {
			if err := p.sendCommand(protocol.BuildProgramCompleteCmd()); err != nil {
				return err
			}
			skipped = false
		}

		packet, err := protocol.BuildProgramCmd(chunk.Address, chunk.Data)
		if err != nil {
			return err
		}
		if err := p.sendCommand(packet); err != nil {
			return errors.Wrapf(err, "program 0x%08X", chunk.Address)
		}
		tracker.send()
	}

	return p.sendCommand(protocol.BuildProgramCompleteCmd())
}

// ReadRegion reads a memory region back from the device with Get Data
// packets. The result holds region.Size*BytesPerAddress bytes.
func (p *Programmer) ReadRegion(ctx context.Context, region protocol.MemoryRegion) ([]byte, error) {
	if err := p.begin(ctx, StateVerifying); err != nil {
		return nil, err
	}

	data, err := p.readRegion(region, nil)
	if err != nil {
		return nil, p.abort("read", &RegionError{Region: region, Err: err})
	}

	return data, p.finish()
}

func (p *Programmer) readRegion(region protocol.MemoryRegion, tracker *progressTracker) ([]byte, error) {
	bytesPerAddress := p.info.BytesPerAddress()
	chunk := readChunkSize(p.info.BytesPerPacket, bytesPerAddress)

	out := make([]byte, int(region.Size)*bytesPerAddress)
	address := region.Address

	for off := 0; off < len(out); {
		n := min(chunk, len(out)-off)

		cmd, err := protocol.BuildGetDataCmd(address, n)
		if err != nil {
			return nil, err
		}
		response, err := p.sendCommandWithResponse(cmd)
		if err != nil {
			return nil, errors.Wrapf(err, "get data 0x%08X", address)
		}
		res, err := protocol.ParseGetDataResponse(response)
		if err != nil {
			return nil, err
		}
		if res.Address != address || len(res.Data) != n {
			return nil, &protocol.ProtocolError{Operation: "get data", Err: errors.Errorf(
				"requested %d bytes at 0x%08X, got %d bytes at 0x%08X", n, address, len(res.Data), res.Address)}
		}

		copy(out[off:], res.Data)
		off += n
		address += uint32(n / bytesPerAddress)

		if tracker != nil {
			tracker.send()
		}
	}

	return out, nil
}

// readChunkSize returns the largest Get Data length that holds whole words.
func readChunkSize(bytesPerPacket, bytesPerAddress int) int {
	n := bytesPerPacket - bytesPerPacket%bytesPerAddress
	if n == 0 {
		n = bytesPerAddress
	}
	return n
}

// Verify reads back every non-config region and compares it with the image.
// Phantom bytes of 2-byte-word devices are not compared. The first
// difference is returned as a *VerificationMismatchError.
func (p *Programmer) Verify(ctx context.Context, img *intelhex.Image) error {
	if err := p.begin(ctx, StateVerifying); err != nil {
		return err
	}

	regions := p.info.RegionsOfType(isMemory)
	if len(regions) == 0 {
		return p.abort("verify", ErrNoProgrammableRegion)
	}

	bytesPerAddress := p.info.BytesPerAddress()
	tracker := p.newReadTracker(regions)

	for i, region := range regions {
		tracker.regionIndex = i + 1
		tracker.region = region

		want, err := img.Region(region.Address, region.Size, bytesPerAddress)
		if err != nil {
			return p.abort("verify", &RegionError{Region: region, Err: errors.Wrap(err, "extract image data")})
		}

		got, err := p.readRegion(region, tracker)
		if err != nil {
			return p.abort("verify", &RegionError{Region: region, Err: err})
		}

		if mismatch := compareRegion(region, want, got, bytesPerAddress); mismatch != nil {
			return p.abort("verify", mismatch)
		}
	}

	tracker.complete()
	p.logInfo("verification complete", "regions", len(regions), "elapsed", time.Since(tracker.start).String())

	return p.finish()
}

// compareRegion returns the first difference between want and got.
func compareRegion(region protocol.MemoryRegion, want, got []byte, bytesPerAddress int) *VerificationMismatchError {
	for i := range want {
		address := region.Address + uint32(i/bytesPerAddress)
		position := i%bytesPerAddress + 1
		if isDontCareByte(address, position, bytesPerAddress) {
			continue
		}
		if want[i] != got[i] {
			return &VerificationMismatchError{
				Region:   region,
				Address:  address,
				Offset:   position - 1,
				Expected: want[i],
				Actual:   got[i],
			}
		}
	}
	return nil
}

// Read would read the whole device into an image. Saving device memory is
// not supported; use ReadRegion for raw read-back.
func (p *Programmer) Read(ctx context.Context) (*intelhex.Image, error) {
	return nil, errors.Wrap(ErrNotImplemented, "read device")
}

// Reset restarts the device into its application. The device sends no
// response and drops off the bus, so the session returns to StateIdle.
func (p *Programmer) Reset(ctx context.Context) error {
	if err := p.begin(ctx, StateResetting); err != nil {
		return err
	}

	if err := p.sendCommand(protocol.BuildResetCmd()); err != nil {
		return p.abort("reset", err)
	}

	p.logInfo("device reset")
	p.state = StateIdle
	p.info = nil
	return nil
}

// waitForCommand blocks until the device answers a Query again.
// The response content is not used.
func (p *Programmer) waitForCommand() error {
	_, err := p.sendCommandWithResponse(protocol.BuildQueryCmd())
	return err
}

// begin checks that the session can start an operation and enters state.
func (p *Programmer) begin(ctx context.Context, state State) error {
	if p.info == nil {
		return ErrNotQueried
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "cancelled")
	}
	p.state = state
	return nil
}

// finish returns a session to StateQueried after a successful operation.
func (p *Programmer) finish() error {
	p.state = StateQueried
	return nil
}

// abort drops the session back to StateIdle and returns err wrapped with
// the operation name.
func (p *Programmer) abort(op string, err error) error {
	p.logError(op+" failed", "state", p.state.String(), "error", err.Error())
	p.state = StateIdle
	p.info = nil
	return errors.Wrap(err, op)
}

// sendCommand writes one packet. Commands without a response use it directly.
func (p *Programmer) sendCommand(cmd []byte) error {
	n, err := p.device.Write(cmd)
	if err != nil {
		return &TransportError{Op: "write", Command: cmd[1], Err: err}
	}
	if n != len(cmd) {
		return &TransportError{Op: "write", Command: cmd[1], Err: io.ErrShortWrite}
	}

	if p.config.CommandDelay > 0 {
		time.Sleep(p.config.CommandDelay)
	}

	return nil
}

// sendCommandWithResponse writes one packet and reads one response packet.
func (p *Programmer) sendCommandWithResponse(cmd []byte) ([]byte, error) {
	if err := p.sendCommand(cmd); err != nil {
		return nil, err
	}

	response := make([]byte, protocol.PacketSize)
	n, err := p.device.Read(response)
	if err != nil {
		return nil, &TransportError{Op: "read", Command: cmd[1], Err: err}
	}
	if n != protocol.PacketSize {
		return nil, &TransportError{Op: "read", Command: cmd[1], Err: errors.Errorf(
			"short response: got %d bytes, expected %d", n, protocol.PacketSize)}
	}

	return response, nil
}

// reportProgress calls the progress callback if configured.
func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (p *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (p *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (p *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}

func isConfig(t protocol.RegionType) bool { return t == protocol.RegionConfig }

func isMemory(t protocol.RegionType) bool { return t != protocol.RegionConfig }

// progressTracker accumulates packet counts for Progress reports.
type progressTracker struct {
	p            *Programmer
	phase        Phase
	start        time.Time
	total        int
	sent         int
	skipped      int
	regionIndex  int
	totalRegions int
	region       protocol.MemoryRegion
}

func (p *Programmer) newTracker(phase Phase, regions []protocol.MemoryRegion) *progressTracker {
	t := &progressTracker{p: p, phase: phase, start: time.Now(), totalRegions: len(regions)}
	for _, r := range regions {
		t.total += packetCount(r, p.info.BytesPerPacket, p.info.BytesPerAddress())
	}
	return t
}

func (p *Programmer) newReadTracker(regions []protocol.MemoryRegion) *progressTracker {
	bytesPerAddress := p.info.BytesPerAddress()
	t := &progressTracker{p: p, phase: PhaseVerifying, start: time.Now(), totalRegions: len(regions)}
	for _, r := range regions {
		t.total += packetCount(r, readChunkSize(p.info.BytesPerPacket, bytesPerAddress), bytesPerAddress)
	}
	return t
}

func (t *progressTracker) send() {
	t.sent++
	t.report(t.phase)
}

func (t *progressTracker) skip() {
	t.skipped++
	t.report(t.phase)
}

func (t *progressTracker) complete() {
	t.report(PhaseComplete)
}

func (t *progressTracker) report(phase Phase) {
	percentage := 100.0
	if t.total > 0 && phase != PhaseComplete {
		percentage = float64(t.sent+t.skipped) / float64(t.total) * 100
	}
	t.p.reportProgress(Progress{
		Phase:          phase,
		Region:         t.region,
		RegionIndex:    t.regionIndex,
		TotalRegions:   t.totalRegions,
		PacketsSent:    t.sent,
		PacketsSkipped: t.skipped,
		TotalPackets:   t.total,
		Percentage:     percentage,
		ElapsedTime:    time.Since(t.start),
	})
}
