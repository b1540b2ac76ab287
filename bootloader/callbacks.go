package bootloader

import (
	"time"

	"github.com/moffa90/go-picboot/protocol"
)

// Phase identifies the operation a Progress report belongs to.
type Phase string

// Progress phases.
const (
	PhaseErasing     Phase = "erasing"
	PhaseProgramming Phase = "programming"
	PhaseVerifying   Phase = "verifying"
	PhaseComplete    Phase = "complete"
)

// Progress contains information about the programming progress.
// Passed to ProgressCallback during Program and Verify.
type Progress struct {
	// Phase is the current operation
	Phase Phase

	// Region is the memory region being processed
	Region protocol.MemoryRegion

	// RegionIndex is the 1-based index of Region within the operation
	RegionIndex int

	// TotalRegions is the number of regions the operation touches
	TotalRegions int

	// PacketsSent is the number of Program or GetData packets sent so far
	PacketsSent int

	// PacketsSkipped is the number of all-erased packets that were elided
	PacketsSkipped int

	// TotalPackets is the number of packets the operation covers
	TotalPackets int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the operation started
	ElapsedTime time.Duration
}

// ProgressCallback is called during programming to report progress.
// Implementations should return quickly; the USB exchange waits for them.
//
// Example:
//
//	prog := bootloader.New(device,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%s] %.1f%% - %s\n", p.Phase, p.Percentage, p.Region)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the programmer.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	prog := bootloader.New(device, bootloader.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
