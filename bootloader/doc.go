// Package bootloader programs PIC18, PIC24 and PIC32 microcontrollers through
// the Microchip USB HID bootloader.
//
// # Overview
//
// A Programmer drives one session with one device:
//   - Query reads the device family, packet size and memory regions
//   - Erase wipes the device and waits until it answers again
//   - Program writes an Intel HEX image, config regions first
//   - Verify reads memory back and compares it with the image
//   - Reset restarts the device into its application
//
// Query must succeed before anything else. A failed operation drops the
// session back to StateIdle and Query has to be repeated.
//
// # Basic Usage
//
//	dev, err := usbhid.Open(usbhid.DefaultDeviceID, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	img, err := intelhex.Load("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	prog := bootloader.New(dev)
//	ctx := context.Background()
//
//	if _, err := prog.Query(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := prog.Erase(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := prog.Program(ctx, img, false); err != nil {
//	    log.Fatal(err)
//	}
//	if err := prog.Verify(ctx, img); err != nil {
//	    log.Fatal(err)
//	}
//	_ = prog.Reset(ctx)
//
// # Packets
//
// Each region is cut into packets of DeviceInfo.BytesPerPacket bytes. A
// packet whose bytes are all 0xFF is not sent, since the erase already left
// them that way; on 2-byte-word devices the phantom byte of each instruction
// does not count. The bootloader buffers program data behind a write
// pointer, so a ProgramComplete is sent before the first packet after a
// skipped run and once at the end of every region.
//
// # Progress Tracking
//
//	prog := bootloader.New(dev,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%s] %.1f%% %s\n", p.Phase, p.Percentage, p.Region)
//	    }),
//	)
//
// # Error Handling
//
// The package provides structured error types:
//   - TransportError: a packet could not be written or read
//   - RegionError: wraps any failure with the region being processed
//   - VerificationMismatchError: device memory differs from the image
//   - ErrNotQueried, ErrNoConfigRegion, ErrNoProgrammableRegion
//   - protocol.ProtocolError: the device sent a malformed response
//
// Nothing is retried. A half-programmed region must be programmed again
// from a fresh Query and Erase.
//
// # Hardware Independence
//
// The device is any io.ReadWriter that moves one 65-byte packet per call.
// The usbhid package provides one over libusb; tests use an in-memory
// simulator.
package bootloader
