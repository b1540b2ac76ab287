// Package usbhid talks to a Microchip HID bootloader over libusb.
//
// A Device moves one 65-byte bootloader packet per Read or Write call: the
// first byte is the HID report ID (always 0) and the remaining 64 bytes are
// one interrupt transfer.
package usbhid

import (
	"context"
	"fmt"
	"io"
	"time"

	usb "github.com/google/gousb"
	"github.com/pkg/errors"

	"github.com/moffa90/go-picboot/protocol"
)

// reportSize is the HID report length without the report ID.
const reportSize = protocol.PacketSize - 1

// Error reports a failed USB operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "usbhid: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// DeviceNotFoundError indicates that no device matched the ID.
type DeviceNotFoundError struct {
	ID      DeviceID
	BusAddr string
}

func (e *DeviceNotFoundError) Error() string {
	if e.BusAddr != "" {
		return fmt.Sprintf("no %s device found at %s", e.ID, e.BusAddr)
	}
	return fmt.Sprintf("no %s device found", e.ID)
}

// IsDeviceNotFound returns true if err is or wraps a DeviceNotFoundError.
func IsDeviceNotFound(err error) bool {
	var nf *DeviceNotFoundError
	return errors.As(err, &nf)
}

// Option configures a Device.
type Option func(*Device)

// WithReadTimeout bounds every Read. Zero waits forever, which is what an
// erase needs on large parts.
func WithReadTimeout(d time.Duration) Option {
	return func(dev *Device) {
		if d >= 0 {
			dev.readTimeout = d
		}
	}
}

// WithWriteTimeout bounds every Write. Zero waits forever.
func WithWriteTimeout(d time.Duration) Option {
	return func(dev *Device) {
		if d >= 0 {
			dev.writeTimeout = d
		}
	}
}

// Device is an open HID bootloader. It implements io.ReadWriteCloser.
type Device struct {
	usbCtx *usb.Context
	dev    *usb.Device
	cfg    *usb.Config
	intf   *usb.Interface
	ie     *usb.InEndpoint
	oe     *usb.OutEndpoint

	readTimeout  time.Duration
	writeTimeout time.Duration

	report [reportSize]byte
}

var _ io.ReadWriteCloser = (*Device)(nil)

// Scan lists the BUS:ADDR paths of every attached device matching id.
func Scan(id DeviceID) (paths []string, err error) {
	defer wrapErr("Scan", &err)

	ctx := usb.NewContext()
	defer ctx.Close()

	// The filter only records matches; nothing is opened.
	_, err = ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if desc.Vendor == id.Vendor && desc.Product == id.Product {
			paths = append(paths, fmt.Sprintf("%d:%d", desc.Bus, desc.Address))
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &DeviceNotFoundError{ID: id}
	}
	return paths, nil
}

// Open connects to the device matching id. busAddr selects one device as
// BUS:ADDR with decimal numbers; when it is empty exactly one matching
// device must be attached.
func Open(id DeviceID, busAddr string, opts ...Option) (d *Device, err error) {
	defer wrapErr("Open", &err)

	bus, addr := parseBusAddr(busAddr)
	if busAddr != "" && bus < 0 {
		return nil, errors.New("bad USB device address: " + busAddr)
	}

	ctx := usb.NewContext()
	var cn, in, an int
	devs, err := ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if bus >= 0 && (desc.Bus != bus || desc.Address != addr) {
			return false
		}
		if desc.Vendor != id.Vendor || desc.Product != id.Product {
			return false
		}
		for _, cfg := range desc.Configs {
			for _, intf := range cfg.Interfaces {
				for _, is := range intf.AltSettings {
					if is.Class == usb.ClassHID {
						cn, in, an = cfg.Number, intf.Number, is.Alternate
						return true
					}
				}
			}
		}
		return false
	})
	defer func() {
		if err != nil {
			for _, dev := range devs {
				dev.Close()
			}
			ctx.Close()
		}
	}()
	if err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, &DeviceNotFoundError{ID: id, BusAddr: busAddr}
	}
	if len(devs) != 1 {
		return nil, errors.Errorf("found %d %s devices, select one with its BUS:ADDR", len(devs), id)
	}

	d = &Device{usbCtx: ctx, dev: devs[0]}
	for _, opt := range opts {
		opt(d)
	}

	d.dev.SetAutoDetach(true)
	if d.cfg, err = d.dev.Config(cn); err != nil {
		return nil, err
	}
	if d.intf, err = d.cfg.Interface(in, an); err != nil {
		d.cfg.Close()
		return nil, err
	}

	var rxn, txn int
	for _, ed := range d.intf.Setting.Endpoints {
		if ed.TransferType != usb.TransferTypeInterrupt {
			continue
		}
		if ed.Direction == usb.EndpointDirectionIn {
			rxn = ed.Number
		} else {
			txn = ed.Number
		}
	}
	if rxn == 0 || txn == 0 {
		d.closeInterface()
		return nil, errors.New("HID interface needs interrupt IN and OUT endpoints")
	}
	if d.ie, err = d.intf.InEndpoint(rxn); err != nil {
		d.closeInterface()
		return nil, err
	}
	if d.oe, err = d.intf.OutEndpoint(txn); err != nil {
		d.closeInterface()
		return nil, err
	}

	return d, nil
}

// Write sends one 65-byte packet. The report ID in p[0] is not transmitted.
func (d *Device) Write(p []byte) (n int, err error) {
	defer wrapErr("Write", &err)

	if len(p) != protocol.PacketSize {
		return 0, errors.Errorf("packet is %d bytes, expected %d", len(p), protocol.PacketSize)
	}

	ctx, cancel := d.timeout(d.writeTimeout)
	defer cancel()

	n, err = d.oe.WriteContext(ctx, p[1:])
	if err != nil {
		return 0, err
	}
	if n != reportSize {
		return 0, io.ErrShortWrite
	}
	return len(p), nil
}

// Read receives one packet into p, which must hold protocol.PacketSize
// bytes. p[0] is set to the report ID.
func (d *Device) Read(p []byte) (n int, err error) {
	defer wrapErr("Read", &err)

	if len(p) < protocol.PacketSize {
		return 0, io.ErrShortBuffer
	}

	ctx, cancel := d.timeout(d.readTimeout)
	defer cancel()

	n, err = d.ie.ReadContext(ctx, d.report[:])
	if err != nil {
		return 0, err
	}

	p[0] = protocol.ReportID
	copy(p[1:], d.report[:n])
	clear(p[1+n : protocol.PacketSize])
	return protocol.PacketSize, nil
}

// Close releases the interface and the libusb context.
func (d *Device) Close() (err error) {
	defer wrapErr("Close", &err)
	d.closeInterface()
	if err = d.dev.Close(); err != nil {
		d.usbCtx.Close()
		return err
	}
	return d.usbCtx.Close()
}

func (d *Device) closeInterface() {
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	if d.cfg != nil {
		d.cfg.Close()
		d.cfg = nil
	}
}

func (d *Device) timeout(t time.Duration) (context.Context, context.CancelFunc) {
	if t <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), t)
}
