package usbhid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	usb "github.com/google/gousb"
	"github.com/pkg/errors"

	"github.com/moffa90/go-picboot/protocol"
)

// DeviceID selects a USB device by vendor and product ID.
type DeviceID struct {
	Vendor  usb.ID
	Product usb.ID
}

// DefaultDeviceID is the stock Microchip HID bootloader.
var DefaultDeviceID = DeviceID{Vendor: protocol.DefaultVendorID, Product: protocol.DefaultProductID}

var (
	windowsIDPattern = regexp.MustCompile(`(?i)^vid_([0-9a-f]{4})&pid_([0-9a-f]{4})$`)
	colonIDPattern   = regexp.MustCompile(`(?i)^([0-9a-f]{4}):([0-9a-f]{4})$`)
)

// ParseDeviceID accepts "Vid_04d8&Pid_003c" (any case) and "04d8:003c".
func ParseDeviceID(s string) (DeviceID, error) {
	s = strings.TrimSpace(s)

	m := windowsIDPattern.FindStringSubmatch(s)
	if m == nil {
		m = colonIDPattern.FindStringSubmatch(s)
	}
	if m == nil {
		return DeviceID{}, errors.Errorf("invalid device ID %q: want Vid_XXXX&Pid_XXXX or XXXX:XXXX", s)
	}

	vid, _ := strconv.ParseUint(m[1], 16, 16)
	pid, _ := strconv.ParseUint(m[2], 16, 16)
	return DeviceID{Vendor: usb.ID(vid), Product: usb.ID(pid)}, nil
}

// String formats the ID the way the bootloader documentation does.
func (id DeviceID) String() string {
	return fmt.Sprintf("Vid_%04x&Pid_%04x", uint16(id.Vendor), uint16(id.Product))
}

// parseBusAddr splits "BUS:ADDR" into decimal bus and device numbers.
// It returns -1, -1 when busAddr is not in that form.
func parseBusAddr(busAddr string) (int, int) {
	s := strings.Split(busAddr, ":")
	if len(s) != 2 {
		return -1, -1
	}
	bus, err := strconv.ParseUint(s[0], 10, 8)
	if err != nil {
		return -1, -1
	}
	dev, err := strconv.ParseUint(s[1], 10, 8)
	if err != nil {
		return -1, -1
	}
	return int(bus), int(dev)
}

// ValidateBusAddr checks a BUS:ADDR device path. The empty string is valid
// and means any bus.
func ValidateBusAddr(busAddr string) error {
	if busAddr == "" {
		return nil
	}
	if bus, _ := parseBusAddr(busAddr); bus < 0 {
		return errors.Errorf("bad USB device address %q: want BUS:ADDR", busAddr)
	}
	return nil
}
