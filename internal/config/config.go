// Package config loads the picboot configuration file.
//
// The file is TOML and optional. Command line flags override its values.
//
//	[device]
//	id = "Vid_04d8&Pid_003c"
//	usb = "1:7"
//	read_timeout_ms = 0
//	write_timeout_ms = 1000
//
//	[program]
//	program_configs = false
//	verify = true
//	auto_reset = false
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/moffa90/go-picboot/usbhid"
)

// Config holds the complete picboot configuration.
type Config struct {
	// Device selects and tunes the USB device.
	Device DeviceConfig `toml:"device" json:"device" yaml:"device"`

	// Program holds the defaults of the programming actions.
	Program ProgramConfig `toml:"program" json:"program" yaml:"program"`
}

// DeviceConfig holds USB device selection.
type DeviceConfig struct {
	// ID is the vendor and product ID, "Vid_XXXX&Pid_XXXX" or "XXXX:XXXX".
	ID string `toml:"id" json:"id" yaml:"id"`

	// USB selects one device as BUS:ADDR when several are attached.
	USB string `toml:"usb" json:"usb" yaml:"usb"`

	// ReadTimeoutMs bounds every response read. 0 waits forever, which an
	// erase of a large part may need.
	ReadTimeoutMs int `toml:"read_timeout_ms" json:"read_timeout_ms" yaml:"read_timeout_ms"`

	// WriteTimeoutMs bounds every packet write. 0 waits forever.
	WriteTimeoutMs int `toml:"write_timeout_ms" json:"write_timeout_ms" yaml:"write_timeout_ms"`
}

// ProgramConfig holds programming defaults.
type ProgramConfig struct {
	// ProgramConfigs also programs the config words. A bad config word can
	// leave the device unable to enter the bootloader.
	ProgramConfigs bool `toml:"program_configs" json:"program_configs" yaml:"program_configs"`

	// Verify reads memory back after programming.
	Verify bool `toml:"verify" json:"verify" yaml:"verify"`

	// AutoReset resets the device after a successful program.
	AutoReset bool `toml:"auto_reset" json:"auto_reset" yaml:"auto_reset"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:             usbhid.DefaultDeviceID.String(),
			ReadTimeoutMs:  0,
			WriteTimeoutMs: 1000,
		},
		Program: ProgramConfig{
			Verify: true,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/picboot/config.toml, falling back to
// the user config directory of the platform.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "picboot", "config.toml")
}

// Load reads the file at path over the defaults and validates the result.
// Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// LoadDefault loads the file at DefaultPath, or returns the defaults when
// there is no such file.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// DeviceID returns the parsed device ID.
func (c *Config) DeviceID() (usbhid.DeviceID, error) {
	return usbhid.ParseDeviceID(c.Device.ID)
}

// ReadTimeout returns the read timeout as a duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Device.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Device.WriteTimeoutMs) * time.Millisecond
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if _, err := usbhid.ParseDeviceID(c.Device.ID); err != nil {
		errs = append(errs, ValidationError{Field: "device.id", Message: err.Error()})
	}
	if err := usbhid.ValidateBusAddr(c.Device.USB); err != nil {
		errs = append(errs, ValidationError{Field: "device.usb", Message: err.Error()})
	}
	if c.Device.ReadTimeoutMs < 0 {
		errs = append(errs, ValidationError{Field: "device.read_timeout_ms", Message: "must not be negative"})
	}
	if c.Device.WriteTimeoutMs < 0 {
		errs = append(errs, ValidationError{Field: "device.write_timeout_ms", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
