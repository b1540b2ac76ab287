package cmd

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-picboot/internal/config"
)

// NewRootCmd builds the picboot command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "picboot",
		Short: "Flash PIC microcontrollers through the Microchip USB HID bootloader",
		Long: `picboot programs PIC18, PIC24 and PIC32 devices running the Microchip
USB HID bootloader from Intel HEX files.

Settings are read from $XDG_CONFIG_HOME/picboot/config.toml when it exists;
flags override the file.

Example:
  picboot program firmware.hex
  picboot -c -r program firmware.hex
  picboot --device 04d8:003c --usb 1:7 verify firmware.hex`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// glog reads its flags from the standard flag set.
			return flag.CommandLine.Parse(nil)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Configuration file (default $XDG_CONFIG_HOME/picboot/config.toml)")
	flags.String("device", "", "USB device ID, e.g. Vid_04d8&Pid_003c or 04d8:003c")
	flags.String("usb", "", "Select the device at BUS:ADDR")
	flags.Duration("timeout", 0, "Response read timeout (0 waits forever)")
	flags.BoolP("no-verify", "n", false, "Don't verify on program")
	flags.BoolP("program-configs", "c", false, "Program configuration bits")
	flags.BoolP("reset", "r", false, "Reset device on completion")
	flags.AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(
		newScanCmd(),
		newEraseCmd(),
		newReadCmd(),
		newProgramCmd(),
		newVerifyCmd(),
		newResetCmd(),
		newRunCmd(),
		newHexinfoCmd(),
	)

	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	err := NewRootCmd().Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadSettings reads the configuration file and applies changed flags.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	var (
		cfg *config.Config
		err error
	)
	if path, _ := flags.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if flags.Changed("device") {
		cfg.Device.ID, _ = flags.GetString("device")
	}
	if flags.Changed("usb") {
		cfg.Device.USB, _ = flags.GetString("usb")
	}
	if flags.Changed("timeout") {
		timeout, _ := flags.GetDuration("timeout")
		cfg.Device.ReadTimeoutMs = int(timeout / time.Millisecond)
	}
	if flags.Changed("no-verify") {
		noVerify, _ := flags.GetBool("no-verify")
		cfg.Program.Verify = !noVerify
	}
	if flags.Changed("program-configs") {
		cfg.Program.ProgramConfigs, _ = flags.GetBool("program-configs")
	}
	if flags.Changed("reset") {
		cfg.Program.AutoReset, _ = flags.GetBool("reset")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	glog.V(2).Infof("settings: %+v", *cfg)
	return cfg, nil
}
