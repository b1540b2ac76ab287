package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-picboot/bootloader"
	"github.com/moffa90/go-picboot/protocol"
)

// scanResult describes one attached bootloader.
type scanResult struct {
	Path   string               `json:"path" yaml:"path"`
	ID     string               `json:"id" yaml:"id"`
	Device *protocol.DeviceInfo `json:"device,omitempty" yaml:"device,omitempty"`
	Error  string               `json:"error,omitempty" yaml:"error,omitempty"`
}

func newScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "List attached bootloaders and their memory layout",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
	scanCmd.Flags().StringP("format", "f", "text", "Output format: text, json or yaml")
	return scanCmd
}

func runScan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text", "json", "yaml":
	default:
		return errors.Errorf("unknown format %q", format)
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	id, err := cfg.DeviceID()
	if err != nil {
		return err
	}

	paths, err := scanDevices(id)
	if err != nil {
		return err
	}

	results := make([]scanResult, 0, len(paths))
	for _, path := range paths {
		if cfg.Device.USB != "" && path != cfg.Device.USB {
			continue
		}
		res := scanResult{Path: path, ID: id.String()}

		dev, err := openDevice(cfg, id, path)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		res.Device, err = bootloader.New(dev, bootloader.WithLogger(glogLogger{})).Query(cmd.Context())
		if err != nil {
			res.Error = err.Error()
		}
		if err := dev.Close(); err != nil {
			glog.Warningf("close %s: %v", path, err)
		}

		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	default:
		printScanText(out, results)
		return nil
	}
}

func printScanText(w io.Writer, results []scanResult) {
	for _, res := range results {
		fmt.Fprintf(w, "%s  %s", res.Path, res.ID)
		if res.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(w, "  %s, %d bytes/packet\n", res.Device.Family, res.Device.BytesPerPacket)
		for _, r := range res.Device.Regions {
			fmt.Fprintf(w, "    %-8s 0x%08X  size 0x%X\n", r.Type, r.Address, r.Size)
		}
	}
}
