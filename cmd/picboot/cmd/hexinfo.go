package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-picboot/intelhex"
)

func newHexinfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hexinfo FILE",
		Short: "Show the memory blocks and data segments of a HEX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := intelhex.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d bytes in %d blocks\n", img.Size, len(img.Blocks))
			for _, b := range img.Blocks {
				fmt.Fprintf(out, "block 0x%08X  size 0x%X\n", b.StartAddress, b.Size)
			}
			for _, s := range img.Segments() {
				fmt.Fprintf(out, "  data 0x%08X-0x%08X  %d bytes\n",
					s.Address, s.Address+uint64(s.Length)-1, s.Length)
			}
			return nil
		},
	}
}
