package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-picboot/bootloader"
	"github.com/moffa90/go-picboot/intelhex"
)

func newEraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Erase the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if err := eraseDevice(ctx, cmd.OutOrStdout(), s.prog, s.cfg.Program.ProgramConfigs); err != nil {
				return err
			}
			return s.finish(ctx, cmd.OutOrStdout())
		},
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read the device memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if _, err := s.prog.Read(cmd.Context()); err != nil {
				return err
			}
			return s.finish(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE",
		Short: "Compare the device memory with a HEX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadHex(args[0])
			if err != nil {
				return err
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			fmt.Fprintln(cmd.OutOrStdout(), "Verifying")
			if err := s.prog.Verify(ctx, img); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Verify OK")
			return s.finish(ctx, cmd.OutOrStdout())
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the device",
		Args:  cobra.NoArgs,
		RunE:  runReset,
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Leave the bootloader and start the application",
		Args:  cobra.NoArgs,
		RunE:  runReset,
	}
}

func runReset(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Fprintln(cmd.OutOrStdout(), "Resetting device")
	return s.prog.Reset(cmd.Context())
}

// eraseDevice sets the config lock to match programConfigs and erases.
func eraseDevice(ctx context.Context, out io.Writer, prog *bootloader.Programmer, programConfigs bool) error {
	if err := prog.UnlockConfig(ctx, programConfigs); err != nil {
		return err
	}
	fmt.Fprintln(out, "Erasing")
	return prog.Erase(ctx)
}

// loadHex loads a HEX file and rejects images without data.
func loadHex(path string) (*intelhex.Image, error) {
	img, err := intelhex.Load(path)
	if err != nil {
		return nil, err
	}
	if img.Size == 0 {
		return nil, errEmptyHex
	}
	return img, nil
}
