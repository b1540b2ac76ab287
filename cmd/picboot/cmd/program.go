package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-picboot/internal/config"
)

var errEmptyHex = errors.New("hex file is empty")

// watchDebounce collapses the burst of events an editor or linker produces
// when it rewrites a file.
var watchDebounce = 500 * time.Millisecond

func newProgramCmd() *cobra.Command {
	programCmd := &cobra.Command{
		Use:   "program FILE",
		Short: "Erase the device and program a HEX file",
		Long: `Erase the device, program FILE and verify it.

With --watch the command keeps running and programs FILE again every time
it changes, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: runProgram,
	}
	programCmd.Flags().BoolP("watch", "w", false, "Program again whenever FILE changes")
	return programCmd
}

func runProgram(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	path := args[0]
	if err := programFile(cmd, cfg, path); err != nil {
		return err
	}

	if watch, _ := cmd.Flags().GetBool("watch"); !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchFile(ctx, path, func() {
		if err := programFile(cmd, cfg, path); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}
	})
}

// programFile runs one erase, program and verify cycle.
func programFile(cmd *cobra.Command, cfg *config.Config, path string) error {
	img, err := loadHex(path)
	if err != nil {
		return err
	}

	s, err := openSessionWith(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	programConfigs := cfg.Program.ProgramConfigs

	if err := eraseDevice(ctx, out, s.prog, programConfigs); err != nil {
		return err
	}

	fmt.Fprintf(out, "Programming %s\n", path)
	if err := s.prog.Program(ctx, img, programConfigs); err != nil {
		return err
	}

	if cfg.Program.Verify {
		fmt.Fprintln(out, "Verifying")
		if err := s.prog.Verify(ctx, img); err != nil {
			return err
		}
		fmt.Fprintln(out, "Verify OK")
	}

	return s.finish(ctx, out)
}

// watchFile calls fn after path changes until ctx is done. The parent
// directory is watched so files replaced by rename are still seen.
func watchFile(ctx context.Context, path string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "watch")
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watch %s", path)
	}
	glog.Infof("watching %s", path)

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			glog.V(2).Infof("watch event: %s", event)
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			glog.Warningf("watch: %v", err)
		case <-timer.C:
			fn()
		}
	}
}
