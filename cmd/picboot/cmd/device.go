package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-picboot/bootloader"
	"github.com/moffa90/go-picboot/internal/config"
	"github.com/moffa90/go-picboot/usbhid"
)

// openDevice opens the bootloader at busAddr. Tests replace it with a
// simulated device.
var openDevice = func(cfg *config.Config, id usbhid.DeviceID, busAddr string) (io.ReadWriteCloser, error) {
	return usbhid.Open(id, busAddr,
		usbhid.WithReadTimeout(cfg.ReadTimeout()),
		usbhid.WithWriteTimeout(cfg.WriteTimeout()),
	)
}

// scanDevices lists attached bootloaders. Tests replace it.
var scanDevices = usbhid.Scan

// glogLogger adapts glog to bootloader.Logger.
type glogLogger struct{}

func (glogLogger) Debug(msg string, kv ...interface{}) {
	if glog.V(2) {
		glog.InfoDepth(1, msg+formatKV(kv))
	}
}

func (glogLogger) Info(msg string, kv ...interface{}) {
	if glog.V(1) {
		glog.InfoDepth(1, msg+formatKV(kv))
	}
}

func (glogLogger) Error(msg string, kv ...interface{}) {
	glog.ErrorDepth(1, msg+formatKV(kv))
}

func formatKV(kv []interface{}) string {
	var s string
	for i := 0; i+1 < len(kv); i += 2 {
		s += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return s
}

// progressBar draws a console progress bar.
type progressBar struct {
	w     io.Writer
	buf   []byte
	phase bootloader.Phase
	last  int
}

const (
	ptodo = "                         ] "
	pdone = " [========================="
)

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w, buf: make([]byte, 0, 80), last: -1}
}

func (b *progressBar) update(p bootloader.Progress) {
	done := int(p.Percentage) / 4
	if p.Phase != b.phase {
		b.phase = p.Phase
		b.last = -1
	}
	if done == b.last && p.Phase != bootloader.PhaseComplete {
		return
	}
	b.last = done

	b.buf = b.buf[:0]
	b.buf = append(b.buf, '\r')
	b.buf = append(b.buf, fmt.Sprintf("%-12s", p.Phase)...)
	b.buf = append(b.buf, pdone[:2+done]...)
	b.buf = append(b.buf, ptodo[done:]...)
	b.buf = strconv.AppendInt(b.buf, int64(p.Percentage), 10)
	b.buf = append(b.buf, '%')
	if p.Phase == bootloader.PhaseComplete {
		b.buf = append(b.buf, fmt.Sprintf(" (%d sent, %d skipped, %s)\n",
			p.PacketsSent, p.PacketsSkipped, p.ElapsedTime.Round(1e6))...)
	}
	if _, err := b.w.Write(b.buf); err != nil {
		glog.V(2).Infof("progress output: %v", err)
	}
}

// session is an open device with a queried programmer.
type session struct {
	cfg    *config.Config
	dev    io.ReadWriteCloser
	prog   *bootloader.Programmer
	closed bool
}

// openSession loads the settings, opens the device and queries it.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	return openSessionWith(cmd, cfg)
}

func openSessionWith(cmd *cobra.Command, cfg *config.Config) (*session, error) {
	id, err := cfg.DeviceID()
	if err != nil {
		return nil, err
	}

	dev, err := openDevice(cfg, id, cfg.Device.USB)
	if err != nil {
		return nil, err
	}

	bar := newProgressBar(cmd.ErrOrStderr())
	s := &session{
		cfg: cfg,
		dev: dev,
		prog: bootloader.New(dev,
			bootloader.WithLogger(glogLogger{}),
			bootloader.WithProgressCallback(bar.update),
		),
	}

	info, err := s.prog.Query(cmd.Context())
	if err != nil {
		s.close()
		return nil, err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Found %s device (%d bytes/packet)\n", info.Family, info.BytesPerPacket)
	return s, nil
}

// finish applies the auto-reset setting and closes the device.
func (s *session) finish(ctx context.Context, out io.Writer) error {
	defer s.close()
	if !s.cfg.Program.AutoReset {
		return nil
	}
	fmt.Fprintln(out, "Resetting device")
	return s.prog.Reset(ctx)
}

func (s *session) close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.dev.Close(); err != nil {
		glog.Warningf("close device: %v", err)
	}
}
