package driver

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/internal/remotes"
)

func init() {
	Register("mode2", func(device string) Driver {
		if device == "" {
			device = "/dev/lirc0"
		}
		return &mode2Driver{device: device}
	})
}

// mode2GapTerm is the space length that ends one captured sequence. Any
// space at least this long is treated as the inter-transmission gap and is
// not part of the emitted sequence.
const mode2GapTerm = 20000

// mode2Driver reads printable pulse/space lines ("pulse 2400", "space 600")
// from a character device or FIFO, the format emitted by mode2-style
// capture tools, and groups them into raw sequences.
type mode2Driver struct {
	device string
	file   *os.File
	seqs   chan RawSequence
	done   chan struct{}
}

func (d *mode2Driver) Name() string       { return "mode2" }
func (d *mode2Driver) Device() string     { return d.device }
func (d *mode2Driver) Features() Features { return CanReceiveRaw }

func (d *mode2Driver) Init() error {
	f, err := os.Open(d.device)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	d.file = f
	d.seqs = make(chan RawSequence, 4)
	d.done = make(chan struct{})
	go d.pump()
	return nil
}

func (d *mode2Driver) Deinit() error {
	if d.file == nil {
		return ErrNotInitialized
	}
	err := d.file.Close()
	<-d.done
	d.file = nil
	return err
}

// pump scans the device until it is closed, flushing a sequence on every
// gap-length space and on blank lines.
func (d *mode2Driver) pump() {
	defer close(d.done)

	var seq RawSequence
	flush := func() {
		if len(seq) == 0 {
			return
		}
		select {
		case d.seqs <- seq:
		default:
			log.Warn().Str("device", d.device).Msg("capture buffer full, dropping sequence")
		}
		seq = nil
	}

	scanner := bufio.NewScanner(d.file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		dur, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "pulse":
			if len(seq)%2 != 0 {
				// Two pulses in a row means we lost a space; resynchronize.
				seq = nil
			}
			seq = append(seq, uint32(dur))
		case "space":
			if len(seq) == 0 {
				continue
			}
			if dur >= mode2GapTerm {
				flush()
				continue
			}
			if len(seq)%2 == 0 {
				// A split space; merge it into the previous one.
				seq[len(seq)-1] += uint32(dur)
				continue
			}
			seq = append(seq, uint32(dur))
		}
	}
	flush()
	close(d.seqs)
}

func (d *mode2Driver) ReadRaw(ctx context.Context) (RawSequence, error) {
	if d.seqs == nil {
		return nil, ErrNotInitialized
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case seq, ok := <-d.seqs:
		if !ok {
			return nil, fmt.Errorf("capture device %s closed", d.device)
		}
		return seq, nil
	}
}

func (d *mode2Driver) Send(*remotes.Remote, *remotes.Code, uint32) error {
	return ErrUnsupported
}

func (d *mode2Driver) Decode(RawSequence) (string, bool) { return "", false }

func (d *mode2Driver) Ioctl(IoctlOp, interface{}) error { return ErrUnsupported }
