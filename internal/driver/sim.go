package driver

import (
	"context"
	"sync"

	"github.com/ir-server/ir-server/internal/remotes"
)

func init() {
	Register("simulate", func(device string) Driver {
		return NewSimulated(device)
	})
}

// SentCode records one transmission performed by the simulated driver.
type SentCode struct {
	Remote  string
	Code    string
	Repeats uint32
}

// Simulated is a software driver for replay and testing. Raw sequences fed
// through Feed are returned from ReadRaw; transmissions are recorded
// instead of sent.
type Simulated struct {
	device string

	mu     sync.Mutex
	sent   []SentCode
	txMask uint64
	inited bool

	feed chan RawSequence
}

// NewSimulated builds a simulated driver. The device path is cosmetic.
func NewSimulated(device string) *Simulated {
	if device == "" {
		device = "sim"
	}
	return &Simulated{
		device: device,
		feed:   make(chan RawSequence, 16),
	}
}

func (d *Simulated) Name() string   { return "simulate" }
func (d *Simulated) Device() string { return d.device }

func (d *Simulated) Features() Features {
	return CanSend | CanReceiveRaw | CanSetTransmitters
}

func (d *Simulated) Init() error {
	d.mu.Lock()
	d.inited = true
	d.mu.Unlock()
	return nil
}

func (d *Simulated) Deinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inited {
		return ErrNotInitialized
	}
	d.inited = false
	return nil
}

// Feed queues a raw sequence for the next ReadRaw call.
func (d *Simulated) Feed(seq RawSequence) {
	d.feed <- seq
}

func (d *Simulated) ReadRaw(ctx context.Context) (RawSequence, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case seq := <-d.feed:
		return seq, nil
	}
}

func (d *Simulated) Send(remote *remotes.Remote, code *remotes.Code, repeats uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inited {
		return ErrNotInitialized
	}
	d.sent = append(d.sent, SentCode{Remote: remote.Name, Code: code.Name, Repeats: repeats})
	return nil
}

// Sent returns a copy of all recorded transmissions.
func (d *Simulated) Sent() []SentCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentCode, len(d.sent))
	copy(out, d.sent)
	return out
}

func (d *Simulated) Decode(RawSequence) (string, bool) { return "", false }

func (d *Simulated) Ioctl(op IoctlOp, arg interface{}) error {
	switch op {
	case IoctlSetTransmitters:
		mask, ok := arg.(uint64)
		if !ok {
			return ErrUnsupported
		}
		d.mu.Lock()
		d.txMask = mask
		d.mu.Unlock()
		return nil
	case IoctlNotifyDecode:
		return nil
	default:
		return ErrUnsupported
	}
}

// TransmitterMask returns the last mask set through Ioctl.
func (d *Simulated) TransmitterMask() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txMask
}
