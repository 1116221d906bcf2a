// Package driver defines the hardware capture/transmit capability interface
// and the registry the daemon selects a concrete driver from at startup.
package driver

import (
	"context"
	"errors"

	"github.com/ir-server/ir-server/internal/remotes"
)

// Features describes what a concrete driver can do. The protocol engine
// rejects commands the active driver has no feature for.
type Features uint32

const (
	// CanSend means the driver can transmit IR codes.
	CanSend Features = 1 << iota
	// CanReceiveRaw means ReadRaw yields pulse/space timing sequences.
	CanReceiveRaw
	// SelfDecoding means the hardware decodes signals itself and Decode
	// yields button names directly, bypassing bit demodulation.
	SelfDecoding
	// CanSetTransmitters means the driver honors the transmitter-mask ioctl.
	CanSetTransmitters
)

// Has reports whether all given feature bits are set.
func (f Features) Has(want Features) bool { return f&want == want }

// RawSequence is one captured transmission: alternating pulse and space
// durations in microseconds, starting with a pulse. The terminating gap is
// not part of the sequence.
type RawSequence []uint32

// Ioctl operations.
type IoctlOp int

const (
	// IoctlSetTransmitters selects the active transmitters; arg is a uint64
	// bit mask.
	IoctlSetTransmitters IoctlOp = iota + 1
	// IoctlNotifyDecode tells hardware that keeps its own decode state that
	// a signal was successfully decoded.
	IoctlNotifyDecode
)

// Driver errors
var (
	ErrUnsupported    = errors.New("operation not supported by driver")
	ErrNotInitialized = errors.New("driver not initialized")
)

// Driver is the uniform capability interface over hardware backends.
// Init must succeed before ReadRaw, Decode or Send may be called, and
// Deinit must be called exactly once before the process exits or the
// driver is switched.
type Driver interface {
	Name() string
	Device() string
	Features() Features

	Init() error
	Deinit() error

	// Send transmits the given code, repeated repeats additional times.
	Send(remote *remotes.Remote, code *remotes.Code, repeats uint32) error

	// ReadRaw blocks until a complete timing sequence has been captured or
	// ctx is done.
	ReadRaw(ctx context.Context) (RawSequence, error)

	// Decode maps a timing sequence to a button name for self-decoding
	// hardware. Drivers without SelfDecoding return ok=false.
	Decode(seq RawSequence) (button string, ok bool)

	Ioctl(op IoctlOp, arg interface{}) error
}
