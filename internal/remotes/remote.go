package remotes

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateRemote = errors.New("duplicate remote name")
	ErrDuplicateCode   = errors.New("duplicate code name")
)

// ParseError is a config file error carrying the offending line number.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Code is a named button within a remote, mapped to its signal value.
type Code struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

// Remote is one infrared device profile: its encoding parameters and the
// ordered set of named button codes. All timing fields are microseconds.
type Remote struct {
	Name string `json:"name"`

	// Bits is the number of payload bits in one transmission, not counting
	// pre-data bits.
	Bits uint `json:"bits"`

	// Eps is the relative timing tolerance in percent; Aeps the absolute
	// tolerance in microseconds. A duration matches when it is within
	// either band.
	Eps  uint32 `json:"eps"`
	Aeps uint32 `json:"aeps"`

	HeaderPulse uint32 `json:"headerPulse"`
	HeaderSpace uint32 `json:"headerSpace"`
	OnePulse    uint32 `json:"onePulse"`
	OneSpace    uint32 `json:"oneSpace"`
	ZeroPulse   uint32 `json:"zeroPulse"`
	ZeroSpace   uint32 `json:"zeroSpace"`

	// Ptrail is an optional trailing pulse after the last bit.
	Ptrail uint32 `json:"ptrail,omitempty"`

	PreDataBits uint   `json:"preDataBits,omitempty"`
	PreData     uint64 `json:"preData,omitempty"`

	// Gap is the space between the end of one transmission and the start
	// of the next; it bounds the repeat window.
	Gap uint32 `json:"gap"`

	// ToggleBitMask marks bits that flip on each fresh physical press.
	// Received codes are compared with these bits masked out.
	ToggleBitMask uint64 `json:"toggleBitMask,omitempty"`

	MinRepeat uint32 `json:"minRepeat,omitempty"`

	Flags []string `json:"flags,omitempty"`

	// Codes in declaration order.
	Codes []Code `json:"codes"`

	byName map[string]*Code
}

// HasFlag reports whether the remote declares the given flag.
func (r *Remote) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Code looks up a code by button name.
func (r *Remote) Code(name string) (*Code, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// CodeByValue looks up a code by signal value, with toggle bits masked out
// of both sides.
func (r *Remote) CodeByValue(value uint64) (*Code, bool) {
	masked := value &^ r.ToggleBitMask
	for i := range r.Codes {
		if r.Codes[i].Value&^r.ToggleBitMask == masked {
			return &r.Codes[i], true
		}
	}
	return nil, false
}

// totalBits is the full transmitted width including pre-data.
func (r *Remote) totalBits() uint {
	return r.PreDataBits + r.Bits
}

func (r *Remote) index() {
	r.byName = make(map[string]*Code, len(r.Codes))
	for i := range r.Codes {
		r.byName[r.Codes[i].Name] = &r.Codes[i]
	}
}

// validate enforces the structural invariants a loaded remote must hold.
func (r *Remote) validate() error {
	if r.Name == "" {
		return errors.New("remote has no name")
	}
	if r.Bits == 0 || r.totalBits() > 64 {
		return fmt.Errorf("remote %q: bit count %d out of range", r.Name, r.totalBits())
	}
	if r.ToggleBitMask != 0 && r.Bits < 64 && r.ToggleBitMask >= 1<<r.Bits {
		return fmt.Errorf("remote %q: toggle_bit_mask %#x exceeds %d declared bits",
			r.Name, r.ToggleBitMask, r.Bits)
	}
	if len(r.Codes) == 0 {
		return fmt.Errorf("remote %q: no codes defined", r.Name)
	}
	seen := make(map[string]struct{}, len(r.Codes))
	for _, c := range r.Codes {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("remote %q: %w: %q", r.Name, ErrDuplicateCode, c.Name)
		}
		seen[c.Name] = struct{}{}
		if r.Bits < 64 && c.Value >= 1<<r.Bits {
			return fmt.Errorf("remote %q: code %q value %#x exceeds %d declared bits",
				r.Name, c.Name, c.Value, r.Bits)
		}
	}
	return nil
}
