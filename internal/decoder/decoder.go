// Package decoder turns raw pulse/space timing into symbolic button events
// and tracks repeat/release state across consecutive transmissions.
package decoder

import (
	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/internal/driver"
	"github.com/ir-server/ir-server/internal/remotes"
)

// Press is one successfully decoded transmission, before repeat tracking.
type Press struct {
	Remote *remotes.Remote
	Code   *remotes.Code
	// Value is the raw decoded bit pattern, toggle bits included.
	Value uint64
}

// Decode matches a timing sequence against every remote in the snapshot, in
// load order, and returns the first remote+code whose demodulated bit
// pattern matches a configured code value. Timing outside every remote's
// tolerance band yields no event; that is noise, not an error.
func Decode(snap *remotes.Snapshot, seq driver.RawSequence) (Press, bool) {
	for _, r := range snap.All() {
		value, ok := demodulate(r, seq)
		if !ok {
			continue
		}
		code, ok := r.CodeByValue(value)
		if !ok {
			log.Debug().
				Str("remote", r.Name).
				Uint64("value", value).
				Msg("demodulated value matches no configured code")
			continue
		}
		return Press{Remote: r, Code: code, Value: value}, true
	}
	return Press{}, false
}

// DecodeButton resolves a driver-decoded button name against the snapshot,
// in load order. Used for self-decoding hardware that never produces raw
// timing.
func DecodeButton(snap *remotes.Snapshot, button string) (Press, bool) {
	for _, r := range snap.All() {
		if code, ok := r.Code(button); ok {
			return Press{Remote: r, Code: code, Value: code.Value}, true
		}
	}
	return Press{}, false
}

// demodulate attempts bit-level demodulation of seq against one remote's
// declared encoding. It returns the decoded bit pattern including pre-data.
// Remotes flagged NO_HEAD_REP omit the header on repeat transmissions, so
// for those a headerless frame is tried as well.
func demodulate(r *remotes.Remote, seq driver.RawSequence) (uint64, bool) {
	if v, ok := demodulateFrame(r, seq, true); ok {
		return v, true
	}
	if r.HasFlag("NO_HEAD_REP") {
		return demodulateFrame(r, seq, false)
	}
	return 0, false
}

func demodulateFrame(r *remotes.Remote, seq driver.RawSequence, withHeader bool) (uint64, bool) {
	i := 0
	if withHeader && (r.HeaderPulse > 0 || r.HeaderSpace > 0) {
		if len(seq) < 2 || !within(r, seq[0], r.HeaderPulse) || !within(r, seq[1], r.HeaderSpace) {
			return 0, false
		}
		i = 2
	}

	total := int(r.PreDataBits + r.Bits)
	var value uint64
	for b := 0; b < total; b++ {
		if i >= len(seq) {
			return 0, false
		}
		pulse := seq[i]
		var space uint32
		hasSpace := i+1 < len(seq)
		if hasSpace {
			space = seq[i+1]
		}
		last := b == total-1

		one := hasSpace && within(r, pulse, r.OnePulse) && within(r, space, r.OneSpace)
		zero := hasSpace && within(r, pulse, r.ZeroPulse) && within(r, space, r.ZeroSpace)
		if !one && !zero && last {
			// The final space may be missing or absorbed by the gap;
			// fall back to the pulse width alone.
			one = within(r, pulse, r.OnePulse)
			zero = within(r, pulse, r.ZeroPulse)
		}
		if one == zero {
			// Neither matched, or the encoding cannot distinguish them here.
			return 0, false
		}
		value <<= 1
		if one {
			value |= 1
		}
		i += 2
	}

	if r.Ptrail > 0 {
		if i >= len(seq) || !within(r, seq[i], r.Ptrail) {
			return 0, false
		}
		i++
	}
	if i < len(seq) {
		// Leftover timing after the last expected element.
		return 0, false
	}

	if r.PreDataBits > 0 {
		pre := value >> r.Bits
		if pre != r.PreData {
			return 0, false
		}
		if r.Bits < 64 {
			value &= 1<<r.Bits - 1
		}
	}
	return value, true
}

// within reports whether a measured duration is inside the remote's
// tolerance band around want: Eps percent relative or Aeps microseconds
// absolute, whichever is wider.
func within(r *remotes.Remote, got, want uint32) bool {
	if want == 0 {
		return got == 0
	}
	var diff uint32
	if got > want {
		diff = got - want
	} else {
		diff = want - got
	}
	if diff <= r.Aeps {
		return true
	}
	return uint64(diff)*100 <= uint64(want)*uint64(r.Eps)
}
