package decoder

import (
	"time"

	"github.com/ir-server/ir-server/internal/remotes"
)

// Event is a press or release surfaced by the tracker, ready for the
// broadcast stream.
type Event struct {
	Remote  *remotes.Remote
	Code    *remotes.Code
	Repeat  uint32
	Release bool
}

// Tracker suppresses and merges duplicate detections of a held button and
// synthesizes release events. It is owned by the core loop and never
// touched concurrently.
type Tracker struct {
	releaseEnabled bool
	repeatMax      uint32
	fixedWindow    time.Duration

	repeating bool
	remote    *remotes.Remote
	code      *remotes.Code
	lastValue uint64
	lastSeen  time.Time
	repeat    uint32
	saturated bool
}

// NewTracker builds a tracker. When releaseEnabled is false duplicate
// presses are still merged but no release events are ever emitted.
// repeatMax caps the repeat counter.
func NewTracker(releaseEnabled bool, repeatMax uint32) *Tracker {
	return &Tracker{releaseEnabled: releaseEnabled, repeatMax: repeatMax}
}

// SetWindow overrides the per-remote repeat window with a fixed duration.
// Zero restores the gap-derived default.
func (t *Tracker) SetWindow(d time.Duration) { t.fixedWindow = d }

// repeatWindow is the maximum interval between transmissions still counted
// as the same held button: twice the remote's gap, absorbing capture
// jitter, unless a fixed timeout is configured.
func (t *Tracker) repeatWindow(r *remotes.Remote) time.Duration {
	if t.fixedWindow > 0 {
		return t.fixedWindow
	}
	return 2 * time.Duration(r.Gap) * time.Microsecond
}

// Observe feeds one decoded press into the state machine and returns the
// events to broadcast, in order. A release for the previous button always
// precedes the press that displaced it.
func (t *Tracker) Observe(p Press, now time.Time) []Event {
	var out []Event

	if t.repeating {
		sameButton := t.remote == p.Remote && t.code == p.Code
		toggleFlip := p.Remote.ToggleBitMask != 0 &&
			(p.Value&p.Remote.ToggleBitMask) != (t.lastValue&p.Remote.ToggleBitMask)
		inWindow := now.Sub(t.lastSeen) <= t.repeatWindow(t.remote)

		if sameButton && inWindow && !toggleFlip {
			t.lastSeen = now
			t.lastValue = p.Value
			if t.saturated {
				// Counter stays capped; the timer above keeps resetting.
				return nil
			}
			t.repeat++
			if t.repeatMax > 0 && t.repeat >= t.repeatMax {
				t.repeat = t.repeatMax
				t.saturated = true
			}
			return []Event{{Remote: t.remote, Code: t.code, Repeat: t.repeat}}
		}

		out = append(out, t.makeRelease()...)
	}

	t.repeating = true
	t.remote = p.Remote
	t.code = p.Code
	t.lastValue = p.Value
	t.lastSeen = now
	t.repeat = 0
	t.saturated = false
	out = append(out, Event{Remote: p.Remote, Code: p.Code, Repeat: 0})
	return out
}

// Timeout checks the release deadline. When the gap window has elapsed with
// no matching signal the tracker returns to idle, emitting a release if
// enabled.
func (t *Tracker) Timeout(now time.Time) []Event {
	if !t.repeating || now.Sub(t.lastSeen) <= t.repeatWindow(t.remote) {
		return nil
	}
	out := t.makeRelease()
	t.reset()
	return out
}

// NextDeadline returns the instant at which Timeout would fire, and whether
// one is pending. The core loop sizes its wait from this.
func (t *Tracker) NextDeadline() (time.Time, bool) {
	if !t.repeating {
		return time.Time{}, false
	}
	return t.lastSeen.Add(t.repeatWindow(t.remote)), true
}

// Reset drops all tracked state without emitting anything. Used when the
// database is swapped out underneath the tracker.
func (t *Tracker) Reset() { t.reset() }

func (t *Tracker) makeRelease() []Event {
	if !t.releaseEnabled {
		return nil
	}
	return []Event{{Remote: t.remote, Code: t.code, Repeat: t.repeat, Release: true}}
}

func (t *Tracker) reset() {
	t.repeating = false
	t.remote = nil
	t.code = nil
	t.lastValue = 0
	t.repeat = 0
	t.saturated = false
}
