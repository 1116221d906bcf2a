package decoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ir-server/ir-server/internal/remotes"
)

func trackerRemote(name string) (*remotes.Remote, *remotes.Code, *remotes.Code) {
	r := &remotes.Remote{
		Name: name,
		Bits: 12,
		Gap:  45000, // 45ms gap, 90ms repeat window
		Codes: []remotes.Code{
			{Name: "KEY_POWER", Value: 0xA90},
			{Name: "KEY_UP", Value: 0x2F0},
		},
	}
	return r, &r.Codes[0], &r.Codes[1]
}

func TestTrackerFirstPressHasRepeatZero(t *testing.T) {
	r, power, _ := trackerRemote("sony-tv")
	tr := NewTracker(true, 600)

	now := time.Now()
	events := tr.Observe(Press{Remote: r, Code: power, Value: power.Value}, now)
	require.Len(t, events, 1)
	assert.Equal(t, uint32(0), events[0].Repeat)
	assert.False(t, events[0].Release)
}

func TestTrackerRepeatsIncrement(t *testing.T) {
	r, power, _ := trackerRemote("sony-tv")
	tr := NewTracker(true, 600)

	now := time.Now()
	press := Press{Remote: r, Code: power, Value: power.Value}
	tr.Observe(press, now)
	for i := 1; i <= 5; i++ {
		now = now.Add(50 * time.Millisecond)
		events := tr.Observe(press, now)
		require.Len(t, events, 1)
		assert.Equal(t, uint32(i), events[0].Repeat)
		assert.False(t, events[0].Release)
	}
}

func TestTrackerRepeatCounterSaturates(t *testing.T) {
	r, power, _ := trackerRemote("sony-tv")
	tr := NewTracker(true, 3)

	now := time.Now()
	press := Press{Remote: r, Code: power, Value: power.Value}
	tr.Observe(press, now)

	var counts []uint32
	for i := 0; i < 6; i++ {
		now = now.Add(50 * time.Millisecond)
		for _, ev := range tr.Observe(press, now) {
			counts = append(counts, ev.Repeat)
		}
	}
	// Counter caps at 3, then presses are suppressed while the timer keeps
	// resetting.
	assert.Equal(t, []uint32{1, 2, 3}, counts)

	// The gap timer was still reset by the suppressed presses.
	deadline, ok := tr.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(90*time.Millisecond), deadline)
}

func TestTrackerDifferentCodeReleasesFirst(t *testing.T) {
	r, power, up := trackerRemote("sony-tv")
	tr := NewTracker(true, 600)

	now := time.Now()
	tr.Observe(Press{Remote: r, Code: power, Value: power.Value}, now)

	now = now.Add(50 * time.Millisecond)
	events := tr.Observe(Press{Remote: r, Code: up, Value: up.Value}, now)
	require.Len(t, events, 2)
	assert.True(t, events[0].Release)
	assert.Equal(t, "KEY_POWER", events[0].Code.Name)
	assert.False(t, events[1].Release)
	assert.Equal(t, "KEY_UP", events[1].Code.Name)
	assert.Equal(t, uint32(0), events[1].Repeat)
}

func TestTrackerTimeoutEmitsRelease(t *testing.T) {
	r, power, _ := trackerRemote("sony-tv")
	tr := NewTracker(true, 600)

	now := time.Now()
	tr.Observe(Press{Remote: r, Code: power, Value: power.Value}, now)

	// Before the window: nothing.
	assert.Empty(t, tr.Timeout(now.Add(50*time.Millisecond)))

	events := tr.Timeout(now.Add(200 * time.Millisecond))
	require.Len(t, events, 1)
	assert.True(t, events[0].Release)

	_, pending := tr.NextDeadline()
	assert.False(t, pending)
}

func TestTrackerReleaseDisabled(t *testing.T) {
	r, power, up := trackerRemote("sony-tv")
	tr := NewTracker(false, 600)

	now := time.Now()
	tr.Observe(Press{Remote: r, Code: power, Value: power.Value}, now)

	// Different code: no release, just the new press.
	events := tr.Observe(Press{Remote: r, Code: up, Value: up.Value}, now.Add(time.Millisecond))
	require.Len(t, events, 1)
	assert.False(t, events[0].Release)

	// Timeout: merged state resets silently.
	assert.Empty(t, tr.Timeout(now.Add(time.Hour)))
}

func TestTrackerGapExpiredIsFreshPress(t *testing.T) {
	r, power, _ := trackerRemote("sony-tv")
	tr := NewTracker(true, 600)

	now := time.Now()
	press := Press{Remote: r, Code: power, Value: power.Value}
	tr.Observe(press, now)

	// Same code long after the window: release then repeat=0 press.
	events := tr.Observe(press, now.Add(time.Second))
	require.Len(t, events, 2)
	assert.True(t, events[0].Release)
	assert.Equal(t, uint32(0), events[1].Repeat)
}

func TestTrackerFixedWindowOverridesGap(t *testing.T) {
	r, power, _ := trackerRemote("sony-tv")
	tr := NewTracker(true, 600)
	tr.SetWindow(time.Second)

	now := time.Now()
	press := Press{Remote: r, Code: power, Value: power.Value}
	tr.Observe(press, now)

	// Well past the 90ms gap-derived window but inside the fixed one: still
	// the same held button.
	events := tr.Observe(press, now.Add(500*time.Millisecond))
	require.Len(t, events, 1)
	assert.Equal(t, uint32(1), events[0].Repeat)

	deadline, ok := tr.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(500*time.Millisecond).Add(time.Second), deadline)
}

func TestTrackerToggleFlipStartsNewSequence(t *testing.T) {
	r, power, _ := trackerRemote("rc5")
	r.ToggleBitMask = 0x800
	tr := NewTracker(true, 600)

	now := time.Now()
	tr.Observe(Press{Remote: r, Code: power, Value: power.Value}, now)

	// Same button, toggle bit flipped: the user pressed again rather than
	// holding.
	events := tr.Observe(Press{Remote: r, Code: power, Value: power.Value ^ 0x800}, now.Add(30*time.Millisecond))
	require.Len(t, events, 2)
	assert.True(t, events[0].Release)
	assert.Equal(t, uint32(0), events[1].Repeat)
}
