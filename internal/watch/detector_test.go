package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	stateFiles   = []string{"bridge_state.usda", "state.json"}
	profileFiles = []string{"cognitive_profile.usda", "cognitive_substrate.usda"}
)

func newTestDetector(t *testing.T, dir string) (*Detector, *[]Channel) {
	t.Helper()
	d := NewDetector(zaptest.NewLogger(t), dir, stateFiles, profileFiles, 100*time.Millisecond, 50*time.Millisecond)
	settled := &[]Channel{}
	d.OnSettled = func(ch Channel) { *settled = append(*settled, ch) }
	return d, settled
}

// advance drives the detector with frame-sized deltas, the way the host
// tick loop does in production.
func advance(d *Detector, total time.Duration) {
	const step = 20 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		d.Tick(step)
	}
}

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestClampIntervals(t *testing.T) {
	t.Parallel()

	d := NewDetector(zaptest.NewLogger(t), t.TempDir(), stateFiles, profileFiles, time.Minute, time.Minute)
	assert.Equal(t, MaxPollInterval, d.PollInterval())
	assert.Equal(t, MaxDebounce, d.Debounce())

	d = NewDetector(zaptest.NewLogger(t), t.TempDir(), stateFiles, profileFiles, time.Millisecond, time.Millisecond)
	assert.Equal(t, MinPollInterval, d.PollInterval())
	assert.Equal(t, MinDebounce, d.Debounce())

	d = NewDetector(zaptest.NewLogger(t), t.TempDir(), stateFiles, profileFiles, 0, 0)
	assert.Equal(t, DefaultPollInterval, d.PollInterval())
	assert.Equal(t, DefaultDebounce, d.Debounce())
}

func TestDetectsStateFileChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, settled := newTestDetector(t, dir)

	touch(t, filepath.Join(dir, "bridge_state.usda"), time.Now())

	// One poll interval to notice the mtime, one debounce window to settle.
	advance(d, 200*time.Millisecond)

	require.Len(t, *settled, 1)
	assert.Equal(t, ChannelState, (*settled)[0])
}

func TestDebounceCollapsesBurst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, settled := newTestDetector(t, dir)
	path := filepath.Join(dir, "bridge_state.usda")

	// Two writes land between polls, as a write-then-rename producer does.
	base := time.Now()
	touch(t, path, base)
	touch(t, path, base.Add(time.Second))
	advance(d, 200*time.Millisecond)
	require.Len(t, *settled, 1, "a write burst must settle exactly once")

	// A later, independent write settles again.
	touch(t, path, base.Add(2*time.Second))
	advance(d, 200*time.Millisecond)
	assert.Len(t, *settled, 2)
}

func TestPushBurstCollapses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, settled := newTestDetector(t, dir)

	// Two push notifications inside one debounce window: the second
	// resets the timer, so only one settle fires.
	d.NotifyChanged(ChannelState)
	d.Tick(20 * time.Millisecond)
	d.NotifyChanged(ChannelState)
	d.Tick(20 * time.Millisecond)
	d.Tick(20 * time.Millisecond)
	require.Empty(t, *settled)
	d.Tick(20 * time.Millisecond)

	assert.Len(t, *settled, 1)
}

func TestProfileChannelIsIndependent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, settled := newTestDetector(t, dir)

	touch(t, filepath.Join(dir, "cognitive_substrate.usda"), time.Now())
	advance(d, 200*time.Millisecond)

	require.Len(t, *settled, 1)
	assert.Equal(t, ChannelProfile, (*settled)[0])
}

func TestStateChannelPrefersStructuredText(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, settled := newTestDetector(t, dir)

	// Only the JSON candidate exists: it must still be tracked.
	touch(t, filepath.Join(dir, "state.json"), time.Now())
	advance(d, 200*time.Millisecond)
	require.Len(t, *settled, 1)

	// Once the USDA file appears it takes over the channel.
	touch(t, filepath.Join(dir, "bridge_state.usda"), time.Now().Add(time.Second))
	advance(d, 200*time.Millisecond)
	assert.Len(t, *settled, 2)
}

func TestBothChannelsSettleIndependently(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, settled := newTestDetector(t, dir)

	now := time.Now()
	touch(t, filepath.Join(dir, "bridge_state.usda"), now)
	touch(t, filepath.Join(dir, "cognitive_profile.usda"), now)
	advance(d, 200*time.Millisecond)

	require.Len(t, *settled, 2)
	assert.ElementsMatch(t, []Channel{ChannelState, ChannelProfile}, *settled)
}

func TestNotifyChangedBypassesPolling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, settled := newTestDetector(t, dir)

	// No file on disk at all: a push notification alone must settle once
	// the debounce window elapses.
	d.NotifyChanged(ChannelProfile)
	d.Tick(20 * time.Millisecond)
	require.Empty(t, *settled)
	d.Tick(30 * time.Millisecond)

	require.Len(t, *settled, 1)
	assert.Equal(t, ChannelProfile, (*settled)[0])
}

func TestClearPendingSuppressesSettle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, settled := newTestDetector(t, dir)

	d.NotifyChanged(ChannelState)
	d.ClearPending()
	advance(d, time.Second)

	assert.Empty(t, *settled)
}
