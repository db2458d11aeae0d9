// Package watch notices producer updates to the bridge directory
// without reacting to every individual write. The producer patches
// files in place or does write-then-rename bursts, so raw mtime changes
// are debounced before the consumer is told anything settled. Polling
// mtimes (rather than trusting only push notifications) also covers the
// case where the session starts after the producer has already written.
package watch

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Channel identifies one of the two independently tracked watched-file
// categories.
type Channel int

const (
	// ChannelState tracks the conversation-state documents.
	ChannelState Channel = iota
	// ChannelProfile tracks the terminal profile export documents.
	ChannelProfile
)

func (c Channel) String() string {
	if c == ChannelProfile {
		return "profile"
	}
	return "state"
}

// Config bounds for the polling loop.
const (
	DefaultPollInterval = 500 * time.Millisecond
	MinPollInterval     = 100 * time.Millisecond
	MaxPollInterval     = 5 * time.Second

	DefaultDebounce = 50 * time.Millisecond
	MinDebounce     = 10 * time.Millisecond
	MaxDebounce     = time.Second
)

// channelState holds the per-channel tracking data: the newest
// modification time seen across the channel's candidate files, and the
// debounce timer that runs while a change is pending.
type channelState struct {
	candidates []string
	lastMod    time.Time
	pending    bool
	elapsed    time.Duration
}

// Detector polls the modification times of a fixed set of files and
// fires a callback per channel once a detected change has settled for
// the debounce window. It is driven by an external Tick and never
// spawns goroutines of its own.
type Detector struct {
	logger       *zap.Logger
	pollInterval time.Duration
	debounce     time.Duration

	pollTimer time.Duration
	channels  [2]channelState

	// OnSettled is invoked exactly once per settle event with the
	// channel that settled. Nil callbacks are ignored.
	OnSettled func(Channel)
}

// NewDetector builds a detector over the given bridge directory.
// stateFiles and profileFiles are candidate filenames in preference
// order. Out-of-range intervals are clamped.
func NewDetector(logger *zap.Logger, dir string, stateFiles, profileFiles []string, pollInterval, debounce time.Duration) *Detector {
	d := &Detector{
		logger:       logger.Named("watch"),
		pollInterval: clamp(pollInterval, MinPollInterval, MaxPollInterval, DefaultPollInterval),
		debounce:     clamp(debounce, MinDebounce, MaxDebounce, DefaultDebounce),
	}
	for _, f := range stateFiles {
		d.channels[ChannelState].candidates = append(d.channels[ChannelState].candidates, filepath.Join(dir, f))
	}
	for _, f := range profileFiles {
		d.channels[ChannelProfile].candidates = append(d.channels[ChannelProfile].candidates, filepath.Join(dir, f))
	}
	return d
}

func clamp(v, min, max, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// PollInterval reports the effective (clamped) poll interval.
func (d *Detector) PollInterval() time.Duration { return d.pollInterval }

// Debounce reports the effective (clamped) debounce window.
func (d *Detector) Debounce() time.Duration { return d.debounce }

// Tick advances the detector by delta. The poll check runs at the
// configured interval; debounce timers for pending channels advance
// every tick so settle latency does not depend on poll cadence.
func (d *Detector) Tick(delta time.Duration) {
	d.pollTimer += delta
	if d.pollTimer >= d.pollInterval {
		d.pollTimer = 0
		d.poll()
	}

	for ch := range d.channels {
		cs := &d.channels[ch]
		if !cs.pending {
			continue
		}
		cs.elapsed += delta
		if cs.elapsed >= d.debounce {
			cs.pending = false
			d.logger.Debug("Watched channel settled", zap.Stringer("channel", Channel(ch)))
			if d.OnSettled != nil {
				d.OnSettled(Channel(ch))
			}
		}
	}
}

// poll stats every candidate file and marks the owning channel pending
// when any mtime is strictly newer than the last one seen.
func (d *Detector) poll() {
	for ch := range d.channels {
		cs := &d.channels[ch]
		for _, path := range cs.candidates {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().After(cs.lastMod) {
				cs.lastMod = info.ModTime()
				cs.pending = true
				cs.elapsed = 0
			}
			if Channel(ch) == ChannelState {
				// The state channel tracks whichever candidate exists
				// first in preference order.
				break
			}
		}
	}
}

// NotifyChanged marks a channel pending directly, bypassing the poll
// check. Used by collaborators with direct filesystem-event knowledge;
// the debounce window still applies uniformly.
func (d *Detector) NotifyChanged(ch Channel) {
	cs := &d.channels[ch]
	cs.pending = true
	cs.elapsed = 0
}

// ClearPending drops any pending change without firing callbacks.
// Called on session stop.
func (d *Detector) ClearPending() {
	for ch := range d.channels {
		d.channels[ch].pending = false
		d.channels[ch].elapsed = 0
	}
}
