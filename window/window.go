// Package window tracks a proposal's voting period.
package window

import (
	"math"
	"time"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

// Kind is a preset voting period length
type Kind struct {
	secs uint64
}

var (
	// Short is a 5 minute window
	Short = Kind{types.ShortWindowSecs}

	// Medium is a 30 minute window
	Medium = Kind{types.MediumWindowSecs}

	// Long is a 2 hour window
	Long = Kind{types.LongWindowSecs}
)

// Custom returns a window kind lasting secs seconds
func Custom(secs uint64) Kind {
	return Kind{secs}
}

// Seconds returns the window length
func (k Kind) Seconds() uint64 {
	return k.secs
}

// Window is a voting period. DurationSecs only grows, via Extend.
type Window struct {
	StartTime    time.Time
	DurationSecs uint64
	GraceSecs    uint64
}

// New creates a window starting at start
func New(start time.Time, kind Kind, graceSecs uint64) *Window {
	return &Window{
		StartTime:    start,
		DurationSecs: kind.secs,
		GraceSecs:    graceSecs,
	}
}

// Deadline returns the end of the voting period, excluding grace
func (w *Window) Deadline() time.Time {
	return w.StartTime.Add(time.Duration(w.DurationSecs) * time.Second)
}

// ClosesAt returns the last instant votes are accepted, including grace
func (w *Window) ClosesAt() time.Time {
	return w.StartTime.Add(time.Duration(w.DurationSecs+w.GraceSecs) * time.Second)
}

// IsOpen reports whether votes are still accepted at now
func (w *Window) IsOpen(now time.Time) bool {
	return !now.After(w.ClosesAt())
}

// TimeLeft returns whole seconds until the deadline; negative once it has passed
func (w *Window) TimeLeft(now time.Time) int64 {
	return int64(w.Deadline().Sub(now) / time.Second)
}

// ShouldExtend reports whether a vote at now is close enough to the deadline
// and to the threshold to warrant extending the window
func (w *Window) ShouldExtend(now time.Time, weight, threshold float64) bool {
	closeEnough := weight >= types.NearMissRatio*threshold
	return w.TimeLeft(now) <= types.ExtensionLeadSecs && closeEnough
}

// Extend lengthens the voting period by extraSecs, saturating at math.MaxUint64
func (w *Window) Extend(extraSecs uint64) {
	if extraSecs > math.MaxUint64-w.DurationSecs {
		w.DurationSecs = math.MaxUint64
		return
	}
	w.DurationSecs += extraSecs
}
