package earnings

import (
	"math"
	"sync"
	"time"
)

// Accrue computes the amount earned after elapsed time at the given
// per-minute rate. It is a pure function of elapsed wall-clock time, so
// repeated recomputation is always monotonically non-decreasing while a
// session runs.
func Accrue(elapsed time.Duration, ratePerMinute float64) float64 {
	if elapsed < 0 {
		return 0
	}
	return elapsed.Seconds() / 60 * ratePerMinute
}

// Progress reports how far the accrued amount is toward the projected payout,
// clamped to 1.
func Progress(amount, ratePerMinute, estimatedMinutes float64) float64 {
	projected := ratePerMinute * estimatedMinutes
	if projected <= 0 {
		return 0
	}
	return math.Min(amount/projected, 1.0)
}

// DefaultTickInterval is how often the tracker recomputes the live amount.
const DefaultTickInterval = 100 * time.Millisecond

// Tracker presents a continuously increasing monetary figure for one running
// session. No state is carried between ticks; every recomputation derives
// from the start time and the rate alone.
type Tracker struct {
	rate      float64
	estimated float64
	interval  time.Duration
	onTick    func(amount float64)
	now       func() time.Time

	mu          sync.Mutex
	start       time.Time
	stopCh      chan struct{}
	stopped     bool
	finalAmount float64
	finalSecs   int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTickInterval overrides the recomputation interval.
func WithTickInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.interval = d }
}

// WithTickFunc registers a callback invoked with the recomputed amount on
// every tick.
func WithTickFunc(fn func(amount float64)) TrackerOption {
	return func(t *Tracker) { t.onTick = fn }
}

func withClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker constructs a tracker for the given per-minute rate and estimated
// session length in minutes.
func NewTracker(ratePerMinute, estimatedMinutes float64, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		rate:      ratePerMinute,
		estimated: estimatedMinutes,
		interval:  DefaultTickInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start records the session start and begins periodic recomputation.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.stopCh != nil {
		t.mu.Unlock()
		return
	}
	t.start = t.now()
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if t.onTick != nil {
					t.onTick(t.Amount())
				}
			}
		}
	}()
}

// Amount returns the accrued amount at this instant.
func (t *Tracker) Amount() float64 {
	t.mu.Lock()
	start := t.start
	t.mu.Unlock()
	if start.IsZero() {
		return 0
	}
	return Accrue(t.now().Sub(start), t.rate)
}

// Progress reports advancement toward the projected payout, in [0, 1].
func (t *Tracker) Progress() float64 {
	return Progress(t.Amount(), t.rate, t.estimated)
}

// End stops the ticker and returns the authoritative final amount together
// with the session duration floored to whole seconds. Calling End again
// returns the same values.
func (t *Tracker) End() (amount float64, durationSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return t.finalAmount, t.finalSecs
	}
	t.stopped = true
	if t.stopCh != nil {
		close(t.stopCh)
	}
	if !t.start.IsZero() {
		elapsed := t.now().Sub(t.start)
		t.finalAmount = Accrue(elapsed, t.rate)
		t.finalSecs = int(elapsed.Seconds())
	}
	return t.finalAmount, t.finalSecs
}
