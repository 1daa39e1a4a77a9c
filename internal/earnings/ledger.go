package earnings

import (
	"context"
	"log"
	"math"
	"sync"
	"time"
)

// Entry is one finalized session payout, recorded exactly once per completed
// session with a positive amount. The topic name is denormalized so history
// display survives topic-configuration changes.
type Entry struct {
	UserID          string  `json:"userId"`
	TopicID         string  `json:"topicId"`
	TopicName       string  `json:"topicName"`
	Amount          float64 `json:"amount"`
	DurationSeconds int     `json:"duration"`
}

// DayAmount is one day of the Monday–Sunday weekly chart.
type DayAmount struct {
	Day    string  `json:"day"`
	Amount float64 `json:"amount"`
}

// Stats aggregates a user's ledger for the dashboard.
type Stats struct {
	Total          float64     `json:"total"`
	Daily          float64     `json:"daily"`
	CompletedToday int         `json:"completedToday"`
	WeekData       []DayAmount `json:"weekData"`
}

// Ledger records finalized session earnings and aggregates them on read.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	Stats(ctx context.Context, userID string) (Stats, error)
}

// WeekDays are the chart labels, Monday first.
var WeekDays = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// StartOfWeek returns midnight of the Monday of t's week, in t's location.
func StartOfWeek(t time.Time) time.Time {
	daysBack := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		daysBack = 6
	}
	day := t.AddDate(0, 0, -daysBack)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfDay returns midnight of t's day, in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayOffset returns the calendar-day distance from the start of from's day
// to the start of t's day. Rounding absorbs the 23- and 25-hour days around
// DST transitions so entries land in their calendar bucket.
func DayOffset(from, t time.Time) int {
	t = t.In(from.Location())
	h := StartOfDay(t).Sub(StartOfDay(from)).Hours()
	return int(math.Round(h / 24))
}

// EmptyWeek returns a zero-filled Monday–Sunday chart.
func EmptyWeek() []DayAmount {
	week := make([]DayAmount, len(WeekDays))
	for i, d := range WeekDays {
		week[i] = DayAmount{Day: d}
	}
	return week
}

type pendingEntry struct {
	entry Entry
	at    time.Time
}

// FallbackLedger wraps an authoritative ledger with an on-device fallback so
// the user-visible balance stays consistent when the store is unreachable.
// Failed writes are queued with a pending-sync flag and replayed on the next
// successful write; reads merge pending entries into the authoritative
// aggregates instead of silently diverging.
type FallbackLedger struct {
	primary Ledger
	now     func() time.Time

	mu      sync.Mutex
	pending []pendingEntry
}

// NewFallbackLedger wraps the authoritative ledger.
func NewFallbackLedger(primary Ledger) *FallbackLedger {
	return &FallbackLedger{primary: primary, now: time.Now}
}

// Record writes to the authoritative ledger, queueing locally on failure.
// Persistence failures are recovered locally and never surfaced as hard
// failures to the caller.
func (f *FallbackLedger) Record(ctx context.Context, e Entry) error {
	if err := f.primary.Record(ctx, e); err != nil {
		log.Printf("earnings: ledger write failed, queueing locally: %v", err)
		f.mu.Lock()
		f.pending = append(f.pending, pendingEntry{entry: e, at: f.now()})
		f.mu.Unlock()
		return nil
	}
	f.reconcile(ctx)
	return nil
}

// reconcile replays queued entries after a successful write. Entries that
// still fail stay queued for the next attempt.
func (f *FallbackLedger) reconcile(ctx context.Context) {
	f.mu.Lock()
	queued := f.pending
	f.pending = nil
	f.mu.Unlock()
	if len(queued) == 0 {
		return
	}

	var kept []pendingEntry
	for _, p := range queued {
		if err := f.primary.Record(ctx, p.entry); err != nil {
			kept = append(kept, p)
		}
	}
	if len(kept) > 0 {
		log.Printf("earnings: %d ledger entries still pending sync", len(kept))
		f.mu.Lock()
		f.pending = append(kept, f.pending...)
		f.mu.Unlock()
	}
}

// Pending reports how many entries await reconciliation.
func (f *FallbackLedger) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Stats returns the authoritative aggregates merged with any pending local
// entries. When the authoritative store is unreachable, the on-device totals
// alone are returned so the dashboard never goes dark.
func (f *FallbackLedger) Stats(ctx context.Context, userID string) (Stats, error) {
	stats, err := f.primary.Stats(ctx, userID)
	if err != nil {
		log.Printf("earnings: ledger read failed, serving local totals: %v", err)
		stats = Stats{WeekData: EmptyWeek()}
	}
	if len(stats.WeekData) != len(WeekDays) {
		stats.WeekData = EmptyWeek()
	}

	now := f.now()
	dayStart := StartOfDay(now)
	weekStart := StartOfWeek(now)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending {
		if p.entry.UserID != userID {
			continue
		}
		stats.Total += p.entry.Amount
		if !p.at.Before(dayStart) {
			stats.Daily += p.entry.Amount
			stats.CompletedToday++
		}
		if !p.at.Before(weekStart) {
			idx := DayOffset(weekStart, p.at)
			if idx >= 0 && idx < len(stats.WeekData) {
				stats.WeekData[idx].Amount += p.entry.Amount
			}
		}
	}
	return stats, nil
}
