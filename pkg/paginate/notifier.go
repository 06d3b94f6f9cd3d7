package paginate

import (
	"sync"
	"time"

	"github.com/levipshemish/jewgo-catalog/pkg/filter"
)

// DefaultNotifyInterval is the minimum spacing between published updates.
const DefaultNotifyInterval = 500 * time.Millisecond

// Update describes the coordinator state published to URL/history
// consumers.
type Update struct {
	Query     string
	Filters   filter.Filters
	Mode      Mode
	ItemCount int
}

// Notifier throttles state-change publications: at most one callback per
// interval, last-write-wins. Intermediate states are not queued; when a
// publish lands inside the quiet period only the latest pending update is
// delivered on the trailing edge.
type Notifier struct {
	interval time.Duration
	fn       func(Update)

	mu       sync.Mutex
	pending  *Update
	timer    *time.Timer
	lastFire time.Time
}

// NewNotifier creates a Notifier invoking fn at most once per interval.
// A non-positive interval falls back to DefaultNotifyInterval.
func NewNotifier(interval time.Duration, fn func(Update)) *Notifier {
	if interval <= 0 {
		interval = DefaultNotifyInterval
	}
	return &Notifier{
		interval: interval,
		fn:       fn,
	}
}

// Publish submits an update. It fires immediately when outside the quiet
// period, otherwise replaces any pending update and schedules a single
// trailing-edge delivery.
func (n *Notifier) Publish(u Update) {
	n.mu.Lock()

	now := time.Now()
	if n.pending == nil && now.Sub(n.lastFire) >= n.interval {
		n.lastFire = now
		n.mu.Unlock()
		n.fn(u)
		return
	}

	n.pending = &u
	if n.timer == nil {
		wait := n.interval - now.Sub(n.lastFire)
		if wait < 0 {
			wait = 0
		}
		n.timer = time.AfterFunc(wait, n.flush)
	}
	n.mu.Unlock()
}

// Stop cancels any scheduled trailing-edge delivery.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.pending = nil
}

func (n *Notifier) flush() {
	n.mu.Lock()
	u := n.pending
	n.pending = nil
	n.timer = nil
	n.lastFire = time.Now()
	n.mu.Unlock()

	if u != nil {
		n.fn(*u)
	}
}
