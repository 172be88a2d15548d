// Package sched implements the simulator's virtual-time scheduler: a
// monotonic clock plus a min-heap of pending callbacks. It replaces the
// teacher's real time.Ticker/time.Sleep-driven goroutines (stack.go,
// device/simulator.go) with a single-threaded, cooperative, explicitly
// stepped clock, per the "global singleton scheduler -> explicit value"
// redesign note.
package sched

import (
	"container/heap"
	"time"
)

// Time is virtual time, expressed in scheduler ticks. Protocol code that
// wants "seconds" uses Scheduler.Delay to convert.
type Time int64

// TicksPerSecond is the resolution of the virtual clock: one second of
// virtual time is this many ticks. Kept coarse enough that every timer in
// the spec (hello=2s, forward_delay=15s, ...) lands on an exact tick.
const TicksPerSecond = 1000

// Speed controls the real-time-to-virtual-time mapping used by Run/Pump.
type Speed int

const (
	Paused Speed = iota
	Normal
	Fast
	Faster
)

// speedFactor is how many virtual ticks one real 10ms pump step advances,
// at each speed.
var speedFactor = map[Speed]Time{
	Paused: 0,
	Normal: 10,
	Fast:   50,
	Faster: 250,
}

// Subscription is a cancellation handle for a once/repeat callback.
type Subscription struct {
	entry *pendingEntry
}

// Cancel marks the subscription inactive. Idempotent; safe to call from
// inside another callback, including the callback being cancelled.
func (s *Subscription) Cancel() {
	if s == nil || s.entry == nil {
		return
	}
	s.entry.active = false
}

type pendingEntry struct {
	fireAt   Time
	period   Time // 0 for a one-shot
	seq      uint64
	active   bool
	callback func()
	index    int // heap index, maintained by container/heap
}

type pendingHeap []*pendingEntry

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq // ties broken by insertion order
}
func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *pendingHeap) Push(x interface{}) {
	e := x.(*pendingEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is the single-threaded virtual clock. All mutation happens from
// the goroutine that calls Step/Run/Pump; callbacks may schedule and cancel
// subscriptions reentrantly but must not call the scheduler from another
// goroutine concurrently with a Step.
type Scheduler struct {
	now     Time
	pending pendingHeap
	nextSeq uint64
	speed   Speed
}

// New creates a scheduler at virtual time zero, paused.
func New() *Scheduler {
	return &Scheduler{speed: Paused}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() Time { return s.now }

// Delay converts a duration in virtual seconds (may be fractional) to a
// Time offset.
func (s *Scheduler) Delay(seconds float64) Time {
	return Time(seconds * float64(TicksPerSecond))
}

// Once schedules cb to fire once after delay virtual-time units.
func (s *Scheduler) Once(delay Time, cb func()) *Subscription {
	e := &pendingEntry{
		fireAt:   s.now + delay,
		period:   0,
		seq:      s.nextSeq,
		active:   true,
		callback: cb,
	}
	s.nextSeq++
	heap.Push(&s.pending, e)
	return &Subscription{entry: e}
}

// Repeat schedules cb to fire every period virtual-time units until
// cancelled. The first fire is at now+period.
func (s *Scheduler) Repeat(period Time, cb func()) *Subscription {
	e := &pendingEntry{
		fireAt:   s.now + period,
		period:   period,
		seq:      s.nextSeq,
		active:   true,
		callback: cb,
	}
	s.nextSeq++
	heap.Push(&s.pending, e)
	return &Subscription{entry: e}
}

// SetSpeed changes the real-time-to-virtual-time mapping used by Pump.
func (s *Scheduler) SetSpeed(speed Speed) { s.speed = speed }

// Speed returns the current speed setting.
func (s *Scheduler) Speed() Speed { return s.speed }

// Advance steps the virtual clock forward by delta ticks, firing every
// pending callback whose fire time is at or before newNow (including
// zero-delay entries due at oldNow) in strict fire_at/insertion order. now is held fixed for the duration of each
// individual callback (no callback observes a partially-advanced clock).
func (s *Scheduler) Advance(delta Time) {
	target := s.now + delta
	for s.pending.Len() > 0 && s.pending[0].fireAt <= target {
		e := heap.Pop(&s.pending).(*pendingEntry)
		if !e.active {
			continue
		}
		s.now = e.fireAt
		if e.period > 0 {
			e.fireAt = e.fireAt + e.period
			e.seq = s.nextSeq
			s.nextSeq++
			heap.Push(&s.pending, e)
		}
		e.callback()
	}
	if s.now < target {
		s.now = target
	}
}

// Pump advances the virtual clock to match one step of wall-clock time,
// scaled by the current speed. Intended to be called from an external
// embedder's own loop (a UI frame tick, a CLI ticker); it is the only place
// real time.Duration enters the scheduler.
func (s *Scheduler) Pump(wallElapsed time.Duration) {
	if s.speed == Paused {
		return
	}
	factor := speedFactor[s.speed]
	ticks := Time(wallElapsed.Seconds() * float64(TicksPerSecond) * float64(factor) / 10.0)
	if ticks > 0 {
		s.Advance(ticks)
	}
}

// Reset clears all pending subscriptions and resets the clock to zero.
// Subscriptions created before Reset are the caller's responsibility to
// have already cancelled; Reset does not call their callbacks.
func (s *Scheduler) Reset() {
	s.now = 0
	s.pending = nil
	s.nextSeq = 0
}

// PendingCount reports the number of active+inactive entries still in the
// heap; useful for tests asserting cancellation actually drops a timer
// rather than merely disabling it.
func (s *Scheduler) PendingCount() int { return s.pending.Len() }
