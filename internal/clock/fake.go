package clock

import (
	"sync"
	"time"
)

// Fake is a Clock whose time moves only when Advance is called.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline order,
// with Now reporting the callback's own deadline. A callback may schedule
// further timers; those fire within the same Advance if their deadline is
// still inside the advanced window. Callbacks must not call Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	seq      uint64
	fn       func()
	ch       chan time.Time
	done     bool
}

// NewFake returns a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.add(&waiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	if d <= 0 {
		c.mu.Unlock()
		f()
		return &fakeTimer{c: c, w: &waiter{done: true}}
	}
	w := &waiter{deadline: c.now.Add(d), fn: f}
	c.add(w)
	c.mu.Unlock()
	return &fakeTimer{c: c, w: w}
}

// Advance moves the clock forward by d, firing every waiter whose deadline
// is reached.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		w := c.popDue(target)
		if w == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = w.deadline
		now := c.now
		c.mu.Unlock()

		if w.fn != nil {
			w.fn()
		} else {
			select {
			case w.ch <- now:
			default:
			}
		}
	}
}

// Pending reports how many waiters are scheduled and not yet fired or
// stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.done {
			n++
		}
	}
	return n
}

func (c *Fake) add(w *waiter) {
	c.seq++
	w.seq = c.seq
	c.waiters = append(c.waiters, w)
}

// popDue removes and returns the earliest live waiter due at or before
// target. Ties are broken by scheduling order. Callers hold c.mu.
func (c *Fake) popDue(target time.Time) *waiter {
	best := -1
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if w.done {
			continue
		}
		live = append(live, w)
	}
	c.waiters = live

	for i, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if best < 0 || w.deadline.Before(c.waiters[best].deadline) ||
			(w.deadline.Equal(c.waiters[best].deadline) && w.seq < c.waiters[best].seq) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	w := c.waiters[best]
	w.done = true
	c.waiters = append(c.waiters[:best], c.waiters[best+1:]...)
	return w
}

type fakeTimer struct {
	c *Fake
	w *waiter
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.w.done {
		return false
	}
	t.w.done = true
	return true
}
