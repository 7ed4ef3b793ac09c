// Package autosave implements the debounce/coalesce state machine that
// serializes persistence writes against a continuously changing document.
// The coalescer knows nothing about document content; the save operation is
// injected.
package autosave

import (
	"context"
	"sync"
	"time"
)

// State enumerates the coalescer states.
type State int

const (
	// StateIdle: nothing scheduled, nothing in flight.
	StateIdle State = iota
	// StateCounting: the debounce timer is running.
	StateCounting
	// StateSaving: a save is in flight and no edit arrived since it started.
	StateSaving
	// StateSavingPending: a save is in flight and an edit arrived while it
	// runs; another save is owed once it completes. This is exactly what a
	// naive in-flight boolean cannot represent.
	StateSavingPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCounting:
		return "counting"
	case StateSaving:
		return "saving"
	case StateSavingPending:
		return "saving_pending"
	default:
		return "unknown"
	}
}

// SaveFunc performs one persistence write. In-flight saves always run to
// completion; the context passed here is never cancelled by the coalescer.
type SaveFunc func(ctx context.Context) error

// Hooks receive save outcomes. OnSaved fires after every successful save
// (used to refresh derived display state such as a title); OnError fires on
// failure. Both are called without the coalescer lock held and may call back
// into the coalescer.
type Hooks struct {
	OnSaved func()
	OnError func(error)
}

// ticket identifies one save generation. done is closed after err is set,
// so waiters read err race-free.
type ticket struct {
	done chan struct{}
	err  error
}

// Coalescer debounces Schedule calls into at most one in-flight save.
type Coalescer struct {
	mu    sync.Mutex
	state State

	delay time.Duration
	save  SaveFunc
	hooks Hooks

	timer    *time.Timer
	timerGen uint64
	inflight *ticket
}

// New creates an idle coalescer around the given save operation.
func New(delay time.Duration, save SaveFunc, hooks Hooks) *Coalescer {
	return &Coalescer{
		delay: delay,
		save:  save,
		hooks: hooks,
	}
}

// State returns the current state.
func (c *Coalescer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Schedule records that the document changed and a save is owed.
//   - Idle: start the debounce timer.
//   - Counting: restart the timer (coalesce).
//   - Saving: owe a follow-up save.
//   - SavingPending: no-op, the follow-up is already owed.
func (c *Coalescer) Schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle:
		c.state = StateCounting
		c.startTimerLocked()
	case StateCounting:
		c.startTimerLocked()
	case StateSaving:
		c.state = StateSavingPending
	case StateSavingPending:
		// Already owed.
	}
}

// Cancel drops not-yet-started work: it stops the debounce timer or forgets
// an owed re-save. It can never abort a save already in flight.
func (c *Coalescer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateCounting:
		c.stopTimerLocked()
		c.state = StateIdle
	case StateSavingPending:
		c.state = StateSaving
	}
}

// Flush forces all edits scheduled before the call to be durably persisted
// before it returns. If a save it awaited fails, that error is returned;
// failures of saves it did not await are reported through Hooks only.
// Edits arriving after Flush is called are not guaranteed covered: they
// restart the debounce cycle and Flush keeps looping until it observes Idle.
func (c *Coalescer) Flush(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case StateIdle:
			c.mu.Unlock()
			return nil

		case StateCounting:
			// Skip the remaining debounce and save now.
			c.stopTimerLocked()
			t := c.beginSaveLocked()
			c.mu.Unlock()
			if err := c.await(ctx, t); err != nil {
				return err
			}

		case StateSaving, StateSavingPending:
			t := c.inflight
			c.mu.Unlock()
			if err := c.await(ctx, t); err != nil {
				return err
			}
		}
		// A pending edit may have moved the machine back to Counting;
		// loop until Idle.
	}
}

func (c *Coalescer) await(ctx context.Context, t *ticket) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startTimerLocked (re)arms the debounce timer. A generation counter guards
// against a stale fire that lost the race with a restart.
func (c *Coalescer) startTimerLocked() {
	c.stopTimerLocked()
	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(c.delay, func() {
		c.timerFired(gen)
	})
}

func (c *Coalescer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coalescer) timerFired(gen uint64) {
	c.mu.Lock()
	if c.state != StateCounting || gen != c.timerGen {
		// Restarted, cancelled or flushed before the fire won the lock.
		c.mu.Unlock()
		return
	}
	c.beginSaveLocked()
	c.mu.Unlock()
}

func (c *Coalescer) beginSaveLocked() *ticket {
	c.state = StateSaving
	t := &ticket{done: make(chan struct{})}
	c.inflight = t
	go c.runSave(t)
	return t
}

func (c *Coalescer) runSave(t *ticket) {
	err := c.save(context.Background())

	c.mu.Lock()
	t.err = err
	if c.state == StateSavingPending {
		// An edit arrived mid-save: another save is owed, restart the
		// debounce cycle. Same on failure; there is no automatic retry,
		// the pending edit simply gets its own save.
		c.state = StateCounting
		c.startTimerLocked()
	} else {
		c.state = StateIdle
	}
	close(t.done)
	c.mu.Unlock()

	if err != nil {
		if c.hooks.OnError != nil {
			c.hooks.OnError(err)
		}
	} else if c.hooks.OnSaved != nil {
		c.hooks.OnSaved()
	}
}
