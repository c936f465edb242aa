package event

import (
	"sync"
	"time"
)

// AlarmID identifies an armed alarm.
type AlarmID string

// AlarmIDNone is the AlarmID of a handler with no armed alarm.
const AlarmIDNone AlarmID = ""

// An AlarmCallback is invoked when an alarm's deadline elapses. It runs on
// the alarm clock's own goroutine, never on a handler's worker goroutine, and
// must not block: every armed alarm in the process shares this goroutine.
type AlarmCallback func(ctx any, expiration time.Time, clock *AlarmClock)

type alarm struct {
	id       AlarmID
	context  any
	callback AlarmCallback
	deadline time.Time
	period   time.Duration // zero for one-shot
}

// An AlarmClock schedules one-shot and periodic alarms on a single
// background goroutine. One shared instance serves the whole process so that
// handlers do not each pay for a timing goroutine; see SharedAlarmClock.
type AlarmClock struct {
	lock   sync.Mutex
	alarms map[AlarmID]*alarm

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

var sharedAlarmClockMutex sync.Mutex
var sharedAlarmClock *AlarmClock

// SharedAlarmClock returns the process-wide alarm clock, creating and
// starting it on first use.
func SharedAlarmClock() *AlarmClock {
	sharedAlarmClockMutex.Lock()
	defer sharedAlarmClockMutex.Unlock()

	if sharedAlarmClock == nil {
		sharedAlarmClock = NewAlarmClock()
	}

	return sharedAlarmClock
}

// AlarmClockCreateIfNecessary idempotently ensures the shared alarm clock's
// timing goroutine is running. Handlers call it on every Start.
func AlarmClockCreateIfNecessary() {
	SharedAlarmClock()
}

// NewAlarmClock creates a running alarm clock with no armed alarms. Code
// outside of tests normally uses SharedAlarmClock instead.
func NewAlarmClock() *AlarmClock {
	c := &AlarmClock{
		alarms: make(map[AlarmID]*alarm),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go c.run()

	return c
}

// AddAlarm arms a one-shot alarm firing callback(ctx, ...) once `in` from
// now. It returns the alarm's unique ID.
func (c *AlarmClock) AddAlarm(
	ctx any,
	callback AlarmCallback,
	in time.Duration,
) AlarmID {
	return c.add(ctx, callback, in, 0)
}

// AddAlarmPeriodic arms an alarm firing callback(ctx, ...) every period,
// starting one period from now. The alarm reschedules itself until removed.
func (c *AlarmClock) AddAlarmPeriodic(
	ctx any,
	callback AlarmCallback,
	period time.Duration,
) AlarmID {
	return c.add(ctx, callback, period, period)
}

func (c *AlarmClock) add(
	ctx any,
	callback AlarmCallback,
	in, period time.Duration,
) AlarmID {
	a := &alarm{
		id:       AlarmID(GetIDGenerator().Generate()),
		context:  ctx,
		callback: callback,
		deadline: time.Now().Add(in),
		period:   period,
	}

	c.lock.Lock()
	c.alarms[a.id] = a
	c.lock.Unlock()

	c.kick()

	return a.id
}

// RemoveAlarm disarms the alarm. Removing an unknown or already-removed ID is
// a no-op. A firing already in flight when RemoveAlarm is called may still
// complete.
func (c *AlarmClock) RemoveAlarm(id AlarmID) {
	c.lock.Lock()
	delete(c.alarms, id)
	c.lock.Unlock()

	c.kick()
}

// Stop terminates the timing goroutine. Armed alarms stop firing. Only tests
// with a private clock call this; the shared clock lives for the process.
func (c *AlarmClock) Stop() {
	close(c.quit)
	<-c.done
}

func (c *AlarmClock) kick() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *AlarmClock) run() {
	defer close(c.done)

	for {
		var timerC <-chan time.Time
		var timer *time.Timer

		if next, ok := c.nextDeadline(); ok {
			timer = time.NewTimer(time.Until(next))
			timerC = timer.C
		}

		select {
		case <-c.quit:
			if timer != nil {
				timer.Stop()
			}
			return

		case <-c.wake:
			// An alarm was armed or removed; recompute the deadline.
			if timer != nil {
				timer.Stop()
			}

		case now := <-timerC:
			c.fireDue(now)
		}
	}
}

func (c *AlarmClock) nextDeadline() (time.Time, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var next time.Time
	found := false
	for _, a := range c.alarms {
		if !found || a.deadline.Before(next) {
			next = a.deadline
			found = true
		}
	}

	return next, found
}

// fireDue invokes the callbacks of every alarm whose deadline has passed.
// Callbacks run outside the clock's lock so they may arm or remove alarms.
func (c *AlarmClock) fireDue(now time.Time) {
	c.lock.Lock()
	var due []*alarm
	for _, a := range c.alarms {
		if !a.deadline.After(now) {
			due = append(due, a)
			if a.period > 0 {
				a.deadline = a.deadline.Add(a.period)
			} else {
				delete(c.alarms, a.id)
			}
		}
	}
	c.lock.Unlock()

	for _, a := range due {
		a.callback(a.context, now, c)
	}
}
