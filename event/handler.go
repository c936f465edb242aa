package event

import (
	"log"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// A Handler owns one event queue and one worker goroutine. It is the unit of
// serialized dispatch: every event signaled to the handler, including
// alarm-driven timeout events, is consumed by the single worker, one
// dispatcher call at a time.
//
// A handler is created stopped. Start and Stop may be called repeatedly;
// Destroy requires the handler to be stopped and is terminal.
type Handler struct {
	HookableBase

	name  string
	types []*EventType

	queue *Queue

	// The handler's built-in timeout event type. Its dispatcher stays nil
	// until SetTimeoutDispatcher installs one.
	timeoutType    EventType
	timeoutContext any
	timeoutPeriod  time.Duration
	timeoutAlarmID AlarmID

	// lock guards the worker identity and the timeout registration. It is
	// never held across a dispatcher call.
	lock       sync.Mutex
	workerExit *sync.Cond
	running    bool
	workerID   int64
	destroyed  bool

	// Optional, externally owned. Held for the full duration of every
	// dispatch when non-nil.
	dispatchLock sync.Locker
}

// NewHandler creates a stopped handler that accepts the given event types.
// If dispatchLock is non-nil, the worker holds it around every dispatcher
// call; this is how a backend serializes dispatch against its own state.
func NewHandler(
	name string,
	types []*EventType,
	dispatchLock sync.Locker,
) *Handler {
	h := &Handler{
		name:         name,
		types:        types,
		queue:        NewQueue(),
		dispatchLock: dispatchLock,
	}
	h.timeoutType = EventType{Name: TimeoutEventName}
	h.workerExit = sync.NewCond(&h.lock)

	return h
}

// Name returns the handler's name.
func (h *Handler) Name() string {
	return h.name
}

// Types returns the event types registered at construction. The returned
// slice must not be modified.
func (h *Handler) Types() []*EventType {
	return h.types
}

// QueueLen returns the number of signaled, not yet dispatched events.
func (h *Handler) QueueLen() int {
	return h.queue.Len()
}

// SetTimeoutDispatcher registers a timeout dispatcher with its period and an
// opaque context, delivered verbatim in every TimeoutEvent. It must be called
// before Start to take effect for that run; it does not arm an alarm on a
// handler that is already running. Calling it again while stopped replaces
// the previous registration for the next run.
func (h *Handler) SetTimeoutDispatcher(
	period time.Duration,
	dispatcher Dispatcher,
	context any,
) {
	h.lock.Lock()
	h.timeoutPeriod = period
	h.timeoutContext = context
	h.timeoutType.Dispatcher = dispatcher
	h.lock.Unlock()
}

// Start spawns the worker goroutine and, if a timeout dispatcher is
// registered, arms a periodic alarm with the shared alarm clock. Events
// queued while stopped are dispatched in order once the worker runs. Start on
// a running handler is a no-op.
func (h *Handler) Start() {
	AlarmClockCreateIfNecessary()

	h.lock.Lock()
	defer h.lock.Unlock()

	if h.destroyed {
		log.Panicf("event handler %s: start after destroy", h.name)
	}

	if h.running {
		return
	}

	if h.timeoutType.Dispatcher != nil {
		h.timeoutAlarmID = SharedAlarmClock().AddAlarmPeriodic(
			h, timeoutAlarmCallback, h.timeoutPeriod)
	}

	h.running = true
	go h.workerLoop()

	// Holding lock here keeps the worker from dispatching before Start's
	// bookkeeping is complete; the worker's first action is to record its
	// identity under the same lock.
}

// timeoutAlarmCallback runs on the alarm clock's goroutine. It synthesizes a
// timeout event and pushes it out-of-band, so the firing is serialized
// through the worker like any other signal.
func timeoutAlarmCallback(ctx any, expiration time.Time, _ *AlarmClock) {
	h := ctx.(*Handler)

	h.lock.Lock()
	evt := &TimeoutEvent{
		EventBase:  MakeEventBase(&h.timeoutType),
		Context:    h.timeoutContext,
		Expiration: expiration,
	}
	h.lock.Unlock()

	h.SignalEventOOB(evt)
}

func (h *Handler) workerLoop() {
	// Record the worker's identity before the first dispatch, so that a
	// dispatcher invoked immediately after Start observes it. Start holds
	// the lock until its bookkeeping is done, which orders the two.
	h.lock.Lock()
	if h.workerID == 0 {
		h.workerID = currentGoroutineID()
	}
	h.lock.Unlock()

	for quit := false; !quit; {
		evt, status := h.queue.DequeueWait()

		switch status {
		case StatusSuccess:
			h.dispatch(evt)

		case StatusWaitAbort:
			quit = true

		case StatusWaitError:
			// Transient; just try again.

		default:
			log.Panicf("event handler %s: impossible dequeue status %d",
				h.name, status)
		}
	}

	h.lock.Lock()
	h.workerID = 0
	h.running = false
	h.workerExit.Broadcast()
	h.lock.Unlock()
}

func (h *Handler) dispatch(evt Event) {
	if h.dispatchLock != nil {
		h.dispatchLock.Lock()
		defer h.dispatchLock.Unlock()
	}

	t := evt.Type()
	if t == nil || t.Dispatcher == nil {
		log.Panicf("event handler %s: event with no dispatcher", h.name)
	}

	hookCtx := HookCtx{
		Domain: h,
		Pos:    HookPosBeforeDispatch,
		Item:   evt,
	}
	h.InvokeHook(hookCtx)

	t.Dispatcher(h, evt)

	hookCtx.Pos = HookPosAfterDispatch
	h.InvokeHook(hookCtx)
}

// Stop disarms the timeout alarm, aborts the worker's queue wait, and blocks
// until the worker has fully exited, then discards all remaining queued
// events. After Stop returns no dispatcher runs until the next Start. Stop on
// a stopped handler is a no-op.
//
// While waiting for the worker, Stop releases the internal lock. An
// in-progress dispatch that itself needs the lock (IsRunning from a
// dispatcher, say) can therefore complete, which is what lets the worker
// reach its wait point and observe the abort.
//
// An event signaled concurrently with Stop is either discarded by this stop's
// clear or survives for the next run; it is never dispatched between Stop
// returning and the next Start. Callers that need a stronger guarantee must
// quiesce their signal sources before stopping.
func (h *Handler) Stop() {
	h.lock.Lock()
	defer h.lock.Unlock()

	if !h.running {
		return
	}

	if h.timeoutAlarmID != AlarmIDNone {
		SharedAlarmClock().RemoveAlarm(h.timeoutAlarmID)
		h.timeoutAlarmID = AlarmIDNone
	}

	h.queue.WaitAbort()

	for h.running {
		h.workerExit.Wait()
	}

	h.queue.WaitAbortReset()
	h.queue.Clear()
}

// Destroy releases the handler. The handler must be stopped; destroying a
// running handler is a programming error. Destroy is terminal: the handler
// cannot be started or signaled afterwards.
func (h *Handler) Destroy() {
	h.Stop()

	h.lock.Lock()
	if h.running {
		log.Panicf("event handler %s: destroy while running", h.name)
	}
	h.queue.Clear()
	h.destroyed = true
	h.lock.Unlock()
}

// SignalEvent queues an event at the tail of the handler's queue. It never
// blocks and may be called from any goroutine, including from a dispatcher
// running on the handler's own worker.
func (h *Handler) SignalEvent(evt Event) {
	h.queue.EnqueueTail(evt)
}

// SignalEventOOB queues an event out-of-band: it is dispatched before every
// tail event queued earlier, but after earlier out-of-band events.
func (h *Handler) SignalEventOOB(evt Event) {
	h.queue.EnqueueHead(evt)
}

// Clear discards all queued, undispatched events. Intended for use while the
// handler is stopped; it does not interrupt a concurrent dequeue.
func (h *Handler) Clear() {
	h.queue.Clear()
}

// IsRunning reports whether the worker goroutine is alive. It stays true for
// the duration of a Stop call that is waiting on an in-flight dispatch.
func (h *Handler) IsRunning() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.running
}

// IsCurrentThread reports whether the calling goroutine is the handler's
// worker. Dispatchers use it to decide between acting synchronously and
// re-signaling.
func (h *Handler) IsCurrentThread() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.workerID != 0 && h.workerID == currentGoroutineID()
}

// currentGoroutineID extracts the caller's goroutine ID from the runtime
// stack header, which reads "goroutine 123 [running]:". The runtime offers no
// direct accessor; the header format has been stable since Go 1.
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		log.Panic("cannot parse goroutine ID from stack header")
	}

	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		log.Panic("cannot parse goroutine ID from stack header")
	}

	return id
}
