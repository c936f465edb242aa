package datarecording

import (
	"sync"
	"time"

	"github.com/walletforge/eventcore/event"
)

// DispatchEntry is one row of the dispatch trace: a single event consumed by
// a handler's worker.
type DispatchEntry struct {
	Handler   string
	EventType string
	TimeNano  int64
}

// A DispatchRecorder is a hook that records every dispatched event into a
// DataRecorder. Attach one to each handler to trace; the same recorder can
// serve many handlers.
type DispatchRecorder struct {
	lock      sync.Mutex
	recorder  DataRecorder
	tableName string
}

// NewDispatchRecorder creates a DispatchRecorder writing into recorder.
func NewDispatchRecorder(recorder DataRecorder) *DispatchRecorder {
	r := &DispatchRecorder{
		recorder:  recorder,
		tableName: "dispatch_trace",
	}

	recorder.CreateTable(r.tableName, DispatchEntry{})

	return r
}

// Func records the event at the before-dispatch position. Dispatches from
// different handlers may arrive concurrently, hence the lock.
func (r *DispatchRecorder) Func(ctx event.HookCtx) {
	if ctx.Pos != event.HookPosBeforeDispatch {
		return
	}

	evt, ok := ctx.Item.(event.Event)
	if !ok {
		return
	}

	entry := DispatchEntry{
		EventType: evt.Type().Name,
		TimeNano:  time.Now().UnixNano(),
	}
	if handler, ok := ctx.Domain.(*event.Handler); ok {
		entry.Handler = handler.Name()
	}

	r.lock.Lock()
	r.recorder.InsertData(r.tableName, entry)
	r.lock.Unlock()
}
