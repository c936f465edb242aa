package event

import (
	"log"
)

// A LogHook is a hook that records dispatch information somewhere.
type LogHook interface {
	Hook
}

// LogHookBase provides the common logic for all LogHooks.
type LogHookBase struct {
	*log.Logger
}

// DispatchLogger is a hook that prints one line per dispatched event.
type DispatchLogger struct {
	LogHookBase
}

// NewDispatchLogger returns a DispatchLogger writing into the given logger.
func NewDispatchLogger(logger *log.Logger) *DispatchLogger {
	h := new(DispatchLogger)
	h.Logger = logger
	return h
}

// Func writes the handler and event type names into the logger.
func (h *DispatchLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeDispatch {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	handler, ok := ctx.Domain.(*Handler)
	if ok {
		h.Printf("%s -> %s", evt.Type().Name, handler.Name())
	} else {
		h.Printf("%s", evt.Type().Name)
	}
}
