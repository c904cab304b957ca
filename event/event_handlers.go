package event

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EventHandler reacts to a committed event record. Handlers not interested in the record return nil.
type EventHandler func(e *EventRecord) *EventHandleResult

type EventHandleResult struct {
	Success           bool
	Message           string
	HandlerIdentifier string
}

var (
	EventHandlers      []EventHandler
	InvokeHandlersFunc = invokeHandlers
)

// invokeHandlers runs every handler on the record. A panicking handler is reported as a failure
// and the remaining handlers still run.
func invokeHandlers(record *EventRecord) []EventHandleResult {
	results := []EventHandleResult{}
	for idx, handler := range EventHandlers {
		r := safeHandle(idx, handler, record)
		if r == nil {
			continue
		}
		results = append(results, *r)

		entry := logrus.WithFields(logrus.Fields{"event": record.ID, "type": record.Type, "handler": r.HandlerIdentifier})
		if r.Success {
			entry.Debug("event handled")
		} else {
			entry.Error("handle event failed: ", r.Message)
		}
	}
	return results
}

func safeHandle(idx int, handler EventHandler, record *EventRecord) (r *EventHandleResult) {
	defer func() {
		if p := recover(); p != nil {
			r = &EventHandleResult{Success: false, Message: fmt.Sprint(p), HandlerIdentifier: fmt.Sprintf("handler-%d", idx)}
		}
	}()
	return handler(record)
}
