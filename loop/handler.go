package loop

import "sync/atomic"

// EventHandler is implemented by anything that reacts to descriptor
// readiness: connections, listeners, the loop's own wake-up source. It is
// only ever invoked from the reactor thread.
type EventHandler interface {
	HandleEvents(events uint32)
}

// HandlerRef is the non-owning handle the loop keeps for a registered
// handler. The owner creates it, passes it to RegisterDescriptor, and calls
// Release when the handler goes away. The loop promotes the reference to a
// temporary owning one around each invocation, so a handler can never be
// torn down mid-call, and an already-released handler is silently skipped.
type HandlerRef struct {
	handler EventHandler
	refs    int32
}

func NewHandlerRef(h EventHandler) *HandlerRef {
	return &HandlerRef{handler: h, refs: 1}
}

// Release drops the owner's reference. After it returns the loop will no
// longer invoke the handler, even for events already in flight.
func (that *HandlerRef) Release() {
	atomic.AddInt32(&that.refs, -1)
}

// acquire promotes the weak reference, pinning the handler for the duration
// of one invocation. It fails once the owner has released.
func (that *HandlerRef) acquire() (EventHandler, bool) {
	for {
		n := atomic.LoadInt32(&that.refs)
		if n <= 0 {
			return nil, false
		}
		if atomic.CompareAndSwapInt32(&that.refs, n, n+1) {
			return that.handler, true
		}
	}
}

func (that *HandlerRef) release() {
	atomic.AddInt32(&that.refs, -1)
}
