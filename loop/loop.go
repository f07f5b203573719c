//go:build linux

/*
Package loop implements the epoll event loop of the shared-memory transport.

A dedicated poll goroutine blocks in epoll_wait and hands each batch of
ready events to the reactor, then waits for the batch to be consumed before
polling again. That back-and-forth guarantees that every handler invocation
is serialized against every deferred function in one total order: if a peer
first writes to a connection and then closes the socket, the reactor is
guaranteed to react to the write before it reacts to the close.

epoll_ctl may race with a concurrent epoll_wait, so when a descriptor is
closed and its numeric value reused, events already captured by the kernel
could be routed to the wrong handler. Every registration therefore mints a
fresh record id which is carried as the epoll event payload; an event whose
record no longer matches the table is stale and dropped.
*/
package loop

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/unix"

	"github.com/tensormesh/shmloop/reactor"
	"github.com/tensormesh/shmloop/sys"
	"github.com/tensormesh/shmloop/utils/errs"
)

const (
	wakeRecord   = 0 // reserved for the eventfd
	maxPollSize  = 1024
	minPollSize  = 32
	initPollSize = 128
)

type Loop struct {
	pollFd  int
	wakeFd  int
	reactor *reactor.Reactor

	mu              sync.Mutex
	fdToRecord      map[int]uint64
	recordToHandler map[uint64]*HandlerRef
	nextRecord      uint64

	closed   int32
	done     chan struct{}
	joinOnce sync.Once
	wakeBuf  []byte
}

func New() (*Loop, error) {
	pollFd, wakeFd, err := sys.CreatePoll()
	if err != nil {
		return nil, err
	}
	if err = sys.AddTagged(pollFd, wakeFd, sys.ReadEvents, wakeRecord); err != nil {
		_ = sys.CloseFd(pollFd)
		_ = sys.CloseFd(wakeFd)
		return nil, err
	}
	that := &Loop{
		pollFd:          pollFd,
		wakeFd:          wakeFd,
		reactor:         reactor.New(),
		fdToRecord:      make(map[int]uint64),
		recordToHandler: make(map[uint64]*HandlerRef),
		nextRecord:      wakeRecord + 1,
		done:            make(chan struct{}),
		wakeBuf:         make([]byte, 8),
	}
	go that.run()
	return that, nil
}

// RegisterDescriptor starts delivering readiness events for fd to the
// handler behind ref. Registering an fd that is already registered is legal
// and supersedes the previous registration: only the latest handler can be
// invoked from then on. The loop never owns the handler; the caller must
// keep it alive and release the ref when it goes away.
func (that *Loop) RegisterDescriptor(fd int, events uint32, ref *HandlerRef) error {
	if ref == nil || ref.handler == nil {
		return errs.ErrNilHandler
	}
	if atomic.LoadInt32(&that.closed) == 1 {
		return errs.ErrLoopClosed
	}
	that.mu.Lock()
	defer that.mu.Unlock()
	record := that.nextRecord
	that.nextRecord++
	old, registered := that.fdToRecord[fd]
	var err error
	if registered {
		err = sys.ModTagged(that.pollFd, fd, events, record)
	} else {
		err = sys.AddTagged(that.pollFd, fd, events, record)
	}
	if err != nil {
		return err
	}
	if registered {
		delete(that.recordToHandler, old)
	}
	that.fdToRecord[fd] = record
	that.recordToHandler[record] = ref
	return nil
}

// UnregisterDescriptor stops event delivery for fd. Once it returns, no
// readiness notification can reach the old handler through the table, even
// one the kernel has already produced: its record is gone, so the reactor
// drops it as stale. Unregistering an unknown fd is a no-op.
func (that *Loop) UnregisterDescriptor(fd int) error {
	that.mu.Lock()
	record, ok := that.fdToRecord[fd]
	if ok {
		delete(that.fdToRecord, fd)
		delete(that.recordToHandler, record)
	}
	remaining := len(that.fdToRecord)
	that.mu.Unlock()
	if !ok {
		return nil
	}
	err := sys.Del(that.pollFd, fd)
	if remaining == 0 && atomic.LoadInt32(&that.closed) == 1 {
		// Let the poll goroutine observe that it can terminate.
		_ = sys.Trigger(that.wakeFd)
	}
	return err
}

// Defer enqueues f for asynchronous execution on the reactor.
func (that *Loop) Defer(f reactor.TaskFunc, arg reactor.TaskArg) {
	that.reactor.Defer(f, arg)
}

// Run executes fn on the reactor and blocks until it has completed,
// returning fn's error to the caller. See reactor.Reactor.Run.
func (that *Loop) Run(fn func() error) error {
	return that.reactor.Run(fn)
}

// InLoop reports whether the caller is executing on the reactor thread.
func (that *Loop) InLoop() bool {
	return that.reactor.InReactor()
}

func (that *Loop) Reactor() *reactor.Reactor {
	return that.reactor
}

// Close marks the loop as closing and interrupts the poll goroutine. The
// loop only terminates once every descriptor except the wake-up eventfd has
// been unregistered by its owner. Safe to call concurrently and repeatedly.
func (that *Loop) Close() {
	if atomic.CompareAndSwapInt32(&that.closed, 0, 1) {
		_ = sys.Trigger(that.wakeFd)
	}
}

// Join waits for the poll goroutine to exit, then shuts down the reactor
// and releases the poll descriptors. Idempotent; callers must Join before
// dropping the last reference to the loop.
func (that *Loop) Join() {
	<-that.done
	that.joinOnce.Do(func() {
		that.reactor.Close()
		that.reactor.Join()
		_ = sys.CloseFd(that.pollFd)
		_ = sys.CloseFd(that.wakeFd)
	})
}

func (that *Loop) registeredCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()
	return len(that.fdToRecord)
}

func (that *Loop) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(that.done)

	size := initPollSize
	events := make([]unix.EpollEvent, size)
	for {
		n, err := sys.Wait(that.pollFd, events)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			runtime.Gosched()
			continue
		} else if err != nil {
			logger.Errorf("error occurs in epoll: %v", os.NewSyscallError("epoll_wait", err))
			return
		}

		batch := make([]unix.EpollEvent, n)
		copy(batch, events[:n])
		// One outstanding epoll_wait at a time: hand the batch to the
		// reactor and wait for it to be consumed before polling again.
		_ = that.reactor.Run(func() error {
			that.handleEvents(batch)
			return nil
		})

		if atomic.LoadInt32(&that.closed) == 1 && that.registeredCount() == 0 {
			return
		}

		if n == size && size < maxPollSize {
			size <<= 1
			events = make([]unix.EpollEvent, size)
		} else if n < size>>1 && size > minPollSize {
			size >>= 1
			events = make([]unix.EpollEvent, size)
		}
	}
}

// handleEvents runs on the reactor. Records are resolved one by one under
// the table lock, never holding it across a handler call, so a handler that
// unregisters a descriptor makes the change effective for the remaining
// events of the same batch.
func (that *Loop) handleEvents(batch []unix.EpollEvent) {
	for i := range batch {
		ev := &batch[i]
		record := sys.EventTag(ev)
		if record == wakeRecord {
			sys.Drain(that.wakeFd, that.wakeBuf)
			continue
		}
		that.mu.Lock()
		ref, ok := that.recordToHandler[record]
		that.mu.Unlock()
		if !ok {
			continue // stale: superseded or unregistered
		}
		h, ok := ref.acquire()
		if !ok {
			continue // owner released the handler without unregistering
		}
		h.HandleEvents(ev.Events)
		ref.release()
	}
}
