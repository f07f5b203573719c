//go:build linux

/*
Package reactor provides the serialized execution domain that all event
handlers and deferred functions run on. Everything submitted here executes
on one dedicated OS-locked thread, strictly one task at a time, in FIFO
order, which is what lets the rest of the transport reason about event
causality.
*/
package reactor

import (
	"runtime"
	"sync/atomic"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/unix"

	"github.com/tensormesh/shmloop/utils/queue"
)

type Reactor struct {
	tasks    *queue.Queue[*Task]
	wake     chan struct{}
	toWakeup int32
	closed   int32
	joined   int32
	tid      int64
	done     chan struct{}
}

func New() *Reactor {
	r := &Reactor{
		tasks: queue.New[*Task](),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Defer enqueues f for asynchronous execution on the reactor thread. It
// never blocks and reports nothing back; if f fails the process dies.
// Tasks deferred after Close may be dropped without running.
func (that *Reactor) Defer(f TaskFunc, arg TaskArg) {
	task := GetTask()
	task.Go, task.Arg = f, arg
	that.tasks.Enqueue(task)
	if atomic.CompareAndSwapInt32(&that.toWakeup, 0, 1) {
		that.notify()
	}
}

// Run executes fn with reactor-ordering guarantees and blocks until it has
// completed, returning whatever fn returned. Called from the reactor thread
// itself it runs fn in place: deferring would deadlock, and immediate
// execution is safe because nothing else can run on the reactor meanwhile.
func (that *Reactor) Run(fn func() error) error {
	if that.InReactor() {
		return fn()
	}
	result := make(chan error, 1)
	that.Defer(func(TaskArg) error {
		result <- fn()
		return nil
	}, nil)
	return <-result
}

// InReactor reports whether the caller is executing on the reactor thread.
func (that *Reactor) InReactor() bool {
	return int64(unix.Gettid()) == atomic.LoadInt64(&that.tid)
}

// Close tells the reactor to exit once the pending tasks have drained.
func (that *Reactor) Close() {
	if atomic.CompareAndSwapInt32(&that.closed, 0, 1) {
		that.notify()
	}
}

// Join waits for the reactor thread to exit.
func (that *Reactor) Join() {
	atomic.StoreInt32(&that.joined, 1)
	<-that.done
}

func (that *Reactor) Joined() bool {
	return atomic.LoadInt32(&that.joined) == 1
}

func (that *Reactor) notify() {
	select {
	case that.wake <- struct{}{}:
	default:
	}
}

func (that *Reactor) runTask(task *Task) {
	err := task.Go(task.Arg)
	PutTask(task)
	if err != nil {
		// The reactor is a trust boundary: a failed deferred function
		// leaves it in a state no future ordering can be built on.
		logger.Errorf("fatal error in deferred function: %v", err)
		panic(err)
	}
}

func (that *Reactor) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	atomic.StoreInt64(&that.tid, int64(unix.Gettid()))
	defer close(that.done)

	for {
		for {
			task, ok := that.tasks.Dequeue()
			if !ok {
				break
			}
			that.runTask(task)
		}
		if atomic.LoadInt32(&that.closed) == 1 && that.tasks.IsEmpty() {
			return
		}
		atomic.StoreInt32(&that.toWakeup, 0)
		if !that.tasks.IsEmpty() {
			atomic.StoreInt32(&that.toWakeup, 1)
			continue
		}
		<-that.wake
	}
}
