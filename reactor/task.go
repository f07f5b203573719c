package reactor

import "sync"

type TaskArg interface{}

// TaskFunc is one unit of deferred work. A non-nil error is treated as a
// fatal condition: the reactor cannot keep its ordering guarantees once a
// deferred function has failed half-way.
type TaskFunc func(arg TaskArg) error

type Task struct {
	Go  TaskFunc
	Arg TaskArg
}

var taskPool = sync.Pool{
	New: func() interface{} {
		return &Task{}
	},
}

func PutTask(t *Task) {
	t.Go, t.Arg = nil, nil
	taskPool.Put(t)
}

func GetTask() *Task {
	return taskPool.Get().(*Task)
}
