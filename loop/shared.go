//go:build linux

package loop

import "sync"

// A single process-wide loop is shared by every connection and listener of
// the transport. It is created on first acquire and torn down (closed and
// joined) when the last holder releases it, so construction and destruction
// order stays explicit and testable.
var (
	sharedMu   sync.Mutex
	sharedLoop *Loop
	sharedRefs int
)

func AcquireShared() (*Loop, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedLoop == nil {
		l, err := New()
		if err != nil {
			return nil, err
		}
		sharedLoop = l
	}
	sharedRefs++
	return sharedLoop, nil
}

// ReleaseShared drops one reference to the shared loop. The last release
// blocks until the loop has fully terminated. Callers must have
// unregistered their descriptors beforehand, or the teardown will hang.
func ReleaseShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedRefs == 0 {
		return
	}
	sharedRefs--
	if sharedRefs == 0 {
		sharedLoop.Close()
		sharedLoop.Join()
		sharedLoop = nil
	}
}
