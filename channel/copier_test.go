//go:build linux

package channel

import (
	"bytes"
	"errors"
	"testing"
	"time"
	"unsafe"

	"github.com/tensormesh/shmloop/buffer"
	"github.com/tensormesh/shmloop/loop"
	"github.com/tensormesh/shmloop/utils/errs"
)

// memCopy stands in for a device copy binding in tests.
func memCopy(dst buffer.DeviceBuffer, src []byte) error {
	copy(unsafe.Slice((*byte)(dst.Ptr), dst.Length), src)
	return nil
}

func newTestLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l, err := loop.New()
	if err != nil {
		t.Fatalf("loop.New() error: %v", err)
	}
	t.Cleanup(func() {
		l.Close()
		l.Join()
	})
	return l
}

func TestCopyDeliversAllBytes(t *testing.T) {
	l := newTestLoop(t)
	c, err := NewCopier(l, 2, 16) // force multiple chunks
	if err != nil {
		t.Fatalf("NewCopier: %v", err)
	}
	defer c.Close()

	src := bytes.Repeat([]byte("0123456789abcdef"), 9)
	src = append(src, []byte("tail")...) // not a multiple of the chunk size
	dst := make([]byte, len(src))

	result := make(chan error, 1)
	onLoop := make(chan bool, 1)
	err = c.Submit(
		buffer.CPUBuffer{Data: src},
		buffer.DeviceBuffer{Ptr: unsafe.Pointer(&dst[0]), Length: len(dst)},
		memCopy,
		func(err error) {
			onLoop <- l.InLoop()
			result <- err
		},
	)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("copy failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("copy never completed")
	}
	if !<-onLoop {
		t.Fatal("completion callback did not run on the loop")
	}
	if !bytes.Equal(dst, src) {
		t.Fatal("destination differs from source")
	}
}

func TestCopyErrorReachesCallback(t *testing.T) {
	l := newTestLoop(t)
	c, err := NewCopier(l, 1, 0)
	if err != nil {
		t.Fatalf("NewCopier: %v", err)
	}
	defer c.Close()

	want := errors.New("device gone")
	dst := make([]byte, 8)
	result := make(chan error, 1)
	err = c.Submit(
		buffer.CPUBuffer{Data: []byte("x")},
		buffer.DeviceBuffer{Ptr: unsafe.Pointer(&dst[0]), Length: len(dst)},
		func(buffer.DeviceBuffer, []byte) error { return want },
		func(err error) { result <- err },
	)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case err := <-result:
		if err != want {
			t.Fatalf("callback error = %v, want %v", err, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestSubmitValidation(t *testing.T) {
	l := newTestLoop(t)
	c, err := NewCopier(l, 1, 0)
	if err != nil {
		t.Fatalf("NewCopier: %v", err)
	}

	dst := make([]byte, 4)
	dev := buffer.DeviceBuffer{Ptr: unsafe.Pointer(&dst[0]), Length: len(dst)}
	noop := func(error) {}

	if err := c.Submit(buffer.CPUBuffer{}, dev, memCopy, noop); err != errs.ErrEmptySource {
		t.Fatalf("empty source: err = %v, want %v", err, errs.ErrEmptySource)
	}
	if err := c.Submit(buffer.CPUBuffer{Data: make([]byte, 8)}, dev, memCopy, noop); err == nil {
		t.Fatal("oversized source accepted")
	}

	c.Close()
	if err := c.Submit(buffer.CPUBuffer{Data: []byte("x")}, dev, memCopy, noop); err != errs.ErrCopierShutdown {
		t.Fatalf("closed copier: err = %v, want %v", err, errs.ErrCopierShutdown)
	}
}
