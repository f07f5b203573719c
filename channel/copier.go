//go:build linux

/*
Package channel contains the host-staging copier used to move payloads
between CPU memory and device memory. Copies run on a worker pool in
bounded chunks through a staging buffer; each completion is deferred onto
the event loop, so observers see copy completions in the same total order
as every other loop event.
*/
package channel

import (
	"fmt"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/panjf2000/gnet/v2/pkg/buffer/elastic"

	"github.com/tensormesh/shmloop/buffer"
	"github.com/tensormesh/shmloop/loop"
	"github.com/tensormesh/shmloop/reactor"
	"github.com/tensormesh/shmloop/utils/errs"
)

const DefaultChunkSize = 64 << 10

// CopyFn moves one staged chunk into the destination device region. It is
// supplied by the device backend, e.g. a cudaMemcpyAsync binding that
// enqueues on dst.Stream.
type CopyFn func(dst buffer.DeviceBuffer, src []byte) error

type Copier struct {
	loop      *loop.Loop
	pool      *ants.Pool
	chunkSize int
	closed    int32
}

func NewCopier(l *loop.Loop, workers, chunkSize int) (c *Copier, err error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	c = &Copier{loop: l, chunkSize: chunkSize}
	c.pool, err = ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Submit schedules an asynchronous copy of src into dst. callback runs on
// the event loop once the copy has finished, with the copy's error if any.
func (that *Copier) Submit(src buffer.CPUBuffer, dst buffer.DeviceBuffer, copyFn CopyFn, callback func(err error)) error {
	if atomic.LoadInt32(&that.closed) == 1 {
		return errs.ErrCopierShutdown
	}
	if len(src.Data) == 0 {
		return errs.ErrEmptySource
	}
	if dst.Length < len(src.Data) {
		return fmt.Errorf("destination too small: %d < %d", dst.Length, len(src.Data))
	}
	return that.pool.Submit(func() {
		err := that.copyChunks(src, dst, copyFn)
		that.loop.Defer(func(reactor.TaskArg) error {
			callback(err)
			return nil
		}, nil)
	})
}

func (that *Copier) copyChunks(src buffer.CPUBuffer, dst buffer.DeviceBuffer, copyFn CopyFn) error {
	staging, err := elastic.New(that.chunkSize)
	if err != nil {
		return err
	}
	defer staging.Release()

	data := src.Data
	off := 0
	for len(data) > 0 {
		n := that.chunkSize
		if n > len(data) {
			n = len(data)
		}
		if _, err = staging.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]

		staged := 0
		for _, chunk := range staging.Peek(-1) {
			if err = copyFn(dst.Slice(off, len(chunk)), chunk); err != nil {
				return err
			}
			off += len(chunk)
			staged += len(chunk)
		}
		staging.Discard(staged)
	}
	return nil
}

// Close stops accepting new copies and releases the worker pool. In-flight
// copies finish and still deliver their callbacks through the loop.
func (that *Copier) Close() {
	if atomic.CompareAndSwapInt32(&that.closed, 0, 1) {
		that.pool.Release()
	}
}
