//go:build linux

/*
Package sys wraps the epoll(7) and eventfd(2) syscalls used by the event
loop. Registrations carry a 64-bit record tag packed into the epoll event
payload, so that epoll_wait returns the tag installed by the most recent
epoll_ctl for each descriptor.
*/
package sys

import (
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ReadEvents      = unix.EPOLLPRI | unix.EPOLLIN
	WriteEvents     = unix.EPOLLOUT
	ReadWriteEvents = ReadEvents | WriteEvents
	ErrorEvents     = unix.EPOLLERR | unix.EPOLLHUP
)

var (
	u uint64 = 1
	b        = (*(*[8]byte)(unsafe.Pointer(&u)))[:]
)

var ePool = &sync.Pool{New: func() any {
	return &unix.EpollEvent{}
}}

// CreatePoll returns an epoll instance plus the eventfd used to interrupt
// a blocked epoll_wait. The caller is responsible for registering the
// eventfd with a tag of its choosing.
func CreatePoll() (pollFd, wakeFd int, err error) {
	pollFd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		err = os.NewSyscallError("epoll_create1", err)
		return
	}
	wakeFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(pollFd)
		err = os.NewSyscallError("eventfd", err)
		return
	}
	return
}

// Eventfd is exposed for callers that need an auxiliary notification
// descriptor of their own.
func Eventfd() (fd int, err error) {
	fd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	return fd, os.NewSyscallError("eventfd", err)
}

func CloseFd(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}

// Trigger makes a pending or future epoll_wait on the poll fd return by
// bumping the eventfd counter. EAGAIN means the counter is already
// saturated, which is as good as a fresh tick.
func Trigger(wakeFd int) (err error) {
	if _, err = unix.Write(wakeFd, b); err == unix.EAGAIN {
		err = nil
	}
	return os.NewSyscallError("write", err)
}

// Drain resets the eventfd counter after a wake-up has been observed.
func Drain(wakeFd int, buf []byte) {
	_, _ = unix.Read(wakeFd, buf)
}

func ctl(pollFd, op, fd int, events uint32, tag uint64) error {
	ev := ePool.Get().(*unix.EpollEvent)
	ev.Events = events
	ev.Fd = int32(tag)
	ev.Pad = int32(tag >> 32)
	err := unix.EpollCtl(pollFd, op, fd, ev)
	ePool.Put(ev)
	return err
}

func AddTagged(pollFd, fd int, events uint32, tag uint64) error {
	return os.NewSyscallError("epoll_ctl_add",
		ctl(pollFd, unix.EPOLL_CTL_ADD, fd, events, tag))
}

func ModTagged(pollFd, fd int, events uint32, tag uint64) error {
	return os.NewSyscallError("epoll_ctl_mod",
		ctl(pollFd, unix.EPOLL_CTL_MOD, fd, events, tag))
}

func Del(pollFd, fd int) error {
	return os.NewSyscallError("epoll_ctl_del",
		unix.EpollCtl(pollFd, unix.EPOLL_CTL_DEL, fd, nil))
}

// EventTag recovers the record tag packed by AddTagged/ModTagged.
func EventTag(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}

// Wait blocks until at least one registered descriptor is ready. The error
// is returned raw so callers can tell EINTR apart from real failures.
func Wait(pollFd int, events []unix.EpollEvent) (int, error) {
	return unix.EpollWait(pollFd, events, -1)
}
