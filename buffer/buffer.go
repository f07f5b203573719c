/*
Package buffer defines the payload location descriptors passed around the
transport. They are plain value objects: the event loop and the channels
never interpret their contents, they only describe where bytes live for
asynchronous copy operations.
*/
package buffer

import "unsafe"

type Device int

const (
	DeviceCPU Device = iota
	DeviceCUDA
)

func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceCUDA:
		return "cuda"
	default:
		return "unknown"
	}
}

// StreamHandle identifies the execution stream a device copy must be
// ordered on. Opaque to this package.
type StreamHandle uintptr

type CPUBuffer struct {
	Data []byte
}

// DeviceBuffer describes a region of device memory plus the stream any
// asynchronous copy touching it must be enqueued on.
type DeviceBuffer struct {
	Ptr    unsafe.Pointer
	Length int
	Stream StreamHandle
}

// Slice narrows the buffer to length bytes starting at off. Bounds are the
// caller's responsibility, same as slicing raw memory.
func (b DeviceBuffer) Slice(off, length int) DeviceBuffer {
	return DeviceBuffer{
		Ptr:    unsafe.Add(b.Ptr, off),
		Length: length,
		Stream: b.Stream,
	}
}

// Buffer is the tagged union handed across component boundaries.
type Buffer struct {
	device Device
	cpu    CPUBuffer
	cuda   DeviceBuffer
}

func CPU(data []byte) Buffer {
	return Buffer{device: DeviceCPU, cpu: CPUBuffer{Data: data}}
}

func CUDA(ptr unsafe.Pointer, length int, stream StreamHandle) Buffer {
	return Buffer{device: DeviceCUDA, cuda: DeviceBuffer{Ptr: ptr, Length: length, Stream: stream}}
}

func (b Buffer) Device() Device {
	return b.device
}

func (b Buffer) Length() int {
	switch b.device {
	case DeviceCPU:
		return len(b.cpu.Data)
	case DeviceCUDA:
		return b.cuda.Length
	default:
		return 0
	}
}

func (b Buffer) CPU() (CPUBuffer, bool) {
	return b.cpu, b.device == DeviceCPU
}

func (b Buffer) CUDA() (DeviceBuffer, bool) {
	return b.cuda, b.device == DeviceCUDA
}
