package buffer

import (
	"testing"
	"unsafe"
)

func TestCPUBuffer(t *testing.T) {
	data := []byte("payload")
	b := CPU(data)
	if b.Device() != DeviceCPU {
		t.Fatalf("Device() = %v, want %v", b.Device(), DeviceCPU)
	}
	if b.Length() != len(data) {
		t.Fatalf("Length() = %d, want %d", b.Length(), len(data))
	}
	cpu, ok := b.CPU()
	if !ok || string(cpu.Data) != "payload" {
		t.Fatalf("CPU() = %q, %v", cpu.Data, ok)
	}
	if _, ok := b.CUDA(); ok {
		t.Fatal("CUDA() reported ok for a CPU buffer")
	}
}

func TestCUDABuffer(t *testing.T) {
	backing := make([]byte, 64)
	ptr := unsafe.Pointer(&backing[0])
	b := CUDA(ptr, len(backing), StreamHandle(7))
	if b.Device() != DeviceCUDA {
		t.Fatalf("Device() = %v, want %v", b.Device(), DeviceCUDA)
	}
	if b.Length() != 64 {
		t.Fatalf("Length() = %d, want 64", b.Length())
	}
	cuda, ok := b.CUDA()
	if !ok || cuda.Ptr != ptr || cuda.Stream != 7 {
		t.Fatalf("CUDA() = %+v, %v", cuda, ok)
	}
}

func TestDeviceBufferSlice(t *testing.T) {
	backing := make([]byte, 64)
	d := DeviceBuffer{Ptr: unsafe.Pointer(&backing[0]), Length: 64, Stream: 3}
	s := d.Slice(16, 8)
	if s.Ptr != unsafe.Pointer(&backing[16]) {
		t.Fatal("Slice() did not advance the pointer")
	}
	if s.Length != 8 || s.Stream != 3 {
		t.Fatalf("Slice() = %+v", s)
	}
}

func TestDeviceString(t *testing.T) {
	if DeviceCPU.String() != "cpu" || DeviceCUDA.String() != "cuda" {
		t.Fatal("unexpected device names")
	}
	if Device(42).String() != "unknown" {
		t.Fatal("unknown device not reported")
	}
}
