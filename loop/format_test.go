//go:build linux

package loop

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestFormatEvents(t *testing.T) {
	tests := []struct {
		events uint32
		want   string
	}{
		{0, "0"},
		{unix.EPOLLIN, "EPOLLIN"},
		{unix.EPOLLIN | unix.EPOLLOUT, "EPOLLIN|EPOLLOUT"},
		{unix.EPOLLERR | unix.EPOLLHUP, "EPOLLERR|EPOLLHUP"},
		{unix.EPOLLIN | unix.EPOLLRDHUP, "EPOLLIN|EPOLLRDHUP"},
		{1 << 20, "0x100000"},
		{unix.EPOLLIN | 1<<20, "EPOLLIN|0x100000"},
	}
	for _, tt := range tests {
		if got := FormatEvents(tt.events); got != tt.want {
			t.Errorf("FormatEvents(%#x) = %q, want %q", tt.events, got, tt.want)
		}
	}
}
