//go:build linux

package loop

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

var eventNames = []struct {
	bit  uint32
	name string
}{
	{unix.EPOLLIN, "EPOLLIN"},
	{unix.EPOLLOUT, "EPOLLOUT"},
	{unix.EPOLLPRI, "EPOLLPRI"},
	{unix.EPOLLERR, "EPOLLERR"},
	{unix.EPOLLHUP, "EPOLLHUP"},
	{unix.EPOLLRDHUP, "EPOLLRDHUP"},
	{unix.EPOLLONESHOT, "EPOLLONESHOT"},
	{unix.EPOLLET, "EPOLLET"},
}

// FormatEvents renders a readiness mask for logging, e.g. "EPOLLIN|EPOLLHUP".
func FormatEvents(events uint32) string {
	if events == 0 {
		return "0"
	}
	var sb strings.Builder
	rest := events
	for _, e := range eventNames {
		if rest&e.bit != 0 {
			if sb.Len() > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(e.name)
			rest &^= e.bit
		}
	}
	if rest != 0 {
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		fmt.Fprintf(&sb, "0x%x", rest)
	}
	return sb.String()
}
