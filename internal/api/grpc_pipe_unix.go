//go:build !windows

package api

import (
	"fmt"
	"net"
)

// listenPipe доступен только на Windows; на остальных платформах
// управляющий канал слушает unix-сокет или TCP
func listenPipe(addr string) (net.Listener, error) {
	return nil, fmt.Errorf("npipe transport is Windows-only, use unix: or host:port (got %s)", addr)
}
