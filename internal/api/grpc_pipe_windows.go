//go:build windows

package api

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// listenPipe открывает именованный пайп для управляющего канала,
// дефолтный транспорт на Windows (см. startGRPCServer)
func listenPipe(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, nil)
}
