//go:build !windows

package capture

import "syscall"

// reuseAddr lets several recorders (or other listeners) share the port.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var controlErr error
	err := c.Control(func(fd uintptr) {
		controlErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return controlErr
}
