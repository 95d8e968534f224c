package watchdog

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// socketPair creates a connected pair of AF_UNIX/SOCK_STREAM descriptors,
// wrapped as *os.File so one half can travel to a child process via
// exec.Cmd.ExtraFiles while the other is kept locally. Grounded on the
// os/exec + ExtraFiles inter-process pipe pattern used to hand a tenant
// process its control socket (see the SnellerInc tenant-manager example
// in the retrieval pack for the inherited-fd shape this follows).
func socketPair() (local, remote *os.File, err error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("watchdog: socketpair: %w", err)
	}
	return os.NewFile(uintptr(fds[0]), "qserver-ipc"), os.NewFile(uintptr(fds[1]), "qserver-ipc"), nil
}

// fileConn wraps f as a net.Conn and closes qserver's original reference
// to f (net.FileConn duplicates the descriptor internally, so the
// original must be closed to avoid leaking it).
func fileConn(f *os.File) (net.Conn, error) {
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("watchdog: wrap pipe fd: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("watchdog: close original pipe fd: %w", err)
	}
	return conn, nil
}
