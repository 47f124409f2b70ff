//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// restrict sets no_new_privs so neither xin nor the layout tool can gain
// privileges through setuid binaries. The promise set has no Linux
// equivalent and is ignored.
//
// no_new_privs is a per-thread attribute. It is applied to every thread of
// the process; binaries built with cgo only get it on the calling thread.
func restrict(string) error {
	_, _, errno := syscall.AllThreadsSyscall(syscall.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0)
	switch {
	case errno == 0:
		return nil
	case !errors.Is(errno, syscall.ENOTSUP):
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", errno)
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	return nil
}
