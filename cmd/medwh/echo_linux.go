//go:build linux

package main

import "golang.org/x/sys/unix"

// disableEcho turns off terminal echo on fd and returns a restore func.
func disableEcho(fd uintptr) (func(), error) {
	term, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	if err != nil {
		return nil, err
	}
	saved := *term
	term.Lflag &^= unix.ECHO
	if err := unix.IoctlSetTermios(int(fd), unix.TCSETS, term); err != nil {
		return nil, err
	}
	return func() { _ = unix.IoctlSetTermios(int(fd), unix.TCSETS, &saved) }, nil
}
