//go:build !linux

package main

import "errors"

func disableEcho(uintptr) (func(), error) {
	return nil, errors.New("echo control unsupported on this platform")
}
