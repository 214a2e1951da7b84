//go:build !linux

package gpiomem

import "errors"

// OpenDevice is not available on non-Linux platforms.
func OpenDevice(path string) (*RegisterFile, error) {
	return nil, errors.New("gpiomem: not supported on this platform (requires Linux)")
}
