//go:build !linux && !windows

package service

import "context"

// Install is not supported on this platform.
func Install(context.Context, Options) error {
	return ErrServiceUnsupported
}

// Uninstall is not supported on this platform.
func Uninstall(context.Context) error {
	return ErrServiceUnsupported
}
