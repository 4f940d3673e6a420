//go:build !linux

package hal

func pinThread(int) error { return ErrNotImplemented }
