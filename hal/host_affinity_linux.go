//go:build linux

package hal

import "golang.org/x/sys/unix"

// pinThread binds the calling OS thread to host processor cpu.
func pinThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
