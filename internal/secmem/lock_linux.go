//go:build linux

package secmem

import "golang.org/x/sys/unix"

// lock keeps the pages holding b out of swap. Failure (RLIMIT_MEMLOCK) is tolerated.
func lock(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

func unlock(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
