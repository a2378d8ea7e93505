//go:build linux

package bookkeeping

import "golang.org/x/sys/unix"

// currentThread identifies the calling OS thread. Interposition shims
// are entered on whatever OS thread the traced program's own thread is
// running on, not on a Go-scheduled goroutine with a stable identity,
// so the recursive lock's ownership must be OS-thread-scoped exactly
// like the pthread recursive mutex it replaces.
func currentThread() int32 {
	return int32(unix.Gettid())
}
