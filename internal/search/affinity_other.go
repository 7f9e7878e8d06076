//go:build !linux

package search

import "runtime"

// pinToCore locks the calling goroutine to its OS thread. CPU affinity is not
// available on this platform.
func pinToCore(core int) error {
	runtime.LockOSThread()
	return nil
}
