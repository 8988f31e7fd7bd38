// Package util carries small helpers shared by the demo commands and tests.
package util

// Spin burns roughly n iterations of CPU work and returns a checksum of
// the loop. It stands in for real computation without touching timers or
// the OS scheduler, so runs are comparable across machines. The checksum
// is returned (and must be consumed by the caller) to keep the compiler
// from eliding the loop.
func Spin(n int) uint64 {
	var acc uint64 = 0x9e3779b97f4a7c15
	for i := 0; i < n; i++ {
		acc ^= acc << 13
		acc ^= acc >> 7
		acc ^= acc << 17
		acc += uint64(i)
	}
	return acc
}
