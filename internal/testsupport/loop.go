package testsupport

import (
	"testing"
	"time"

	"voxbridge/internal/dispatch"
)

// Pump drains loop until cond reports true, failing the test after five
// seconds. It stands in for Loop.Run so tests observe state between ticks.
func Pump(t testing.TB, loop *dispatch.Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		loop.Drain()
		time.Sleep(2 * time.Millisecond)
	}
}
