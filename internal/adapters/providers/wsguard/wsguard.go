// Package wsguard tracks the process-wide count of open streaming
// subscriptions.
package wsguard

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MaxWebsocket is the hard cap of concurrent subscriptions. Exceeding it
// is a programming error: the supervisor recycles subscriptions one at a
// time and never holds more than two during the handover.
const MaxWebsocket = 2

var websocketTotal atomic.Int32

// Acquire registers a subscription and returns its release. Release is
// idempotent: the slot frees exactly once.
func Acquire() func() {
	if n := websocketTotal.Add(1); n > MaxWebsocket {
		panic(fmt.Sprintf("websocket overflow: %d connections open, max %d", n, MaxWebsocket))
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			websocketTotal.Add(-1)
		})
	}
}
