package googleplay

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
)

// Request codes correlate a launched purchase flow with its result. They come
// from a process wide counter with a random starting point, so two vendors, or
// a vendor and unrelated flows the host started, are unlikely to collide.
var requestCodes = newRequestCodeCounter()

func newRequestCodeCounter() *atomic.Int64 {
	var counter atomic.Int64
	counter.Store(int64(rand.Int32N(1 << 30)))
	return &counter
}

func nextRequestCode() int {
	return int(requestCodes.Add(1) & math.MaxInt32)
}
