package storage

import (
	"sync/atomic"
	"time"
)

var lastTimestamp int64

// nextTimestamp returns a UTC time at microsecond precision that is strictly
// greater than any previously returned value, so tasks created back to back
// still sort deterministically by creation time.
func nextTimestamp() time.Time {
	for {
		now := time.Now().UnixMicro()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return time.UnixMicro(now).UTC()
		}
	}
}
