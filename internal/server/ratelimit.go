package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// deviceLimiters throttles uploads per device id. Devices post batches on
// a fixed cadence, so a runaway or cloned device is the only thing that
// ever trips the limit.
type deviceLimiters struct {
	mu       sync.Mutex
	limiters map[int]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newDeviceLimiters(perSecond float64, burst int) *deviceLimiters {
	if perSecond <= 0 {
		perSecond = 20
	}
	if burst <= 0 {
		burst = int(perSecond) * 10
	}
	return &deviceLimiters{
		limiters: make(map[int]*rate.Limiter),
		rps:      rate.Limit(perSecond),
		burst:    burst,
	}
}

func (d *deviceLimiters) allow(deviceID int) bool {
	d.mu.Lock()
	lim, ok := d.limiters[deviceID]
	if !ok {
		lim = rate.NewLimiter(d.rps, d.burst)
		d.limiters[deviceID] = lim
	}
	d.mu.Unlock()
	return lim.Allow()
}
