// Package clockcheck measures host clock offset against an NTP pool.
// A database brought up right after boot can see a clock still being
// stepped; a large offset is worth a line in the trail before startup.
package clockcheck

import (
	"context"
	"time"

	"github.com/beevik/ntp"
)

const queryTimeout = 3 * time.Second

// Checker queries a single NTP pool host.
type Checker struct {
	Pool string
}

// Check returns the measured clock offset. The query is a single UDP
// exchange with its own short timeout; ctx is accepted for the port
// contract but the exchange is not cancellable mid-flight.
func (c *Checker) Check(_ context.Context) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(c.Pool, ntp.QueryOptions{Timeout: queryTimeout})
	if err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}
