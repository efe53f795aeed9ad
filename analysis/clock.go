package analysis

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/ntp"
)

// DefaultNTPTimeout bounds a single NTP query.
const DefaultNTPTimeout = 5 * time.Second

// Clock supplies wall-clock readings to the driver.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local system clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NTPClock is the local clock corrected by an offset measured once against
// an NTP server. Readings keep the monotonic component of time.Now, so
// differences between two readings are unaffected by the offset.
type NTPClock struct {
	Server string
	Offset time.Duration
	RTT    time.Duration
}

type ntpQueryFunc func(address string, opt ntp.QueryOptions) (*ntp.Response, error)

// NewNTPClock queries server and returns a clock corrected by its offset.
func NewNTPClock(server string, timeout time.Duration) (*NTPClock, error) {
	return newNTPClock(server, timeout, ntp.QueryWithOptions)
}

func newNTPClock(server string, timeout time.Duration, query ntpQueryFunc) (*NTPClock, error) {
	if server == "" {
		return nil, fmt.Errorf("ntp server required")
	}
	if timeout <= 0 {
		timeout = DefaultNTPTimeout
	}
	resp, err := query(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to get time from NTP server %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response from NTP server %s: %w", server, err)
	}
	slog.Debug("ntp clock synchronized", "server", server, "offset", resp.ClockOffset, "rtt", resp.RTT)
	return &NTPClock{Server: server, Offset: resp.ClockOffset, RTT: resp.RTT}, nil
}

func (c *NTPClock) Now() time.Time { return time.Now().Add(c.Offset) }

// ClockFor returns an NTP clock for server, or the system clock when server
// is empty or cannot be reached.
func ClockFor(server string, timeout time.Duration) Clock {
	if server == "" {
		return SystemClock{}
	}
	c, err := NewNTPClock(server, timeout)
	if err != nil {
		slog.Warn("falling back to system clock", "error", err)
		return SystemClock{}
	}
	return c
}
