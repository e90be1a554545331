package monitoring

import (
	"context"
	"fmt"
	"time"
)

// Pinger is anything with a cheap liveness probe, such as the redis room
// repository.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(p Pinger, interval, timeout time.Duration) {
	h.AddCheck("redis", p.Ping, interval, timeout)
}

// AddRelayCheck fails once the relay holds more connections than limit.
func (h *HealthChecker) AddRelayCheck(stats func() (rooms, connections int), limit int, interval time.Duration) {
	h.AddCheck("relay", func(ctx context.Context) error {
		_, connections := stats()
		if limit > 0 && connections > limit {
			return fmt.Errorf("%d connections exceed limit %d", connections, limit)
		}
		return nil
	}, interval, time.Second)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == StatusHealthy
}
