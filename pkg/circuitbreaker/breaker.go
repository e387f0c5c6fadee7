package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// Settings are the trip thresholds for one protected dependency. Channels
// with flaky providers can run looser thresholds than the broker itself.
type Settings struct {
	// MinRequests is the sample size before the ratio is considered.
	MinRequests uint32
	// FailureRatio trips the breaker once MinRequests is reached.
	FailureRatio float64
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MinRequests:  3,
		FailureRatio: 0.6,
		Cooldown:     60 * time.Second,
	}
}

// New builds a breaker that trips when the rolling failure ratio crosses the
// threshold and half-opens after the cooldown.
func New(name string, s Settings) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && ratio >= s.FailureRatio
		},
	})
}
