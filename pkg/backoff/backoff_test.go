package backoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerops/account-service/pkg/backoff"
)

func TestDelayWithJitterBounds(t *testing.T) {
	base := 200 * time.Millisecond
	max := 5 * time.Second

	assert.Equal(t, time.Duration(0), backoff.DelayWithJitter(0, base, max))
	assert.Equal(t, time.Duration(0), backoff.DelayWithJitter(-1, base, max))

	// Each attempt doubles the step; jitter stays within ±12.5% of it.
	for attempt := 1; attempt <= 6; attempt++ {
		step := base * time.Duration(1<<(attempt-1))
		lower := step - step/8
		if lower > max {
			lower = max
		}
		for i := 0; i < 50; i++ {
			delay := backoff.DelayWithJitter(attempt, base, max)
			assert.GreaterOrEqual(t, delay, lower, "attempt %d", attempt)
			assert.LessOrEqual(t, delay, max, "attempt %d", attempt)
		}
	}
}

func TestDelayWithJitterCapsAtMax(t *testing.T) {
	base := time.Second
	max := 2 * time.Second
	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, backoff.DelayWithJitter(10, base, max), max)
	}
}
