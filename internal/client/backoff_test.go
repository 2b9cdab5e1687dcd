package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayDoubles(t *testing.T) {
	b := backoffPolicy{base: time.Second, max: 5}

	assert.Equal(t, 1*time.Second, b.delay(1))
	assert.Equal(t, 2*time.Second, b.delay(2))
	assert.Equal(t, 4*time.Second, b.delay(3))
	assert.Equal(t, 8*time.Second, b.delay(4))
	assert.Equal(t, 16*time.Second, b.delay(5))
}

func TestBackoffMonotonic(t *testing.T) {
	b := backoffPolicy{base: 250 * time.Millisecond, max: 5}
	for attempt := 2; attempt <= b.max; attempt++ {
		assert.Greater(t, b.delay(attempt), b.delay(attempt-1),
			"delay for attempt %d must exceed attempt %d", attempt, attempt-1)
	}
}

func TestBackoffExhaustion(t *testing.T) {
	b := backoffPolicy{base: time.Second, max: 5}

	for attempt := 1; attempt <= 5; attempt++ {
		assert.False(t, b.exhausted(attempt), "attempt %d should run", attempt)
	}
	assert.True(t, b.exhausted(6), "no retry after maxAttempts")
}
