package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSchedule(t *testing.T) {
	assert.Equal(t, time.Minute, backoff(1))
	assert.Equal(t, 2*time.Minute, backoff(2))
	assert.Equal(t, 4*time.Minute, backoff(3))
}

func TestClaimTimeoutExceedsBackoffWindow(t *testing.T) {
	// A reclaimed task must really be abandoned: the timeout has to exceed
	// the longest scheduled retry gap so a healthy worker is never raced.
	assert.Greater(t, claimTimeout, backoff(defaultMaxAttempts))
}
