package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyPauseDoubles(t *testing.T) {
	p := RetryPolicy{Attempts: 5, Initial: 500 * time.Millisecond, Max: 2 * time.Second}

	assert.Equal(t, 500*time.Millisecond, p.Pause(0))
	assert.Equal(t, 1*time.Second, p.Pause(1))
	assert.Equal(t, 2*time.Second, p.Pause(2))
	assert.Equal(t, 2*time.Second, p.Pause(3))
	assert.Equal(t, 2*time.Second, p.Pause(10))
}

func TestDialerKeepalive(t *testing.T) {
	d := newDialer()

	assert.Equal(t, dialTimeout, d.Timeout)
	assert.True(t, d.KeepAliveConfig.Enable)
	assert.Equal(t, 30*time.Second, d.KeepAliveConfig.Idle)
	assert.Equal(t, 5*time.Second, d.KeepAliveConfig.Interval)
	assert.Equal(t, 10, d.KeepAliveConfig.Count)
}

func TestRetryPolicyFixedDelay(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Initial: 2 * time.Second, Max: 2 * time.Second}

	assert.Equal(t, 2*time.Second, p.Pause(0))
	assert.Equal(t, 2*time.Second, p.Pause(1))
	assert.Equal(t, 2*time.Second, p.Pause(2))
}
