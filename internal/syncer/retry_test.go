package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(time.Second, 10*time.Second)
	assert.Equal(t, time.Second, b(0))
	assert.Equal(t, time.Second, b(1))
	assert.Equal(t, 2*time.Second, b(2))
	assert.Equal(t, 4*time.Second, b(3))
	assert.Equal(t, 8*time.Second, b(4))
	assert.Equal(t, 10*time.Second, b(5))
	assert.Equal(t, 10*time.Second, b(60))
}

func TestRetryPolicyDelay(t *testing.T) {
	assert.Zero(t, RetryPolicy{MaxRetries: 3}.Delay(2))
	assert.Zero(t, RetryPolicy{MaxRetries: 3, Backoff: NoBackoff}.Delay(2))
	assert.Equal(t, 3, DefaultRetryPolicy().MaxRetries)
	assert.Equal(t, 2*time.Second, DefaultRetryPolicy().Delay(2))
}
