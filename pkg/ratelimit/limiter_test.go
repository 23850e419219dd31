package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("BTC-USD", 5, 0), "call %d within capacity", i)
	}
	assert.False(t, l.Allow("BTC-USD", 5, 0), "bucket exhausted")
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("BTC-USD", 3, 0))
	}
	assert.False(t, l.Allow("BTC-USD", 3, 0))
	assert.True(t, l.Allow("ETH-USD", 3, 0), "other keys keep their own bucket")
}
