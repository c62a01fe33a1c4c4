package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterConsumesUpToBurstThenRejects(t *testing.T) {
	l := New(3, time.Minute)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Check() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestLimiterReplenishesOverTime(t *testing.T) {
	l := New(100, 50*time.Millisecond)

	for l.Check() {
	}
	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Check())
}
