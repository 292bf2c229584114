package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_MaxAttempts(t *testing.T) {
	b := New(3, time.Millisecond, time.Millisecond*2)

	for i := 0; i != 3; i++ {
		assert.True(t, b.Wait(context.Background()))
	}
	assert.False(t, b.Wait(context.Background()))
	assert.Equal(t, 3, b.Attempts())
}

func TestBackoff_Cancelled(t *testing.T) {
	b := New(0, time.Minute, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, b.Wait(ctx))
}

func TestBackoff_NextWait(t *testing.T) {
	b := New(0, time.Millisecond*10, time.Millisecond*50)

	var waits []time.Duration
	for i := 0; i != 5; i++ {
		waits = append(waits, b.nextWait())
	}

	// Doubles from the minimum, capped at the maximum, with up to 10%
	// jitter.
	expected := []time.Duration{
		time.Millisecond * 10,
		time.Millisecond * 20,
		time.Millisecond * 40,
		time.Millisecond * 50,
		time.Millisecond * 50,
	}
	for i, wait := range waits {
		assert.GreaterOrEqual(t, wait, expected[i])
		assert.LessOrEqual(t, wait, expected[i]+expected[i]/10)
	}
}
