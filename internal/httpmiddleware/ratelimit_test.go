package httpmiddleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhausts(t *testing.T) {
	ctx := context.Background()
	l := NewTokenBucket(3, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "1.2.3.4"), "request %d should pass", i)
	}
	assert.False(t, l.Allow(ctx, "1.2.3.4"))

	// other keys are unaffected
	assert.True(t, l.Allow(ctx, "5.6.7.8"))
}

func TestTokenBucketDefaultCapacity(t *testing.T) {
	l := NewTokenBucket(0, 10)
	assert.Equal(t, 10, l.capacity)
}
