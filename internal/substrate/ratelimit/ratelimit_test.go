package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowStartAligns(t *testing.T) {
	assert.Equal(t, int64(3600), WindowStart(3700, 3600))
	assert.Equal(t, int64(0), WindowStart(100, 3600))
}

func TestCheckAllowsWithinLimit(t *testing.T) {
	l := NewMock()
	for i := 0; i < 5; i++ {
		err := Check(context.Background(), l, "s@ex.com", 10, 3600, 1_700_000_000)
		assert.NoError(t, err)
	}
}

func TestCheckRejectsOverLimit(t *testing.T) {
	l := NewMock()
	for i := 0; i < 3; i++ {
		assert.NoError(t, Check(context.Background(), l, "s@ex.com", 3, 3600, 1_700_000_000))
	}
	err := Check(context.Background(), l, "s@ex.com", 3, 3600, 1_700_000_000)
	assert.Error(t, err)
}

func TestCheckIsPerSenderIndependent(t *testing.T) {
	l := NewMock()
	for i := 0; i < 3; i++ {
		assert.NoError(t, Check(context.Background(), l, "a@ex.com", 3, 3600, 1_700_000_000))
	}
	assert.NoError(t, Check(context.Background(), l, "b@ex.com", 3, 3600, 1_700_000_000))
}

func TestCheckNewWindowResetsCount(t *testing.T) {
	l := NewMock()
	for i := 0; i < 3; i++ {
		assert.NoError(t, Check(context.Background(), l, "s@ex.com", 3, 3600, 1_700_000_000))
	}
	assert.NoError(t, Check(context.Background(), l, "s@ex.com", 3, 3600, 1_700_003_700))
}
