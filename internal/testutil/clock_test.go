package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ref = time.Date(2024, 1, 31, 10, 20, 30, 0, time.UTC)

func TestWallClock_Stopped(t *testing.T) {
	clock := NewWallClock(ref)

	assert.Equal(t, ref, clock.Now())
	assert.Equal(t, ref, clock.Now())
}

func TestWallClock_AdvanceAndSet(t *testing.T) {
	clock := NewWallClock(ref)

	clock.Advance(90 * time.Minute)
	assert.Equal(t, ref.Add(90*time.Minute), clock.Now())

	clock.Advance(-time.Hour)
	assert.Equal(t, ref.Add(30*time.Minute), clock.Now())

	clock.Set(ref)
	assert.Equal(t, ref, clock.Now())
}

func TestWallClock_Concurrent(t *testing.T) {
	clock := NewWallClock(ref)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, ref.Add(50*time.Second), clock.Now())
}
