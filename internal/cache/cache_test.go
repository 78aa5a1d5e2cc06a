package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueDrainTransfersOwnership(t *testing.T) {
	c := New()
	c.Puts.Enqueue(PendingPut{Subject: []byte("s0")})
	c.Puts.Enqueue(PendingPut{Subject: []byte("s1")})

	assert.Equal(t, 2, c.Puts.Len())
	items := c.Puts.Drain()
	assert.Len(t, items, 2)
	assert.Equal(t, 0, c.Puts.Len())
}

func TestDrainOnEmptyQueueReturnsNil(t *testing.T) {
	c := New()
	assert.Nil(t, c.Gets.Drain())
}

func TestConcurrentEnqueueDoesNotRace(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Puts.Enqueue(PendingPut{Subject: []byte{byte(i)}})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Puts.Len())
}
