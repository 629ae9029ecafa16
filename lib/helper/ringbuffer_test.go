package helper

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_AddAndSnapshot(t *testing.T) {
	rb := NewRingBuffer[int](5)
	rb.Add(1)
	rb.Add(2)
	rb.Add(3)

	assert.Equal(t, []int{3, 2, 1}, rb.Snapshot())
	assert.Equal(t, []int{1, 2, 3}, rb.Oldest())
	assert.Equal(t, 3, rb.Len())

	rb.Add(4)
	rb.Add(5)
	rb.Add(6)

	assert.Equal(t, []int{6, 5, 4, 3, 2}, rb.Snapshot())
	assert.Equal(t, 5, rb.Len())
	assert.Equal(t, 5, rb.Cap())

	rb.Add(7)
	rb.Add(8)
	assert.Equal(t, []int{8, 7, 6, 5, 4}, rb.Snapshot())
}

func TestRingBuffer_NeverExceedsCapacity(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 0; i < 100; i++ {
		rb.Add(i)
		assert.LessOrEqual(t, rb.Len(), 3)
	}
	assert.Equal(t, []int{99, 98, 97}, rb.Snapshot())
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer[int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rb.Add(g*1000 + i)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 64, rb.Len())
	assert.Len(t, rb.Snapshot(), 64)
}
