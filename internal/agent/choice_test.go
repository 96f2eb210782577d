package agent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChoiceSlotLastWriteWins(t *testing.T) {
	slot := NewChoiceSlot()
	slot.Offer("drink_type", "tea")
	slot.Offer("drink_type", "drip")
	value, ok := slot.Take("drink_type")
	assert.True(t, ok)
	assert.Equal(t, "drip", value)
	_, ok = slot.Take("drink_type")
	assert.False(t, ok)
}

func TestChoiceSlotTakeIgnoresOtherKeys(t *testing.T) {
	slot := NewChoiceSlot()
	slot.Offer("size", "small")
	_, ok := slot.Take("milk_type")
	assert.False(t, ok)
	pending, ok := slot.Peek()
	assert.True(t, ok)
	assert.Equal(t, "small", pending.Value)

	slot.Clear()
	_, ok = slot.Peek()
	assert.False(t, ok)
}

func TestChoiceSlotEmptyValueIsPresent(t *testing.T) {
	slot := NewChoiceSlot()
	slot.Offer("note", "")
	value, ok := slot.Take("note")
	assert.True(t, ok)
	assert.Equal(t, "", value)
}

func TestChoiceSlotConcurrentAccess(t *testing.T) {
	slot := NewChoiceSlot()
	var wg sync.WaitGroup
	taken := make(chan string, 100)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			slot.Offer("k", "v")
		}()
		go func() {
			defer wg.Done()
			if v, ok := slot.Take("k"); ok {
				taken <- v
			}
		}()
	}
	wg.Wait()
	close(taken)
	for v := range taken {
		assert.Equal(t, "v", v)
	}
}
