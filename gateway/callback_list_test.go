package gateway

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCallbackListOrder(t *testing.T) {
	callbacks := NewCallbackList[func() int]()

	n := 16
	for i := 0; i < n; i += 1 {
		i := i
		callbacks.Add(func() int {
			return i
		})
	}

	// fan-out order matches registration order
	for i, callback := range callbacks.Get() {
		assert.Equal(t, i, callback())
	}
}

func TestCallbackListRemove(t *testing.T) {
	callbacks := NewCallbackList[func() int]()

	one := func() int { return 1 }
	two := func() int { return 2 }

	// the same function registered twice is two registrations
	firstId := callbacks.Add(one)
	callbacks.Add(two)
	callbacks.Add(one)
	assert.Equal(t, 3, len(callbacks.Get()))

	// removal by id removes exactly one
	callbacks.Remove(firstId)
	get := callbacks.Get()
	assert.Equal(t, 2, len(get))
	assert.Equal(t, 2, get[0]())
	assert.Equal(t, 1, get[1]())

	// removing an unknown id is a no-op
	callbacks.Remove(NewId())
	assert.Equal(t, 2, len(callbacks.Get()))
}

func TestCallbackListSnapshot(t *testing.T) {
	callbacks := NewCallbackList[func() int]()
	callbacks.Add(func() int { return 1 })

	// Get returns a stable snapshot: later updates do not change it
	get := callbacks.Get()
	callbacks.Add(func() int { return 2 })
	assert.Equal(t, 1, len(get))
	assert.Equal(t, 2, len(callbacks.Get()))
}
