package gateway

import (
	"sync"

	"golang.org/x/exp/slices"
)

// CallbackList is an ordered registry of callbacks. It makes a copy of the
// list on update so that fan-out iterates a stable snapshot without holding
// the lock. Registering the same function twice creates two registrations;
// removal by id removes exactly one.
type CallbackList[T any] struct {
	mutex       sync.Mutex
	callbackIds []Id
	callbacks   []T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{}
}

func (self *CallbackList[T]) Add(callback T) Id {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := NewId()
	nextCallbackIds := slices.Clone(self.callbackIds)
	nextCallbacks := slices.Clone(self.callbacks)
	self.callbackIds = append(nextCallbackIds, callbackId)
	self.callbacks = append(nextCallbacks, callback)
	return callbackId
}

func (self *CallbackList[T]) Remove(callbackId Id) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.callbackIds, callbackId)
	if i < 0 {
		// not present
		return
	}
	self.callbackIds = slices.Delete(slices.Clone(self.callbackIds), i, i+1)
	self.callbacks = slices.Delete(slices.Clone(self.callbacks), i, i+1)
}

// Get returns the callbacks in registration order.
func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.callbacks
}
