package gateway

import (
	"encoding/json"
	"sync"

	"github.com/golang/glog"
)

type EventCallback = func(payload any)

// eventRouter demultiplexes emitted events by type string. Listeners of the
// same type are invoked in registration order. A panic in one listener is
// recovered and logged; it never reaches other listeners or the socket
// handling path.
type eventRouter struct {
	mutex          sync.Mutex
	eventCallbacks map[string]*CallbackList[EventCallback]
}

func newEventRouter() *eventRouter {
	return &eventRouter{
		eventCallbacks: map[string]*CallbackList[EventCallback]{},
	}
}

func (self *eventRouter) on(eventType string, callback EventCallback) func() {
	self.mutex.Lock()
	callbacks, ok := self.eventCallbacks[eventType]
	if !ok {
		callbacks = NewCallbackList[EventCallback]()
		self.eventCallbacks[eventType] = callbacks
	}
	self.mutex.Unlock()

	callbackId := callbacks.Add(callback)
	return func() {
		callbacks.Remove(callbackId)
	}
}

func (self *eventRouter) emit(eventType string, payload any) {
	self.mutex.Lock()
	callbacks := self.eventCallbacks[eventType]
	self.mutex.Unlock()

	if callbacks == nil {
		return
	}
	for _, callback := range callbacks.Get() {
		self.dispatch(eventType, callback, payload)
	}
}

func (self *eventRouter) dispatch(eventType string, callback EventCallback, payload any) {
	defer func() {
		if r := recover(); r != nil {
			glog.Infof("[gw]listener panic %s = %s\n", eventType, r)
		}
	}()
	callback(payload)
}

// Subscribe registers a typed listener for one event type and returns its
// unsubscribe. Wire payloads arrive as json.RawMessage and are decoded into
// T; lifecycle payloads are passed through when they already are a T.
func Subscribe[T any](connection *GatewayConnection, eventType string, callback func(T)) func() {
	return connection.On(eventType, func(payload any) {
		if event, ok := payload.(T); ok {
			callback(event)
			return
		}
		if raw, ok := payload.(json.RawMessage); ok {
			var event T
			if err := json.Unmarshal(raw, &event); err != nil {
				glog.V(2).Infof("[gw]decode %s error = %s\n", eventType, err)
				return
			}
			callback(event)
			return
		}
		glog.V(2).Infof("[gw]unexpected payload type for %s\n", eventType)
	})
}
