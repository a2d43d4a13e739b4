package state

import (
	"github.com/golang/glog"

	"github.com/KorensAI/openclaw-mission-control/gateway"
	"github.com/KorensAI/openclaw-mission-control/protocol"
)

// Bridge is the single long-lived subscriber that keeps the store
// consistent with the gateway socket. It translates each domain event into
// exactly one store mutation, applied synchronously on receipt. Events for
// unknown record ids are no-ops; existing state is never cleared on
// disconnect, so the dashboard stays usable against last-known state.
type Bridge struct {
	connection *gateway.GatewayConnection
	store      *Store

	unsubscribes []func()
}

func NewBridge(connection *gateway.GatewayConnection, store *Store) *Bridge {
	bridge := &Bridge{
		connection: connection,
		store:      store,
	}
	bridge.attach()
	return bridge
}

func (self *Bridge) attach() {
	subscribe := func(unsubscribe func()) {
		self.unsubscribes = append(self.unsubscribes, unsubscribe)
	}

	subscribe(gateway.Subscribe(self.connection, gateway.EventTypeConnect, func(event *gateway.ConnectEvent) {
		self.store.SetGatewayRunning(true)
		self.store.SetReconnectAttempts(0)
	}))
	subscribe(gateway.Subscribe(self.connection, gateway.EventTypeDisconnect, func(event *gateway.DisconnectEvent) {
		self.store.SetGatewayRunning(false)
	}))
	subscribe(gateway.Subscribe(self.connection, gateway.EventTypeReconnecting, func(event *gateway.ReconnectingEvent) {
		self.store.SetReconnectAttempts(event.Attempt)
	}))

	// one subscription on the generic channel covers every wire event;
	// the decode step closes the union
	subscribe(self.connection.On(gateway.EventTypeMessage, func(payload any) {
		envelope, ok := payload.(*protocol.Envelope)
		if !ok {
			return
		}
		event, err := protocol.DecodeEvent(envelope)
		if err != nil {
			glog.Infof("[br]decode error = %s\n", err)
			return
		}
		self.Apply(event)
	}))
}

// Apply performs the mutation for one decoded domain event.
func (self *Bridge) Apply(event protocol.Event) {
	switch v := event.(type) {
	case *protocol.AgentStatusEvent:
		self.store.ApplyAgentStatus(v)
	case *protocol.TaskCreatedEvent:
		self.store.AppendTask(v.Task)
	case *protocol.TaskUpdatedEvent:
		self.store.MergeTask(v.TaskId, v.Changes)
	case *protocol.LogEntryEvent:
		self.store.AppendLog(v.Entry)
	case *protocol.SessionStartEvent:
		self.store.SessionStarted()
	case *protocol.SessionEndEvent:
		self.store.SessionEnded()
	case *protocol.CronTriggeredEvent:
		self.store.MarkCronRun(v.JobId, v.TriggeredAt)
	case *protocol.CostUpdateEvent:
		self.store.AppendCostEntry(v.Entry)
	case *protocol.UnknownEvent:
		// forward-compatibility: newer daemons may emit types this build
		// does not know
		glog.V(2).Infof("[br]ignored unknown event %s\n", v.Type)
	}
}

// Close detaches all subscriptions. The connection is a shared process-wide
// resource whose lifetime is independent of any observer, so it is
// deliberately not disconnected here.
func (self *Bridge) Close() {
	for _, unsubscribe := range self.unsubscribes {
		unsubscribe()
	}
	self.unsubscribes = nil
}
