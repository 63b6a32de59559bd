package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-separated namespaces:
//
//	store.chat_updated     chat list changed, payload int64 chat id
//	store.message_updated  message window changed, payload int64 chat id
//	file.updated           attachment state changed, payload int64 file id
//	status.changed         connection state transition
//	notify.message         incoming message in an unmuted chat
//	engine.fatal           unrecoverable engine error, payload error
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
