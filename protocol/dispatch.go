package protocol

import (
	"encoding/json"
	"fmt"
)

// HandlerFunc processes one decoded packet's raw JSON body. Handlers decode
// raw into their own concrete packet type.
type HandlerFunc func(raw json.RawMessage) error

// Dispatcher is the static command_name -> handler map from §4.7, replacing
// the teacher's inline type-switch in hub.go's read loop with a registration
// table so each packet type's handling logic can live next to the component
// it affects (session, doc, buffer) instead of all in one switch statement.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for command. Re-registering a command overwrites the
// previous handler, matching a static map's semantics.
func (d *Dispatcher) Handle(command string, fn HandlerFunc) {
	d.handlers[command] = fn
}

// Dispatch decodes buf's envelope to learn its command name, looks up the
// registered handler, and invokes it with the full raw body. An unregistered
// command returns ErrUnexpectedCommand wrapped as a protocol violation,
// per §4.7 ("dispatch... unknown commands: throw UnexpectedCommand").
func (d *Dispatcher) Dispatch(buf []byte) error {
	var env Envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return Wrap(KindProtocolViolation, err, "malformed envelope")
	}
	fn, ok := d.handlers[env.Type]
	if !ok {
		return Wrap(KindProtocolViolation, fmt.Errorf("%w: %q", ErrUnexpectedCommand, env.Type), "dispatch")
	}
	if err := fn(buf); err != nil {
		return err
	}
	return nil
}
