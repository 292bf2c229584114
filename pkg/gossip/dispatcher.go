package gossip

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/log"
)

// Handler handles an inbound message.
type Handler func(msg *RemoteMessage)

// typedHandler returns a handler for messages of type T.
//
// The dispatcher routes by kind, so a payload of the wrong type is a
// programming error.
func typedHandler[T any, PT interface {
	*T
	Message
}](f func(req *RemoteMessage, msg PT)) Handler {
	return func(msg *RemoteMessage) {
		payload, ok := msg.Payload.(PT)
		if !ok {
			panic(fmt.Sprintf(
				"unexpected payload type: %T (%s)", msg.Payload, msg.Payload.Kind(),
			))
		}
		f(msg, payload)
	}
}

// dispatcher routes inbound messages to the handler registered for the
// message kind.
//
// Handlers are registered before any messages are received so the
// dispatcher isn't protected by a mutex.
type dispatcher struct {
	handlers map[MessageKind]Handler

	logger log.Logger
}

func newDispatcher(logger log.Logger) *dispatcher {
	return &dispatcher{
		handlers: make(map[MessageKind]Handler),
		logger:   logger,
	}
}

func (d *dispatcher) Register(kind MessageKind, handler Handler) {
	if _, ok := d.handlers[kind]; ok {
		panic("handler already registered: " + kind.String())
	}
	d.handlers[kind] = handler
}

func (d *dispatcher) Dispatch(msg *RemoteMessage) {
	handler, ok := d.handlers[msg.Payload.Kind()]
	if !ok {
		d.logger.Warn(
			"no handler registered for message",
			zap.String("kind", msg.Payload.Kind().String()),
			zap.String("sender", msg.Sender.String()),
		)
		return
	}
	handler(msg)
}
