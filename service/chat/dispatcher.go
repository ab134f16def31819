package chat

import (
	"tripchat/logger"
	"tripchat/module/chat/model"
)

type HandlerFunc func(conn *WsConn, f *model.Frame) error

// Dispatcher routes inbound frames to the handler registered for the event.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.handlers[event] = h
}

func (d *Dispatcher) Dispatch(conn *WsConn, f *model.Frame) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		logger.Infof("[Dispatcher] no handler for type=%s conn=%s", f.Type, conn.ConnID)
		return nil
	}
	return h(conn, f)
}
