package ws

import (
	"log"
	"time"

	"github.com/recetario/recipe-app/internal/metrics"
	"github.com/recetario/recipe-app/internal/protocol"
)

// MessageHandler handles one parsed client message. The msg argument is the
// concrete struct produced by protocol.ParseClientMessage for the registered
// type.
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher parses inbound frames and routes them to per-type
// handlers. Application-level ping/pong is answered here; malformed frames
// and unknown types earn a structured error reply.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	server   *Server
}

// NewMessageDispatcher creates a dispatcher. The server may be nil at
// construction and assigned later with SetServer, since NewServer itself
// wants the Dispatch callback.
func NewMessageDispatcher(server *Server) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		server:   server,
	}
}

// SetServer wires in the server after construction.
func (d *MessageDispatcher) SetServer(server *Server) {
	d.server = server
}

// Register installs the handler for a message type, replacing any previous
// registration.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the server's onMessage callback. It runs on a worker goroutine
// with one complete text frame.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("ws: dispatch parse error conn=%s: %v", conn.ID, err)
		d.replyError(conn, "parse_error", "invalid message format")
		return
	}

	metrics.MessagesTotal.WithLabelValues("received").Inc()

	if msgType == protocol.TypePing {
		d.replyPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("ws: unsupported message type=%q conn=%s", msgType, conn.ID)
		d.replyError(conn, "unsupported_type", "unsupported message type")
		return
	}

	handler(conn, msg)
}

func (d *MessageDispatcher) replyError(conn *Connection, code, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Printf("ws: build error reply conn=%s: %v", conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: send error reply conn=%s: %v", conn.ID, err)
	}
}

// replyPong answers an application-level ping. The frame also counts as
// keepalive activity.
func (d *MessageDispatcher) replyPong(conn *Connection) {
	conn.LastPing = time.Now()

	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		log.Printf("ws: build pong conn=%s: %v", conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: send pong conn=%s: %v", conn.ID, err)
	}
}
