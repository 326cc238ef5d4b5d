package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/recetario/recipe-app/internal/chat"
	"github.com/recetario/recipe-app/internal/metrics"
	"github.com/recetario/recipe-app/internal/presence"
	"github.com/recetario/recipe-app/internal/protocol"
	"github.com/recetario/recipe-app/internal/report"
)

// seenCapacity bounds the de-duplication window for message ids. The feed
// delivers at-least-once, so the same insert-event can arrive more than once;
// the hub drops repeats before broadcasting.
const seenCapacity = 512

// handlerTimeout bounds database work triggered by a single client frame.
const handlerTimeout = 5 * time.Second

// Reporter persists message reports. *report.Store satisfies it.
type Reporter interface {
	Create(ctx context.Context, r *report.Report) error
}

// Hub is the single shared chat room. It bridges the message relay and the
// typing-presence aggregator to the WebSocket connections: relay deliveries
// are de-duplicated, buffered for replay, and broadcast; presence changes are
// broadcast as the full typing set. Per-connection debouncers translate
// client typing frames into feed insert-events.
type Hub struct {
	server   *Server
	relay    *chat.Relay
	agg      *presence.Aggregator
	buffer   *chat.MessageBuffer
	typing   presence.TypingPublisher
	reporter Reporter

	mu         sync.Mutex
	seen       map[string]struct{}            // message ids already broadcast
	seenOrder  []string                       // FIFO eviction order for seen
	debouncers map[string]*presence.Debouncer // conn ID -> debouncer

	unsubRelay func()
	unsubAgg   func()
}

// NewHub creates a hub over the given relay and aggregator. typing is the
// feed slice debouncers publish on; reporter may be nil to disable reports.
func NewHub(relay *chat.Relay, agg *presence.Aggregator, typing presence.TypingPublisher, reporter Reporter) *Hub {
	return &Hub{
		relay:      relay,
		agg:        agg,
		buffer:     chat.NewMessageBuffer(),
		typing:     typing,
		reporter:   reporter,
		seen:       make(map[string]struct{}),
		debouncers: make(map[string]*presence.Debouncer),
	}
}

// Bind attaches the hub to a server and registers its message handlers on
// the dispatcher. Must be called before Start.
func (h *Hub) Bind(server *Server, d *MessageDispatcher) {
	h.server = server
	server.SetOnConnect(h.handleConnect)
	server.SetOnDisconnect(h.handleDisconnect)

	d.Register(protocol.TypeMessage, h.handleChatMsg)
	d.Register(protocol.TypeTyping, h.handleTypingMsg)
	d.Register(protocol.TypeDelete, h.handleDeleteMsg)
	d.Register(protocol.TypeReport, h.handleReportMsg)
}

// Start subscribes the hub to the message and typing feeds and warms the
// replay buffer from the store.
func (h *Hub) Start(ctx context.Context) error {
	recent, err := h.relay.FetchRecent(ctx, chat.MaxBufferMessages)
	if err != nil {
		return err
	}
	for _, m := range recent {
		h.markSeen(m.ID)
		h.buffer.Add(m)
	}

	unsubRelay, err := h.relay.Subscribe(h.deliverMessage)
	if err != nil {
		return err
	}
	unsubAgg, err := h.agg.Subscribe(h.deliverTyping)
	if err != nil {
		unsubRelay()
		return err
	}

	h.unsubRelay = unsubRelay
	h.unsubAgg = unsubAgg
	return nil
}

// Stop releases the feed subscriptions and cancels all pending debouncers.
func (h *Hub) Stop() {
	if h.unsubRelay != nil {
		h.unsubRelay()
	}
	if h.unsubAgg != nil {
		h.unsubAgg()
	}

	h.mu.Lock()
	for _, deb := range h.debouncers {
		deb.Cancel()
	}
	h.debouncers = make(map[string]*presence.Debouncer)
	h.mu.Unlock()
}

// Err reports the health of the underlying feed subscriptions.
func (h *Hub) Err() error {
	if err := h.relay.Err(); err != nil {
		return err
	}
	return h.agg.Err()
}

// markSeen records a message id in the de-duplication window, evicting the
// oldest entry when full. Returns false if the id was already present.
func (h *Hub) markSeen(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.seen[id]; ok {
		return false
	}
	h.seen[id] = struct{}{}
	h.seenOrder = append(h.seenOrder, id)
	if len(h.seenOrder) > seenCapacity {
		oldest := h.seenOrder[0]
		h.seenOrder = h.seenOrder[1:]
		delete(h.seen, oldest)
	}
	return true
}

// deliverMessage is the relay subscription callback. First delivery of an id
// is buffered and broadcast; repeats are dropped.
func (h *Hub) deliverMessage(m chat.Message) {
	if !h.markSeen(m.ID) {
		return
	}
	h.buffer.Add(m)
	h.broadcast(protocol.TypeServerMessage, serverChatMsg(m))
}

// deliverTyping is the aggregator subscription callback. The full typing set
// is broadcast on every membership change.
func (h *Hub) deliverTyping(userIDs []string) {
	metrics.TypingUsers.Set(float64(len(userIDs)))
	h.broadcast(protocol.TypeTypingUsers, protocol.TypingUsersMsg{Users: userIDs})
}

// handleConnect sends the buffered recent history to a newly registered
// connection, followed by the current typing set so the indicator is correct
// immediately.
func (h *Hub) handleConnect(c *Connection) {
	msgs := h.buffer.Recent()
	history := protocol.HistoryMsg{Messages: make([]protocol.ServerChatMsg, 0, len(msgs))}
	for _, m := range msgs {
		history.Messages = append(history.Messages, serverChatMsg(m))
	}
	h.send(c, protocol.TypeHistory, history)

	if typing := h.agg.Typing(); len(typing) > 0 {
		h.send(c, protocol.TypeTypingUsers, protocol.TypingUsersMsg{Users: typing})
	}
}

// handleDisconnect cancels and forgets the connection's debouncer.
func (h *Hub) handleDisconnect(connID string) {
	h.mu.Lock()
	deb := h.debouncers[connID]
	delete(h.debouncers, connID)
	h.mu.Unlock()

	if deb != nil {
		deb.Cancel()
	}
}

// handleChatMsg validates and persists a chat message via the relay. The
// sender sees its own message through the broadcast path. A successful send
// cancels the connection's pending typing timer, matching a submitted and
// cleared compose buffer.
func (h *Hub) handleChatMsg(c *Connection, msg interface{}) {
	m, ok := msg.(protocol.ChatMsg)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	start := time.Now()
	_, err := h.relay.Send(ctx, c.Session, m.Text)
	if err != nil {
		h.sendFailure(c, err)
		return
	}
	metrics.MessageLatency.Observe(time.Since(start).Seconds())
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	h.debouncerFor(c).Cancel()
}

// handleTypingMsg drives the connection's debouncer. Clients send a typing
// frame per keystroke while their compose buffer is non-empty; each frame
// publishes a typing insert-event and re-arms the debounce timer.
func (h *Hub) handleTypingMsg(c *Connection, msg interface{}) {
	if _, ok := msg.(protocol.TypingMsg); !ok {
		return
	}
	h.debouncerFor(c).Touch()
	metrics.TypingEventsTotal.Inc()
}

// handleDeleteMsg removes a message for its author or an admin and tells all
// clients to drop it.
func (h *Hub) handleDeleteMsg(c *Connection, msg interface{}) {
	m, ok := msg.(protocol.DeleteMsg)
	if !ok || m.MessageID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.relay.Delete(ctx, c.Session, m.MessageID); err != nil {
		h.sendFailure(c, err)
		return
	}

	h.buffer.Remove(m.MessageID)
	h.broadcast(protocol.TypeMessageDeleted, protocol.MessageDeletedMsg{MessageID: m.MessageID})
}

// handleReportMsg records a message report with a snapshot of the current
// room for moderator context.
func (h *Hub) handleReportMsg(c *Connection, msg interface{}) {
	m, ok := msg.(protocol.ReportMsg)
	if !ok || m.MessageID == "" {
		return
	}
	if h.reporter == nil {
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "unsupported", Message: "reports are disabled"})
		return
	}
	if !report.ValidReason(m.Reason) {
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "invalid_reason", Message: "unknown report reason"})
		return
	}

	snapshot := make([]report.SnapshotEntry, 0, chat.MaxBufferMessages)
	for _, bm := range h.buffer.Recent() {
		snapshot = append(snapshot, report.SnapshotEntry{
			AuthorID: bm.AuthorID,
			Content:  bm.Content,
			Ts:       bm.CreatedAt.UnixMilli(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	err := h.reporter.Create(ctx, &report.Report{
		ReporterID: c.Session.UserID,
		MessageID:  m.MessageID,
		Reason:     m.Reason,
		Snapshot:   snapshot,
	})
	if err != nil {
		log.Printf("ws: report create failed conn=%s: %v", c.ID, err)
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "internal", Message: "could not record report"})
	}
}

// debouncerFor returns the connection's debouncer, creating it on first use.
func (h *Hub) debouncerFor(c *Connection) *presence.Debouncer {
	h.mu.Lock()
	defer h.mu.Unlock()

	deb, ok := h.debouncers[c.ID]
	if !ok {
		deb = presence.NewDebouncer(h.typing, c.Session.UserID)
		h.debouncers[c.ID] = deb
	}
	return deb
}

// sendFailure maps a relay error to the matching client-facing message.
func (h *Hub) sendFailure(c *Connection, err error) {
	switch {
	case errors.Is(err, chat.ErrRateLimited):
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		h.send(c, protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: 10})
	case errors.Is(err, chat.ErrMuted):
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		h.send(c, protocol.TypeMuted, protocol.MutedMsg{Reason: "temporarily muted"})
	case errors.Is(err, chat.ErrBlockedContent):
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "blocked_content", Message: "message rejected by content filter"})
	case errors.Is(err, chat.ErrEmptyContent):
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "empty_content", Message: "message is empty"})
	case errors.Is(err, chat.ErrForbidden):
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "forbidden", Message: "not allowed"})
	case errors.Is(err, chat.ErrNotFound):
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "not_found", Message: "message not found"})
	case errors.Is(err, chat.ErrUnauthenticated):
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "unauthenticated", Message: "session expired"})
	default:
		log.Printf("ws: request failed conn=%s: %v", c.ID, err)
		h.send(c, protocol.TypeError, protocol.ErrorMsg{Code: "internal", Message: "request failed"})
	}
}

// send writes a single server message to one connection.
func (h *Hub) send(c *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("ws: build %s message: %v", msgType, err)
		return
	}
	if err := c.WriteMessage(data); err != nil {
		log.Printf("ws: send %s conn=%s: %v", msgType, c.ID, err)
	}
}

// broadcast writes a server message to every connection.
func (h *Hub) broadcast(msgType string, payload interface{}) {
	if h.server == nil {
		return
	}
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("ws: build %s broadcast: %v", msgType, err)
		return
	}
	h.server.Connections().Broadcast(data)
}

// serverChatMsg converts a relay message into its wire form.
func serverChatMsg(m chat.Message) protocol.ServerChatMsg {
	return protocol.ServerChatMsg{
		ID:          m.ID,
		Text:        m.Content,
		AuthorID:    m.AuthorID,
		AuthorEmail: m.Author.Email,
		AuthorRole:  m.Author.Role,
		Ts:          m.CreatedAt.UnixMilli(),
	}
}
