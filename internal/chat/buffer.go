package chat

import "sync"

// MaxBufferMessages is the number of recent messages retained in memory for
// replay to newly connected clients.
const MaxBufferMessages = 50

// MessageBuffer stores the last N room messages in memory. It is
// goroutine-safe and uses a ring buffer internally.
type MessageBuffer struct {
	mu    sync.RWMutex
	items []Message
	pos   int
	count int
}

// NewMessageBuffer creates a new empty MessageBuffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{
		items: make([]Message, MaxBufferMessages),
	}
}

// Add appends a message. If the buffer is full, the oldest message is
// overwritten.
func (mb *MessageBuffer) Add(msg Message) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.items[mb.pos] = msg
	mb.pos = (mb.pos + 1) % MaxBufferMessages
	if mb.count < MaxBufferMessages {
		mb.count++
	}
}

// Recent returns the buffered messages in chronological order (oldest
// first). Returns an empty slice if nothing is buffered.
func (mb *MessageBuffer) Recent() []Message {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	result := make([]Message, mb.count)
	// The oldest message is at position (pos - count) mod MaxBufferMessages.
	start := (mb.pos - mb.count + MaxBufferMessages) % MaxBufferMessages
	for i := 0; i < mb.count; i++ {
		result[i] = mb.items[(start+i)%MaxBufferMessages]
	}
	return result
}

// Remove drops the message with the given id, preserving the order of the
// remaining entries. Used after a hard delete.
func (mb *MessageBuffer) Remove(id string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	kept := make([]Message, 0, mb.count)
	start := (mb.pos - mb.count + MaxBufferMessages) % MaxBufferMessages
	for i := 0; i < mb.count; i++ {
		m := mb.items[(start+i)%MaxBufferMessages]
		if m.ID != id {
			kept = append(kept, m)
		}
	}

	mb.items = make([]Message, MaxBufferMessages)
	copy(mb.items, kept)
	mb.pos = len(kept) % MaxBufferMessages
	mb.count = len(kept)
}
