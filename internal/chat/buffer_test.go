package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func bufMsg(i int) Message {
	return Message{
		ID:        fmt.Sprintf("msg-%d", i),
		Content:   fmt.Sprintf("content %d", i),
		AuthorID:  "user-a",
		CreatedAt: time.Unix(int64(i), 0),
	}
}

func TestBufferAddAndRecent(t *testing.T) {
	mb := NewMessageBuffer()

	mb.Add(bufMsg(1))
	mb.Add(bufMsg(2))
	mb.Add(bufMsg(3))

	msgs := mb.Recent()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != fmt.Sprintf("msg-%d", i+1) {
			t.Errorf("index %d: expected msg-%d, got %s", i, i+1, m.ID)
		}
	}
}

func TestBufferWraparound(t *testing.T) {
	mb := NewMessageBuffer()

	for i := 1; i <= MaxBufferMessages+10; i++ {
		mb.Add(bufMsg(i))
	}

	msgs := mb.Recent()
	if len(msgs) != MaxBufferMessages {
		t.Fatalf("expected %d messages, got %d", MaxBufferMessages, len(msgs))
	}
	// Should contain messages 11 .. MaxBufferMessages+10 in order.
	for i, m := range msgs {
		expected := fmt.Sprintf("msg-%d", i+11)
		if m.ID != expected {
			t.Errorf("index %d: expected %s, got %s", i, expected, m.ID)
		}
	}
}

func TestBufferRemove(t *testing.T) {
	mb := NewMessageBuffer()

	mb.Add(bufMsg(1))
	mb.Add(bufMsg(2))
	mb.Add(bufMsg(3))

	mb.Remove("msg-2")

	msgs := mb.Recent()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after remove, got %d", len(msgs))
	}
	if msgs[0].ID != "msg-1" || msgs[1].ID != "msg-3" {
		t.Errorf("unexpected order after remove: %s, %s", msgs[0].ID, msgs[1].ID)
	}

	// Removing an unknown id is a no-op.
	mb.Remove("does-not-exist")
	if len(mb.Recent()) != 2 {
		t.Fatal("remove of unknown id changed the buffer")
	}
}

func TestBufferEmptyRecent(t *testing.T) {
	mb := NewMessageBuffer()

	msgs := mb.Recent()
	if msgs == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(msgs) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(msgs))
	}
}

func TestBufferConcurrentAccess(t *testing.T) {
	mb := NewMessageBuffer()
	goroutines := 50
	perGoroutine := 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for m := 0; m < perGoroutine; m++ {
				mb.Add(bufMsg(id*perGoroutine + m))
				_ = mb.Recent()
			}
		}(g)
	}
	wg.Wait()

	if len(mb.Recent()) != MaxBufferMessages {
		t.Fatalf("expected full buffer after concurrent writes, got %d", len(mb.Recent()))
	}
}
