package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recetario/recipe-app/internal/auth"
	"github.com/recetario/recipe-app/internal/feed"
)

// fakeStore is an in-memory MessageStore.
type fakeStore struct {
	mu       sync.Mutex
	msgs     map[string]Message
	order    []string
	inserts  int
	fetches  int
	failGets bool
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{msgs: make(map[string]Message)}
}

func (s *fakeStore) Insert(ctx context.Context, authorID, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	s.nextID++
	m := Message{
		ID:        fmt.Sprintf("msg-%d", s.nextID),
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: time.Unix(int64(1000+s.nextID), 0),
		Author:    Author{Email: authorID + "@example.com", Role: auth.RoleUser},
	}
	s.msgs[m.ID] = m
	s.order = append(s.order, m.ID)
	return m, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.failGets {
		return Message{}, errors.New("network unreachable")
	}
	m, ok := s.msgs[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return m, nil
}

func (s *fakeStore) ListRecent(ctx context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Newest first, like the SQL query.
	var out []Message
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.msgs[s.order[i]])
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.msgs[id]; !ok {
		return ErrNotFound
	}
	delete(s.msgs, id)
	return nil
}

func (s *fakeStore) AuthorOf(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return "", ErrNotFound
	}
	return m.AuthorID, nil
}

// fakeMessageFeed delivers published insert-events synchronously to the
// registered handler, like the real feed does for a local subscriber.
type fakeMessageFeed struct {
	mu        sync.Mutex
	handlers  map[string]func(data []byte)
	published int
	err       error
}

func newFakeMessageFeed() *fakeMessageFeed {
	return &fakeMessageFeed{handlers: make(map[string]func(data []byte))}
}

func (f *fakeMessageFeed) SubscribeMessageInserts(key string, handler func(data []byte)) error {
	f.mu.Lock()
	f.handlers[key] = handler
	f.mu.Unlock()
	return nil
}

func (f *fakeMessageFeed) Unsubscribe(key string) error {
	f.mu.Lock()
	delete(f.handlers, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeMessageFeed) PublishMessageInsert(data []byte) error {
	f.mu.Lock()
	f.published++
	handlers := make([]func([]byte), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
	return nil
}

func (f *fakeMessageFeed) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeMessageFeed) push(t *testing.T, ev feed.MessageInsert) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	f.mu.Lock()
	handlers := make([]func([]byte), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func activeSession(userID string) *auth.Session {
	return &auth.Session{
		UserID:    userID,
		Email:     userID + "@example.com",
		Role:      auth.RoleUser,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func newTestRelay(store *fakeStore, f *fakeMessageFeed) *Relay {
	return NewRelay(store, f, "test-sub", nil, nil, nil, nil)
}

func TestSendRejectsBlankContent(t *testing.T) {
	store := newFakeStore()
	f := newFakeMessageFeed()
	r := newTestRelay(store, f)
	sess := activeSession("user-a")

	for _, content := range []string{"", "   ", "\n\t "} {
		_, err := r.Send(context.Background(), sess, content)
		if !errors.Is(err, ErrEmptyContent) {
			t.Errorf("content %q: expected ErrEmptyContent, got %v", content, err)
		}
	}
	if store.inserts != 0 {
		t.Fatalf("blank sends must not insert, got %d inserts", store.inserts)
	}
	if f.published != 0 {
		t.Fatalf("blank sends must not publish, got %d events", f.published)
	}
}

func TestSendRequiresActiveSession(t *testing.T) {
	store := newFakeStore()
	r := newTestRelay(store, newFakeMessageFeed())

	if _, err := r.Send(context.Background(), nil, "hola"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("nil session: expected ErrUnauthenticated, got %v", err)
	}

	expired := &auth.Session{UserID: "user-a", ExpiresAt: time.Now().Add(-time.Minute)}
	if _, err := r.Send(context.Background(), expired, "hola"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expired session: expected ErrUnauthenticated, got %v", err)
	}
	if store.inserts != 0 {
		t.Fatalf("unauthenticated sends must not insert, got %d", store.inserts)
	}
}

func TestSendInsertsAndPublishes(t *testing.T) {
	store := newFakeStore()
	f := newFakeMessageFeed()
	r := newTestRelay(store, f)

	msg, err := r.Send(context.Background(), activeSession("user-a"), "  hola a todos  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Content != "hola a todos" {
		t.Errorf("expected trimmed content, got %q", msg.Content)
	}
	if store.inserts != 1 {
		t.Fatalf("expected 1 insert, got %d", store.inserts)
	}
	if f.published != 1 {
		t.Fatalf("expected 1 published event, got %d", f.published)
	}
}

func TestSubscribeEnrichesInsertEvents(t *testing.T) {
	store := newFakeStore()
	f := newFakeMessageFeed()
	r := newTestRelay(store, f)

	var mu sync.Mutex
	var received []Message
	unsub, err := r.Subscribe(func(m Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	// Send through the relay: the event round-trips via the fake feed and
	// comes back enriched from the store.
	if _, err := r.Send(context.Background(), activeSession("user-a"), "hola"); err != nil {
		t.Fatalf("send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(received))
	}
	if received[0].Author.Email != "user-a@example.com" {
		t.Errorf("expected enriched author, got %+v", received[0].Author)
	}
}

func TestEnrichmentFailureFallsBackToPlaceholder(t *testing.T) {
	store := newFakeStore()
	f := newFakeMessageFeed()
	r := newTestRelay(store, f)

	var mu sync.Mutex
	var received []Message
	unsub, err := r.Subscribe(func(m Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	store.failGets = true
	f.push(t, feed.MessageInsert{
		ID:        "msg-x",
		Content:   "hola",
		AuthorID:  "user-b",
		CreatedAt: time.Now().UnixMilli(),
	})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("event must not be dropped on enrichment failure, got %d messages", len(received))
	}
	got := received[0]
	if got.Author.Email != PlaceholderEmail || got.Author.Role != PlaceholderRole {
		t.Errorf("expected placeholder author {%s %s}, got %+v",
			PlaceholderEmail, PlaceholderRole, got.Author)
	}
	if got.ID != "msg-x" || got.Content != "hola" || got.AuthorID != "user-b" {
		t.Errorf("fallback must keep raw event fields, got %+v", got)
	}
}

func TestDuplicateEventEnrichesTwice(t *testing.T) {
	store := newFakeStore()
	f := newFakeMessageFeed()
	r := newTestRelay(store, f)

	msg, err := store.Insert(context.Background(), "user-a", "hola")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	store.fetches = 0

	var mu sync.Mutex
	deliveries := 0
	unsub, err := r.Subscribe(func(Message) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	ev := feed.MessageInsert{ID: msg.ID, Content: msg.Content, AuthorID: msg.AuthorID, CreatedAt: msg.CreatedAt.UnixMilli()}
	f.push(t, ev)
	f.push(t, ev)

	// The relay does not de-duplicate: both deliveries happen, each with its
	// own enrichment fetch. Dropping the duplicate is the consumer's job.
	if store.fetches != 2 {
		t.Errorf("expected 2 enrichment fetches, got %d", store.fetches)
	}
	mu.Lock()
	defer mu.Unlock()
	if deliveries != 2 {
		t.Errorf("expected 2 deliveries, got %d", deliveries)
	}
}

func TestFetchRecentReturnsAscendingOrder(t *testing.T) {
	store := newFakeStore()
	r := newTestRelay(store, newFakeMessageFeed())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Insert(ctx, "user-a", fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	msgs, err := r.FetchRecent(ctx, 3)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("messages out of order: %v before %v", msgs[i].CreatedAt, msgs[i-1].CreatedAt)
		}
	}
	// The 3 newest of 5, oldest first.
	if msgs[0].Content != "msg 2" || msgs[2].Content != "msg 4" {
		t.Errorf("unexpected window: %q .. %q", msgs[0].Content, msgs[2].Content)
	}
}

func TestDeleteRequiresAuthorOrAdmin(t *testing.T) {
	store := newFakeStore()
	r := newTestRelay(store, newFakeMessageFeed())
	ctx := context.Background()

	msg, err := store.Insert(ctx, "user-a", "hola")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := r.Delete(ctx, activeSession("user-b"), msg.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-author, got %v", err)
	}

	admin := activeSession("user-c")
	admin.Role = auth.RoleAdmin
	if err := r.Delete(ctx, admin, msg.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}

	if err := r.Delete(ctx, activeSession("user-a"), msg.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after hard delete, got %v", err)
	}
}

func TestSubscribeGuardedAndTeardownDetaches(t *testing.T) {
	store := newFakeStore()
	f := newFakeMessageFeed()
	r := newTestRelay(store, f)

	unsub, err := r.Subscribe(func(Message) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := r.Subscribe(func(Message) {}); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}

	unsub()
	unsub() // idempotent

	// A synthetic event delivered to the torn-down handler must not panic
	// and must not invoke the detached callback.
	called := false
	r.mu.Lock()
	r.onInsert = func(Message) { called = true }
	r.mu.Unlock()
	r.handleInsert(feed.MessageInsert{ID: "msg-z", AuthorID: "user-a"})
	if called {
		t.Fatal("torn-down relay invoked callback")
	}
}

type fakeMuter struct{ muted bool }

func (m *fakeMuter) IsMuted(ctx context.Context, userID string) (bool, error) {
	return m.muted, nil
}

func TestSendRefusesMutedUser(t *testing.T) {
	store := newFakeStore()
	r := NewRelay(store, newFakeMessageFeed(), "test-sub", nil, nil, &fakeMuter{muted: true}, nil)

	if _, err := r.Send(context.Background(), activeSession("user-a"), "hola"); !errors.Is(err, ErrMuted) {
		t.Fatalf("expected ErrMuted, got %v", err)
	}
	if store.inserts != 0 {
		t.Fatalf("muted sends must not insert, got %d", store.inserts)
	}
}

type fakeScreener struct{ term string }

func (s *fakeScreener) Screen(content string) (bool, string) {
	if s.term != "" && strings.Contains(content, s.term) {
		return true, s.term
	}
	return false, ""
}

func TestSendRefusesBlockedContent(t *testing.T) {
	store := newFakeStore()
	f := newFakeMessageFeed()
	r := NewRelay(store, f, "test-sub", nil, &fakeScreener{term: "idiota"}, nil, nil)

	if _, err := r.Send(context.Background(), activeSession("user-a"), "eres un idiota"); !errors.Is(err, ErrBlockedContent) {
		t.Fatalf("expected ErrBlockedContent, got %v", err)
	}
	if store.inserts != 0 {
		t.Fatalf("blocked sends must not insert, got %d", store.inserts)
	}
	if f.published != 0 {
		t.Fatalf("blocked sends must not publish, got %d events", f.published)
	}
}
