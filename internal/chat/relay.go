package chat

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/recetario/recipe-app/internal/auth"
	"github.com/recetario/recipe-app/internal/feed"
	"github.com/recetario/recipe-app/internal/metrics"
)

// enrichTimeout bounds the by-id re-fetch triggered by an insert-event.
const enrichTimeout = 3 * time.Second

// MessageStore is the persistence surface the relay needs. *Store satisfies
// it; tests use an in-memory fake.
type MessageStore interface {
	Insert(ctx context.Context, authorID, content string) (Message, error)
	GetByID(ctx context.Context, id string) (Message, error)
	ListRecent(ctx context.Context, limit int) ([]Message, error)
	Delete(ctx context.Context, id string) error
	AuthorOf(ctx context.Context, id string) (string, error)
}

// MessageFeed is the slice of the change feed the relay consumes and emits
// on. *feed.Client satisfies it.
type MessageFeed interface {
	SubscribeMessageInserts(key string, handler func(data []byte)) error
	Unsubscribe(key string) error
	PublishMessageInsert(data []byte) error
	LastError() error
}

// Muter reports whether a user is currently muted. Optional.
type Muter interface {
	IsMuted(ctx context.Context, userID string) (bool, error)
}

// Limiter throttles sends per user. Optional.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// Screener refuses prohibited content. Optional. *moderation.Filter
// satisfies it.
type Screener interface {
	Screen(content string) (blocked bool, term string)
}

type sanitizer interface {
	Sanitize(s string) string
}

// Relay mirrors the authoritative message log into local state. Outbound, it
// validates and inserts messages and publishes the insert-event; inbound, it
// resolves each insert-event to an enriched record before handing it to the
// subscriber. The relay performs no de-duplication — the consumer must
// ignore an insert for an id it already holds.
type Relay struct {
	store  MessageStore
	feed   MessageFeed
	subKey string

	sanitizer sanitizer
	screener  Screener
	muter     Muter
	limiter   Limiter

	mu       sync.Mutex
	active   bool
	onInsert func(Message)
}

// NewRelay creates a relay over the given store and feed. The subKey
// identifies this consumer's subscription on the feed. screener, muter, and
// limiter may be nil to disable those checks.
func NewRelay(store MessageStore, f MessageFeed, subKey string, san sanitizer, screener Screener, muter Muter, limiter Limiter) *Relay {
	return &Relay{
		store:     store,
		feed:      f,
		subKey:    subKey,
		sanitizer: san,
		screener:  screener,
		muter:     muter,
		limiter:   limiter,
	}
}

// Subscribe attaches the relay to the message feed. For every insert-event
// the full record is re-fetched by id, because the raw payload lacks the
// author's email and role. If that enrichment fetch fails the event is still
// delivered, carrying the placeholder author — an event is never dropped for
// a failed join.
//
// The returned unsubscribe function is idempotent and releases the feed
// subscription; events arriving afterwards are dropped silently.
func (r *Relay) Subscribe(onInsert func(Message)) (func(), error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	r.active = true
	r.onInsert = onInsert
	r.mu.Unlock()

	err := r.feed.SubscribeMessageInserts(r.subKey, func(data []byte) {
		var ev feed.MessageInsert
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[relay] bad message event: %v", err)
			return
		}
		r.handleInsert(ev)
	})
	if err != nil {
		r.mu.Lock()
		r.active = false
		r.onInsert = nil
		r.mu.Unlock()
		return nil, err
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if err := r.feed.Unsubscribe(r.subKey); err != nil {
				log.Printf("[relay] unsubscribe: %v", err)
			}
			r.mu.Lock()
			r.active = false
			r.onInsert = nil
			r.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

// Err reports the feed's connection state, non-nil when a resubscribe is
// needed.
func (r *Relay) Err() error {
	return r.feed.LastError()
}

func (r *Relay) handleInsert(ev feed.MessageInsert) {
	ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
	msg, err := r.store.GetByID(ctx, ev.ID)
	cancel()
	if err != nil {
		// Degrade, don't drop: deliver the raw fields with a placeholder
		// author so the room reflects the message promptly.
		log.Printf("[relay] enrichment failed for message %s: %v", ev.ID, err)
		metrics.EnrichmentFailuresTotal.Inc()
		msg = Message{
			ID:        ev.ID,
			Content:   ev.Content,
			AuthorID:  ev.AuthorID,
			CreatedAt: time.UnixMilli(ev.CreatedAt),
			Author:    Author{Email: PlaceholderEmail, Role: PlaceholderRole},
		}
	}

	r.mu.Lock()
	notify := r.onInsert
	if !r.active {
		notify = nil
	}
	r.mu.Unlock()

	if notify != nil {
		notify(msg)
	}
}

// FetchRecent returns up to limit messages in ascending creation-time order.
// The backing query returns newest-first; the relay reverses locally so
// callers never depend on the store's native sort.
func (r *Relay) FetchRecent(ctx context.Context, limit int) ([]Message, error) {
	msgs, err := r.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Send validates, persists, and announces a new message. It returns as soon
// as the insert succeeds and the event is published — the sender sees its
// own message through the subscription path, not through this return value.
func (r *Relay) Send(ctx context.Context, sess *auth.Session, content string) (Message, error) {
	if !sess.Active() {
		return Message{}, ErrUnauthenticated
	}
	content = strings.TrimSpace(content)
	if err := ValidateContent(content); err != nil {
		return Message{}, err
	}

	if r.screener != nil {
		if blocked, term := r.screener.Screen(content); blocked {
			log.Printf("[relay] blocked message from %s (matched %q)", sess.UserID, term)
			return Message{}, ErrBlockedContent
		}
	}

	if r.muter != nil {
		muted, err := r.muter.IsMuted(ctx, sess.UserID)
		if err != nil {
			log.Printf("[relay] mute check failed for %s: %v", sess.UserID, err)
		} else if muted {
			return Message{}, ErrMuted
		}
	}

	if r.limiter != nil {
		allowed, err := r.limiter.Allow(ctx, sess.UserID)
		if err != nil {
			log.Printf("[relay] rate limit check failed for %s: %v", sess.UserID, err)
		}
		if !allowed {
			return Message{}, ErrRateLimited
		}
	}

	if r.sanitizer != nil {
		content = r.sanitizer.Sanitize(content)
		if strings.TrimSpace(content) == "" {
			return Message{}, ErrEmptyContent
		}
	}

	msg, err := r.store.Insert(ctx, sess.UserID, content)
	if err != nil {
		return Message{}, err
	}

	data, err := json.Marshal(feed.MessageInsert{
		ID:        msg.ID,
		Content:   msg.Content,
		AuthorID:  msg.AuthorID,
		CreatedAt: msg.CreatedAt.UnixMilli(),
	})
	if err != nil {
		log.Printf("[relay] marshal insert event: %v", err)
		return msg, nil
	}
	if err := r.feed.PublishMessageInsert(data); err != nil {
		log.Printf("[relay] publish insert event for %s: %v", msg.ID, err)
	}
	return msg, nil
}

// Delete hard-deletes a message. Only the author or an admin may delete;
// consumers drop the entry from local state after this returns success.
func (r *Relay) Delete(ctx context.Context, sess *auth.Session, id string) error {
	if !sess.Active() {
		return ErrUnauthenticated
	}

	authorID, err := r.store.AuthorOf(ctx, id)
	if err != nil {
		return err
	}
	if authorID != sess.UserID && !sess.IsAdmin() {
		return ErrForbidden
	}

	return r.store.Delete(ctx, id)
}
