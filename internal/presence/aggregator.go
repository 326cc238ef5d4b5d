// Package presence maintains the "currently typing" indicator for the shared
// chat room. It converts the raw stream of typing insert-events into a
// stable, deduplicated, self-expiring set of user identifiers, and debounces
// the local user's own keystroke activity before it is emitted upstream.
//
// There is no "stopped typing" event anywhere in the system: a user stops
// typing when the room simply stops hearing from them. The sender refreshes
// its signal on every keystroke with a 1.5s debounce window, and every
// receiver independently evicts entries that have been silent for 3s. The
// asymmetry is deliberate: under normal network latency the indicator does
// not flicker off between keystrokes.
package presence

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/recetario/recipe-app/internal/feed"
)

const (
	// InactivityThreshold is how long a user may stay silent before their
	// typing signal is evicted.
	InactivityThreshold = 3 * time.Second

	// SweepInterval is how often the aggregator scans for stale signals.
	SweepInterval = 1 * time.Second
)

// ErrAlreadySubscribed is returned when Subscribe is called on an aggregator
// that already has an active subscription. Re-subscribing without first
// unsubscribing would duplicate event delivery.
var ErrAlreadySubscribed = errors.New("presence: aggregator already subscribed")

// TypingFeed is the slice of the change feed the aggregator consumes.
// *feed.Client satisfies it.
type TypingFeed interface {
	SubscribeTypingInserts(key string, handler func(data []byte)) error
	Unsubscribe(key string) error
	LastError() error
}

// Aggregator derives the set of currently-typing user identifiers from
// typing insert-events. The set is held only in memory; signals are
// refreshed on repeated events and evicted by a periodic sweep once their
// age exceeds InactivityThreshold.
type Aggregator struct {
	feed   TypingFeed
	subKey string

	sweepEvery time.Duration
	maxIdle    time.Duration
	now        func() time.Time

	mu       sync.Mutex
	signals  map[string]time.Time // user ID -> last seen
	onChange func(userIDs []string)
	active   bool
	done     chan struct{}
}

// NewAggregator creates an aggregator reading from the given feed. The
// subKey identifies this consumer's subscription on the feed.
func NewAggregator(f TypingFeed, subKey string) *Aggregator {
	return &Aggregator{
		feed:       f,
		subKey:     subKey,
		sweepEvery: SweepInterval,
		maxIdle:    InactivityThreshold,
		now:        time.Now,
		signals:    make(map[string]time.Time),
	}
}

// Subscribe attaches the aggregator to the typing feed and starts the
// periodic sweep. onChange is invoked with the sorted set of currently-typing
// user IDs whenever the set's membership actually changes — a new user
// appearing or a stale one being evicted — never on a mere timestamp refresh.
//
// The returned unsubscribe function stops the sweep, releases the feed
// subscription, and clears all in-memory state. It is idempotent; events
// delivered after teardown are dropped without invoking the callback.
func (a *Aggregator) Subscribe(onChange func(userIDs []string)) (func(), error) {
	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	a.active = true
	a.onChange = onChange
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	err := a.feed.SubscribeTypingInserts(a.subKey, func(data []byte) {
		var ev feed.TypingInsert
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[presence] bad typing event: %v", err)
			return
		}
		a.handleInsert(ev)
	})
	if err != nil {
		a.mu.Lock()
		a.active = false
		a.onChange = nil
		a.mu.Unlock()
		return nil, err
	}

	go a.sweepLoop(done)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			if err := a.feed.Unsubscribe(a.subKey); err != nil {
				log.Printf("[presence] unsubscribe: %v", err)
			}
			a.mu.Lock()
			a.active = false
			a.onChange = nil
			a.signals = make(map[string]time.Time)
			a.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

// Err reports the feed's connection state. A non-nil error means the feed is
// failed or closed and the caller should unsubscribe and resubscribe on a
// fresh client.
func (a *Aggregator) Err() error {
	return a.feed.LastError()
}

// Typing returns a snapshot of the currently-typing user IDs, sorted.
func (a *Aggregator) Typing() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLocked()
}

func (a *Aggregator) sweepLoop(done chan struct{}) {
	ticker := time.NewTicker(a.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

// handleInsert records or refreshes a typing signal. Only the appearance of
// a new user changes membership and triggers a notification; a refresh bumps
// the timestamp silently.
func (a *Aggregator) handleInsert(ev feed.TypingInsert) {
	if ev.AuthorID == "" {
		return
	}

	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	_, known := a.signals[ev.AuthorID]
	a.signals[ev.AuthorID] = a.now()

	var notify func([]string)
	var current []string
	if !known {
		notify = a.onChange
		current = a.currentLocked()
	}
	a.mu.Unlock()

	if notify != nil {
		notify(current)
	}
}

// sweep evicts every signal whose age meets or exceeds the inactivity
// threshold and notifies if any eviction occurred.
func (a *Aggregator) sweep() {
	now := a.now()

	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}

	evicted := false
	for id, last := range a.signals {
		if now.Sub(last) >= a.maxIdle {
			delete(a.signals, id)
			evicted = true
		}
	}

	var notify func([]string)
	var current []string
	if evicted {
		notify = a.onChange
		current = a.currentLocked()
	}
	a.mu.Unlock()

	if notify != nil {
		notify(current)
	}
}

func (a *Aggregator) currentLocked() []string {
	ids := make([]string, 0, len(a.signals))
	for id := range a.signals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
