package presence

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/recetario/recipe-app/internal/feed"
)

// DebounceWindow is the sender-side timer delay. It is intentionally shorter
// than the receivers' InactivityThreshold so the indicator survives the gap
// between keystrokes under normal network latency.
const DebounceWindow = 1500 * time.Millisecond

// TypingPublisher is the outbound slice of the change feed the debouncer
// emits on. *feed.Client satisfies it.
type TypingPublisher interface {
	PublishTypingInsert(data []byte) error
}

// Debouncer translates the local user's keystroke activity into typing
// insert-events. Each activity on a non-empty buffer publishes an event and
// resets the single pending timer; the timer firing does nothing — receivers
// infer "stopped typing" from silence on their own 3s threshold. Redundant
// events across repeated bursts are expected and harmless: receivers treat
// them as timestamp refreshes.
type Debouncer struct {
	pub      TypingPublisher
	authorID string
	window   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer creates a debouncer publishing typing signals for authorID.
func NewDebouncer(pub TypingPublisher, authorID string) *Debouncer {
	return &Debouncer{
		pub:      pub,
		authorID: authorID,
		window:   DebounceWindow,
		now:      time.Now,
	}
}

// Activity reports a character-level change to the local input buffer. A
// non-empty buffer publishes a typing insert-event and resets the pending
// timer; an empty buffer cancels the timer (local hygiene only — peers are
// not told about the stop).
func (d *Debouncer) Activity(buffer string) {
	if strings.TrimSpace(buffer) == "" {
		d.Cancel()
		return
	}
	d.Touch()
}

// Touch publishes a typing insert-event and resets the pending timer. It is
// the non-empty-buffer half of Activity, for callers that only learn "the
// buffer has content" without seeing the content itself.
func (d *Debouncer) Touch() {
	data, err := json.Marshal(feed.TypingInsert{
		AuthorID:  d.authorID,
		CreatedAt: d.now().UnixMilli(),
	})
	if err != nil {
		log.Printf("[presence] marshal typing event: %v", err)
		return
	}
	if err := d.pub.PublishTypingInsert(data); err != nil {
		log.Printf("[presence] publish typing event: %v", err)
	}

	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		// Inert on lapse: only release the handle.
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
	})
	d.mu.Unlock()
}

// Cancel stops the pending timer, if any. Called when the buffer is
// submitted as a message or becomes empty.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}

// Pending reports whether a debounce timer is currently armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
