package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

const (
	DefaultTTL      = 3 * time.Second
	DefaultCapacity = 20
)

type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Notifier queues toasts for one session. When full, the oldest toast is
// dropped.
type Notifier struct {
	mu    sync.Mutex
	ttl   time.Duration
	cap   int
	now   func() time.Time
	queue []Notification
}

type Option func(*Notifier)

func WithClock(now func() time.Time) Option { return func(n *Notifier) { n.now = now } }

func WithCapacity(c int) Option {
	return func(n *Notifier) {
		if c > 0 {
			n.cap = c
		}
	}
}

func New(ttl time.Duration, opts ...Option) *Notifier {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	n := &Notifier{ttl: ttl, cap: DefaultCapacity, now: time.Now}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Notifier) Push(level Level, message string) Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	t := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(n.ttl),
	}
	n.queue = append(n.prune(now), t)
	if over := len(n.queue) - n.cap; over > 0 {
		n.queue = n.queue[over:]
	}
	return t
}

func (n *Notifier) Active() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = n.prune(n.now())
	out := make([]Notification, len(n.queue))
	copy(out, n.queue)
	return out
}

// Drain returns the unexpired toasts and empties the queue.
func (n *Notifier) Drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.prune(n.now())
	n.queue = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

func (n *Notifier) prune(now time.Time) []Notification {
	kept := n.queue[:0]
	for _, t := range n.queue {
		if now.Before(t.ExpiresAt) {
			kept = append(kept, t)
		}
	}
	return kept
}
