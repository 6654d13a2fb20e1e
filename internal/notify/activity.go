package notify

import "sync"

// Activity keeps the most recent events in a fixed-size ring.
type Activity struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

func NewActivity(size int) *Activity {
	if size <= 0 {
		size = 50
	}
	return &Activity{events: make([]Event, size)}
}

func (a *Activity) Push(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events[a.next] = e
	a.next = (a.next + 1) % len(a.events)
	if a.next == 0 {
		a.full = true
	}
}

// Recent returns the held events, newest first.
func (a *Activity) Recent() []Event {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := a.next
	if a.full {
		n = len(a.events)
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, a.events[(a.next-i+len(a.events))%len(a.events)])
	}
	return out
}
