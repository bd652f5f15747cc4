package chat

import (
	"sync"
	"time"
)

// Entry is one line of the conversation as this participant saw it
type Entry struct {
	SenderID   string
	Content    string
	Self       bool
	ReceivedAt time.Time
}

// Log is the append-only, arrival-ordered chat history of one participant.
// Nothing is persisted.
type Log struct {
	mu        sync.RWMutex
	entries   []Entry
	listeners []chan Entry
}

func NewLog() *Log {
	return &Log{}
}

// Append adds e and fans it out to subscribers. A subscriber that is not
// keeping up misses the entry; the log itself always keeps it.
func (l *Log) Append(e Entry) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	for _, ch := range l.listeners {
		select {
		case ch <- e:
		default:
		}
	}
}

// Entries returns a copy of the history
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe returns a channel that receives new entries
func (l *Log) Subscribe() <-chan Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Entry, 16)
	l.listeners = append(l.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe
func (l *Log) Unsubscribe(ch <-chan Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, listener := range l.listeners {
		if listener == ch {
			close(listener)
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			return
		}
	}
}
