package availability

import "sync"

// Fence discards results of superseded requests. Each Begin supersedes every
// earlier ticket, whether or not the key changed.
type Fence struct {
	mu  sync.Mutex
	gen uint64
	key string
}

// Ticket identifies one in-flight request.
type Ticket struct {
	Key string
	gen uint64
}

// Begin registers a new request for key and returns its ticket.
func (f *Fence) Begin(key string) Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.key = key
	return Ticket{Key: key, gen: f.gen}
}

// Valid reports whether t is still the most recent request.
func (f *Fence) Valid(t Ticket) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return t.gen == f.gen && t.Key == f.key
}

// Invalidate drops every outstanding ticket.
func (f *Fence) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.key = ""
}

// CurrentKey is the key of the most recent request, empty after Invalidate.
func (f *Fence) CurrentKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}
