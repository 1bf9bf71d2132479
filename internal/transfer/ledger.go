package transfer

import "sync"

// Ledger holds the pending accept/reject decision for each offered file.
// Every entry resolves exactly once.
type Ledger struct {
	mu      sync.Mutex
	pending map[string]chan bool
	closed  bool
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{pending: make(map[string]chan bool)}
}

// Await registers id and returns a channel that yields the decision.
// After RejectAll, the returned channel yields false immediately.
func (l *Ledger) Await(id string) <-chan bool {
	decision := make(chan bool, 1)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		decision <- false
		close(decision)
		return decision
	}
	l.pending[id] = decision
	return decision
}

// Resolve delivers the decision for id. It reports false when id is unknown
// or already resolved.
func (l *Ledger) Resolve(id string, accepted bool) bool {
	l.mu.Lock()
	decision, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	l.mu.Unlock()

	if !ok {
		return false
	}
	decision <- accepted
	close(decision)
	return true
}

// RejectAll resolves every pending entry to false and refuses new ones.
func (l *Ledger) RejectAll() {
	l.mu.Lock()
	pending := l.pending
	l.pending = make(map[string]chan bool)
	l.closed = true
	l.mu.Unlock()

	for _, decision := range pending {
		decision <- false
		close(decision)
	}
}

// Len returns the number of unresolved entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
