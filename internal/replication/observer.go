package replication

import "sync"

// Subscription delivers working-set snapshots after each completed change.
// Caller must call Close() when done.
//
// The channel holds one snapshot. A slow reader skips intermediate snapshots
// but always ends up with the newest one.
type Subscription struct {
	updates chan Snapshot
	e       *Endpoint
	once    sync.Once
}

// Updates returns the snapshot channel. It is closed when the subscription or
// the endpoint is closed.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close removes the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.e.obsMu.Lock()
		defer s.e.obsMu.Unlock()
		if _, ok := s.e.observers[s]; ok {
			delete(s.e.observers, s)
			close(s.updates)
		}
	})
	return nil
}

// offer replaces any unread snapshot with snap. Caller holds obsMu.
func (s *Subscription) offer(snap Snapshot) {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}

// Subscribe registers an observer. The current snapshot is delivered
// immediately.
func (e *Endpoint) Subscribe() *Subscription {
	sub := &Subscription{updates: make(chan Snapshot, 1), e: e}

	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers[sub] = struct{}{}
	sub.updates <- *e.current.Load()
	return sub
}

// closeObservers closes every open subscription.
func (e *Endpoint) closeObservers() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	for sub := range e.observers {
		delete(e.observers, sub)
		close(sub.updates)
	}
}
