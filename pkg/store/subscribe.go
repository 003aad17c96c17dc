package store

import "sync"

// Subscribe registers l to be called with every new snapshot. Listeners run
// on the writing goroutine after the swap, outside the write lock, so they may
// read from or write to the store. The returned function unsubscribes; it is
// safe to call more than once.
func (s *Store) Subscribe(l Listener) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = l
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Subscribers returns the number of registered listeners
func (s *Store) Subscribers() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subs)
}

func (s *Store) notify(snap *Snapshot) {
	s.subMu.RLock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		listeners = append(listeners, l)
	}
	s.subMu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}
