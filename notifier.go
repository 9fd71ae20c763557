package gatt

import "sync"

// A Subscription is one handler registered on a Channel.
type Subscription struct {
	h      NotificationHandler
	donemu sync.RWMutex
	done   bool
}

// Done reports whether the subscription has been removed.
func (s *Subscription) Done() bool {
	s.donemu.RLock()
	done := s.done
	s.donemu.RUnlock()
	return done
}

func (s *Subscription) stop() {
	s.donemu.Lock()
	s.done = true
	s.donemu.Unlock()
}

// notifier fans notifications of one characteristic out to its subscriptions.
type notifier struct {
	mu   sync.RWMutex
	subs []*Subscription
}

func (n *notifier) add(h NotificationHandler) *Subscription {
	s := &Subscription{h: h}
	n.mu.Lock()
	n.subs = append(n.subs, s)
	n.mu.Unlock()
	return s
}

// remove drops s and reports how many subscriptions remain.
func (n *notifier) remove(s *Subscription) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, x := range n.subs {
		if x == s {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			s.stop()
			break
		}
	}
	return len(n.subs)
}

func (n *notifier) len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func (n *notifier) notify(b []byte) {
	n.mu.RLock()
	subs := make([]*Subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	data := append([]byte(nil), b...)
	for _, s := range subs {
		if s.Done() {
			continue
		}
		s.h(data)
	}
}
