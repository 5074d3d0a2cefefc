package domain

import "sync"

// Signal is a synchronous, single-owner notification channel. The zero value is
// ready to use. Dispatch delivers to the subscribers present when it starts;
// listeners added during a dispatch are first notified by the next one.
type Signal[T any] struct {
	subs     []*listener[T]
	disposed bool
	guard    func(T) bool
}

type listener[T any] struct {
	fn     func(T)
	active bool
}

// Listen subscribes fn and returns the handle that releases it. Listening on a
// disposed signal returns an already released handle.
func (s *Signal[T]) Listen(fn func(T)) *Subscription {
	if s.disposed || fn == nil {
		return releasedSubscription()
	}
	l := &listener[T]{fn: fn, active: true}
	s.subs = append(s.subs, l)
	return newSubscription(func() {
		l.active = false
		for i, cur := range s.subs {
			if cur == l {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				break
			}
		}
	})
}

// SetGuard installs a predicate consulted before each dispatch. A guard
// returning false suppresses the dispatch. Pass nil to remove it.
func (s *Signal[T]) SetGuard(guard func(T) bool) {
	s.guard = guard
}

// Dispatch delivers payload to the current subscribers. It is a no-op once the
// signal is disposed.
func (s *Signal[T]) Dispatch(payload T) {
	if s.disposed || len(s.subs) == 0 {
		return
	}
	if s.guard != nil && !s.guard(payload) {
		return
	}
	snapshot := make([]*listener[T], len(s.subs))
	copy(snapshot, s.subs)
	for _, l := range snapshot {
		if l.active {
			l.fn(payload)
		}
	}
}

// Dispose detaches every subscriber and turns further dispatches into no-ops.
func (s *Signal[T]) Dispose() {
	for _, l := range s.subs {
		l.active = false
	}
	s.subs = nil
	s.guard = nil
	s.disposed = true
}

// Disposed reports whether Dispose has been called.
func (s *Signal[T]) Disposed() bool { return s.disposed }

// Len reports the number of live subscribers.
func (s *Signal[T]) Len() int { return len(s.subs) }

// Subscription is a handle to one listener. Release is idempotent.
type Subscription struct {
	once    sync.Once
	release func()
	done    bool
}

func newSubscription(release func()) *Subscription {
	return &Subscription{release: release}
}

func releasedSubscription() *Subscription {
	s := &Subscription{done: true}
	s.once.Do(func() {})
	return s
}

// Release unsubscribes the listener.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.done = true
		if s.release != nil {
			s.release()
		}
	})
}

// Active reports whether the listener is still subscribed.
func (s *Subscription) Active() bool { return s != nil && !s.done }

// SubscriptionGroup owns a set of subscriptions released together when the
// subscriber tears down.
type SubscriptionGroup struct {
	subs []*Subscription
}

// Track adds sub to the group and returns it.
func (g *SubscriptionGroup) Track(sub *Subscription) *Subscription {
	if sub != nil {
		g.subs = append(g.subs, sub)
	}
	return sub
}

// Close releases every tracked subscription. The group can be reused.
func (g *SubscriptionGroup) Close() {
	for _, sub := range g.subs {
		sub.Release()
	}
	g.subs = nil
}

// Len reports how many subscriptions are tracked.
func (g *SubscriptionGroup) Len() int { return len(g.subs) }
