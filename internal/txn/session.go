package txn

// Session collects the requests committed while it is open so they enter the
// history as one entry. Sessions nest: committing an inner session folds its
// requests into the enclosing one.
type Session struct {
	m        *Manager
	parent   *Session
	requests []Request
	closed   bool
}

// StartSession opens a session on top of any already open.
func (m *Manager) StartSession() *Session {
	s := &Session{m: m, parent: m.activeSession()}
	m.sessions = append(m.sessions, s)
	return s
}

// InSession reports whether a session is open.
func (m *Manager) InSession() bool { return m.activeSession() != nil }

func (m *Manager) activeSession() *Session {
	if len(m.sessions) == 0 {
		return nil
	}
	return m.sessions[len(m.sessions)-1]
}

func (m *Manager) popSession(s *Session) {
	for i := len(m.sessions) - 1; i >= 0; i-- {
		if m.sessions[i] == s {
			m.sessions = m.sessions[:i]
			return
		}
	}
}

// add records a committed request, letting the previous one absorb it when
// both are mergeable.
func (s *Session) add(r Request) {
	if n := len(s.requests); n > 0 {
		if mg, ok := s.requests[n-1].(Merger); ok && mg.Merge(r) {
			s.m.retire(r)
			return
		}
	}
	s.requests = append(s.requests, r)
}

// Requests returns the requests collected so far.
func (s *Session) Requests() []Request { return append([]Request(nil), s.requests...) }

// Active reports whether the session is still open.
func (s *Session) Active() bool { return !s.closed }

// Commit closes the session and hands its requests to the enclosing session,
// or to the history as one entry. A single request is kept as is; several are
// folded into a Composite. An empty session leaves no entry.
func (s *Session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.m.activeSession() != s {
		return s.m.rejectOrder("session commit", nil, StateCreated)
	}
	s.closed = true
	s.m.popSession(s)
	var r Request
	switch len(s.requests) {
	case 0:
		return nil
	case 1:
		r = s.requests[0]
	default:
		r = NewComposite(s.requests...)
		s.m.setState(r, StateCommitted)
	}
	if s.parent != nil {
		s.parent.add(r)
		return nil
	}
	s.m.push(r)
	return nil
}

// End aborts the session when it was not committed, undoing its requests in
// reverse order. It is safe to defer.
func (s *Session) End() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.m.popSession(s)
	var first error
	for i := len(s.requests) - 1; i >= 0; i-- {
		r := s.requests[i]
		if err := r.OnUndo(); err != nil && first == nil {
			first = err
		}
		s.m.dispose(r)
	}
	s.requests = nil
	return first
}
