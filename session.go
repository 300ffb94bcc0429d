package relay

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bt-bridge/interpreter-relay/shared"
	"github.com/google/uuid"
)

type SessionState int

const (
	SessionStateIdle SessionState = iota
	SessionStateConnecting
	SessionStateActive
	SessionStateSummarizing
	SessionStateClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "idle"
	case SessionStateConnecting:
		return "connecting"
	case SessionStateActive:
		return "active"
	case SessionStateSummarizing:
		return "summarizing"
	case SessionStateClosed:
		return "closed"
	}
	return "unknown"
}

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

type Utterance struct {
	Role Role
	Text string
	At   time.Time
}

// Session is the per-connection record: one client socket, at most one
// upstream connection, and the conversation so far. It is owned by a single
// relay; the mutex covers the upstream read goroutine of the same session,
// never another session.
type Session struct {
	id string

	mu          sync.Mutex
	state       SessionState
	history     []Utterance
	lastDoctor  string
	lastPatient string
}

func NewSession() *Session {
	return &Session{
		id:    uuid.NewString(),
		state: SessionStateIdle,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) BeginConnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionStateIdle:
		s.state = SessionStateConnecting
		return nil
	case SessionStateClosed:
		return shared.ErrSessionClosed
	default:
		return shared.ErrUpstreamActive
	}
}

func (s *Session) MarkActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStateConnecting {
		return fmt.Errorf("marking session active from state %s", s.state)
	}
	s.state = SessionStateActive
	return nil
}

func (s *Session) BeginSummary() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionStateActive:
		s.state = SessionStateSummarizing
		return nil
	case SessionStateSummarizing:
		return shared.ErrSummaryInProgress
	case SessionStateClosed:
		return shared.ErrSessionClosed
	default:
		return shared.ErrUpstreamNotReady
	}
}

func (s *Session) EndSummary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionStateSummarizing {
		s.state = SessionStateActive
	}
}

// Close is reachable from every state and is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionStateClosed
}

// Append records a finished utterance. Only doctor-role input moves the
// last-doctor pointer; only the repeat path reads it.
func (s *Session) Append(role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Utterance{Role: role, Text: text, At: time.Now()})
	switch role {
	case RoleDoctor:
		s.lastDoctor = text
	case RolePatient:
		s.lastPatient = text
	}
}

func (s *Session) LastDoctor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDoctor
}

func (s *Session) LastPatient() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPatient
}

func (s *Session) History() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Utterance, len(s.history))
	copy(out, s.history)
	return out
}

// TranscriptText renders the utterance log for the summary prompt, one
// "role: text" line per utterance.
func (s *Session) TranscriptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, u := range s.history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(u.Role))
		b.WriteString(": ")
		b.WriteString(u.Text)
	}
	return b.String()
}
