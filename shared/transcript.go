package shared

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

type StringWriteCloser interface {
	io.Closer
	io.StringWriter
}

type WriteCloser struct {
	w io.WriteCloser
}

func NewWriteCloser(w io.WriteCloser) StringWriteCloser {
	if w == nil {
		return nil
	}
	return &WriteCloser{w: w}
}

func (wc *WriteCloser) WriteString(s string) (n int, err error) {
	return wc.w.Write([]byte(s))
}

func (wc *WriteCloser) Close() error {
	return wc.w.Close()
}

// Transcript fans completed utterances out to one or more sinks, one line
// per utterance. Sinks are written in registration order under a single
// lock, so lines from concurrent sessions never interleave mid-line.
type Transcript struct {
	mu    sync.Mutex
	hooks []StringWriteCloser
	now   func() time.Time
}

func NewTranscript(hooks ...StringWriteCloser) (*Transcript, error) {
	if len(hooks) == 0 {
		return nil, errors.New("no hook provided")
	}
	for _, hook := range hooks {
		if hook == nil {
			return nil, errors.New("a nil pointed hook is given")
		}
	}
	return &Transcript{hooks: hooks, now: time.Now}, nil
}

func (t *Transcript) Record(sessionID, role, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	line := fmt.Sprintf("%s %s [%s] %s\n", t.now().Format(time.RFC3339), sessionID, role, text)
	for _, hook := range t.hooks {
		if _, err := hook.WriteString(line); err != nil {
			return fmt.Errorf("on writing to hook: %w", err)
		}
	}
	return nil
}

func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, hook := range t.hooks {
		if err := hook.Close(); err != nil {
			return fmt.Errorf("on closing hook: %w", err)
		}
	}
	return nil
}
