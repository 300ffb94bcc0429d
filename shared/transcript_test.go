package shared

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferSink struct {
	bytes.Buffer
	closed bool
}

func (b *bufferSink) WriteString(s string) (int, error) { return b.Buffer.WriteString(s) }
func (b *bufferSink) Close() error                      { b.closed = true; return nil }

type failingSink struct{}

func (failingSink) WriteString(string) (int, error) { return 0, errors.New("sink full") }
func (failingSink) Close() error                    { return nil }

func TestNewTranscriptValidation(t *testing.T) {
	_, err := NewTranscript()
	assert.ErrorContains(t, err, "no hook provided")

	_, err = NewTranscript(&bufferSink{}, nil)
	assert.ErrorContains(t, err, "nil pointed hook")
}

func TestTranscriptRecord(t *testing.T) {
	first := &bufferSink{}
	second := &bufferSink{}
	tr, err := NewTranscript(first, second)
	require.NoError(t, err)
	tr.now = func() time.Time { return time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC) }

	require.NoError(t, tr.Record("abc123", "doctor", "How are you feeling?"))
	require.NoError(t, tr.Record("abc123", "patient", "Me duele la cabeza."))

	want := "2026-08-24T10:30:00Z abc123 [doctor] How are you feeling?\n" +
		"2026-08-24T10:30:00Z abc123 [patient] Me duele la cabeza.\n"
	assert.Equal(t, want, first.String())
	assert.Equal(t, want, second.String())
}

func TestTranscriptRecordHookFailure(t *testing.T) {
	tr, err := NewTranscript(failingSink{})
	require.NoError(t, err)
	assert.ErrorContains(t, tr.Record("abc123", "doctor", "Hello"), "on writing to hook")
}

func TestTranscriptClose(t *testing.T) {
	sink := &bufferSink{}
	tr, err := NewTranscript(sink)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	assert.True(t, sink.closed)
}

func TestWriteCloserWrapsWriter(t *testing.T) {
	assert.Nil(t, NewWriteCloser(nil))

	sink := &bufferSink{}
	wc := NewWriteCloser(nopWriteCloser{&sink.Buffer})
	n, err := wc.WriteString("line\n")
	require.NoError(t, err)
	assert.Equal(t, len("line\n"), n)
	assert.True(t, strings.HasSuffix(sink.String(), "line\n"))
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }
