package relay

import (
	"testing"

	"github.com/bt-bridge/interpreter-relay/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, SessionStateIdle, s.State())

	require.NoError(t, s.BeginConnect())
	assert.Equal(t, SessionStateConnecting, s.State())
	assert.ErrorIs(t, s.BeginConnect(), shared.ErrUpstreamActive)

	require.NoError(t, s.MarkActive())
	assert.Equal(t, SessionStateActive, s.State())

	require.NoError(t, s.BeginSummary())
	assert.Equal(t, SessionStateSummarizing, s.State())
	assert.ErrorIs(t, s.BeginSummary(), shared.ErrSummaryInProgress)
	s.EndSummary()
	assert.Equal(t, SessionStateActive, s.State())

	s.Close()
	assert.Equal(t, SessionStateClosed, s.State())
	assert.ErrorIs(t, s.BeginConnect(), shared.ErrSessionClosed)
	assert.ErrorIs(t, s.BeginSummary(), shared.ErrSessionClosed)
	// Idempotent.
	s.Close()
	assert.Equal(t, SessionStateClosed, s.State())
}

func TestSessionCloseReachableFromAnyState(t *testing.T) {
	fresh := NewSession()
	fresh.Close()
	assert.Equal(t, SessionStateClosed, fresh.State())

	connecting := NewSession()
	require.NoError(t, connecting.BeginConnect())
	connecting.Close()
	assert.Equal(t, SessionStateClosed, connecting.State())

	summarizing := NewSession()
	require.NoError(t, summarizing.BeginConnect())
	require.NoError(t, summarizing.MarkActive())
	require.NoError(t, summarizing.BeginSummary())
	summarizing.Close()
	assert.Equal(t, SessionStateClosed, summarizing.State())
}

func TestSessionSummaryRequiresActive(t *testing.T) {
	s := NewSession()
	assert.ErrorIs(t, s.BeginSummary(), shared.ErrUpstreamNotReady)
}

func TestSessionLastDoctorPointer(t *testing.T) {
	s := NewSession()
	assert.Empty(t, s.LastDoctor())

	s.Append(RoleDoctor, "How are you feeling?")
	s.Append(RolePatient, "Me duele la cabeza.")
	assert.Equal(t, "How are you feeling?", s.LastDoctor())
	assert.Equal(t, "Me duele la cabeza.", s.LastPatient())

	// Only doctor input moves the pointer.
	s.Append(RolePatient, "Desde ayer.")
	assert.Equal(t, "How are you feeling?", s.LastDoctor())

	s.Append(RoleDoctor, "Take ibuprofen twice a day.")
	assert.Equal(t, "Take ibuprofen twice a day.", s.LastDoctor())

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, RoleDoctor, history[0].Role)
	assert.False(t, history[0].At.IsZero())
}

func TestSessionHistoryReturnsCopy(t *testing.T) {
	s := NewSession()
	s.Append(RoleDoctor, "Hello")
	history := s.History()
	history[0].Text = "tampered"
	assert.Equal(t, "Hello", s.History()[0].Text)
}

func TestSessionTranscriptText(t *testing.T) {
	s := NewSession()
	assert.Empty(t, s.TranscriptText())

	s.Append(RoleDoctor, "How are you?")
	s.Append(RolePatient, "Bien, gracias.")
	assert.Equal(t, "doctor: How are you?\npatient: Bien, gracias.", s.TranscriptText())
}
