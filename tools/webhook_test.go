package tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bt-bridge/interpreter-relay/shared"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookRecorder struct {
	mu     sync.Mutex
	bodies [][]byte
	status int
}

func (w *webhookRecorder) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.mu.Lock()
		w.bodies = append(w.bodies, body)
		status := w.status
		w.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		rw.WriteHeader(status)
	}
}

func (w *webhookRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies)
}

func (w *webhookRecorder) body(t *testing.T, i int) map[string]any {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	require.Greater(t, len(w.bodies), i)
	var m map[string]any
	require.NoError(t, sonic.Unmarshal(w.bodies[i], &m))
	return m
}

func newTestDispatcher(t *testing.T, url string) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(shared.NewNopLogger(), url)
	require.NoError(t, err)
	d.now = func() time.Time { return time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC) }
	return d
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(nil, "https://example.com")
	assert.ErrorIs(t, err, shared.ErrNoLogger)
	_, err = NewDispatcher(shared.NewNopLogger(), "")
	assert.ErrorIs(t, err, shared.ErrNoWebhookURL)
}

func TestExecuteScheduleFollowUp(t *testing.T) {
	rec := &webhookRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()
	d := newTestDispatcher(t, ts.URL)

	result, err := d.Execute(context.Background(), ActionScheduleFollowUp, map[string]any{
		"patientName": "Maria Lopez",
		"date":        "2026-09-01",
		"reason":      "Blood pressure check",
	})
	require.NoError(t, err)

	// Exactly one POST, body matching the validated payload.
	require.Equal(t, 1, rec.count())
	body := rec.body(t, 0)
	assert.Equal(t, "schedule_follow_up", body["action"])
	assert.Equal(t, "Maria Lopez", body["patient_name"])
	assert.Equal(t, "2026-09-01", body["appointment_date"])
	assert.Equal(t, "Blood pressure check", body["reason"])
	assert.Equal(t, "2026-08-24T10:30:00Z", body["timestamp"])

	assert.Equal(t, true, result["success"])
	assert.True(t, strings.HasPrefix(result["appointmentId"].(string), "APPT-"))
	assert.EqualValues(t, http.StatusOK, result["webhookResponse"])
	assert.Contains(t, result["message"], "Maria Lopez")
}

func TestExecuteSendLabOrder(t *testing.T) {
	rec := &webhookRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()
	d := newTestDispatcher(t, ts.URL)

	result, err := d.Execute(context.Background(), ActionSendLabOrder, map[string]any{
		"patientName": "Maria Lopez",
		"testType":    "CBC",
	})
	require.NoError(t, err)

	require.Equal(t, 1, rec.count())
	body := rec.body(t, 0)
	assert.Equal(t, "send_lab_order", body["action"])
	assert.Equal(t, "CBC", body["test_type"])
	assert.Equal(t, "routine", body["urgency"])

	assert.Equal(t, true, result["success"])
	assert.True(t, strings.HasPrefix(result["orderId"].(string), "LAB-"))
}

func TestExecuteMissingFieldNeverReachesWebhook(t *testing.T) {
	rec := &webhookRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()
	d := newTestDispatcher(t, ts.URL)

	_, err := d.Execute(context.Background(), ActionScheduleFollowUp, map[string]any{
		"patientName": "Maria Lopez",
	})
	assert.ErrorContains(t, err, "appointment date is required")
	assert.Zero(t, rec.count())

	_, err = d.Execute(context.Background(), ActionSendLabOrder, map[string]any{
		"testType": "CBC",
	})
	assert.ErrorContains(t, err, "patient name is required")
	assert.Zero(t, rec.count())
}

func TestExecuteUnknownAction(t *testing.T) {
	rec := &webhookRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()
	d := newTestDispatcher(t, ts.URL)

	_, err := d.Execute(context.Background(), "reboot_patient", map[string]any{})
	assert.ErrorIs(t, err, shared.ErrUnknownTool)
	assert.Zero(t, rec.count())
}

func TestExecuteWebhookStatusRecordedNotInterpreted(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusInternalServerError}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()
	d := newTestDispatcher(t, ts.URL)

	result, err := d.Execute(context.Background(), ActionSendLabOrder, map[string]any{
		"patientName": "Maria Lopez",
		"testType":    "CBC",
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["success"])
	assert.EqualValues(t, http.StatusInternalServerError, result["webhookResponse"])
}

func TestExecuteDeliveryFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	d := newTestDispatcher(t, url)

	_, err := d.Execute(context.Background(), ActionSendLabOrder, map[string]any{
		"patientName": "Maria Lopez",
		"testType":    "CBC",
	})
	assert.ErrorContains(t, err, "delivering send_lab_order webhook")
}
