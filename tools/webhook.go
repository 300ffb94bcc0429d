package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/bt-bridge/interpreter-relay/shared"
	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Dispatcher validates tool-call arguments and delivers each accepted call
// to the configured webhook as a single best-effort POST. There is no retry,
// no idempotency key, no queue: a failed delivery is logged and reported.
type Dispatcher struct {
	logger     shared.LoggerAdapter
	webhookURL string
	now        func() time.Time
}

func NewDispatcher(logger shared.LoggerAdapter, webhookURL string) (*Dispatcher, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if webhookURL == "" {
		return nil, shared.ErrNoWebhookURL
	}
	return &Dispatcher{
		logger:     logger,
		webhookURL: webhookURL,
		now:        time.Now,
	}, nil
}

// Execute runs one tool call. The returned map is the function result fed
// back to the upstream service and echoed to the client in action_executed.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case ActionScheduleFollowUp:
		return d.scheduleFollowUp(ctx, args)
	case ActionSendLabOrder:
		return d.sendLabOrder(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownTool, name)
	}
}

func (d *Dispatcher) scheduleFollowUp(ctx context.Context, args map[string]any) (map[string]any, error) {
	params, err := ParseFollowUp(args)
	if err != nil {
		return nil, fmt.Errorf("validating %s arguments: %w", ActionScheduleFollowUp, err)
	}
	body := map[string]any{
		"action":           ActionScheduleFollowUp,
		"patient_name":     params.PatientName,
		"appointment_date": params.Date,
		"reason":           params.Reason,
		"timestamp":        d.now().Format(time.RFC3339),
	}
	status, err := d.deliver(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("delivering %s webhook: %w", ActionScheduleFollowUp, err)
	}
	d.logger.Info(
		"follow-up appointment scheduled",
		zap.String("patient", params.PatientName),
		zap.String("date", params.Date),
		zap.Int("webhookStatus", status),
	)
	return map[string]any{
		"success":         true,
		"message":         fmt.Sprintf("Follow-up appointment scheduled for %s on %s for %s", params.PatientName, params.Date, params.Reason),
		"appointmentId":   fmt.Sprintf("APPT-%d", d.now().Unix()),
		"webhookResponse": status,
	}, nil
}

func (d *Dispatcher) sendLabOrder(ctx context.Context, args map[string]any) (map[string]any, error) {
	params, err := ParseLabOrder(args)
	if err != nil {
		return nil, fmt.Errorf("validating %s arguments: %w", ActionSendLabOrder, err)
	}
	body := map[string]any{
		"action":       ActionSendLabOrder,
		"patient_name": params.PatientName,
		"test_type":    params.TestType,
		"urgency":      params.Urgency,
		"timestamp":    d.now().Format(time.RFC3339),
	}
	status, err := d.deliver(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("delivering %s webhook: %w", ActionSendLabOrder, err)
	}
	d.logger.Info(
		"lab order sent",
		zap.String("patient", params.PatientName),
		zap.String("testType", params.TestType),
		zap.Int("webhookStatus", status),
	)
	return map[string]any{
		"success":         true,
		"message":         fmt.Sprintf("Lab order for %s sent for %s with %s urgency", params.TestType, params.PatientName, params.Urgency),
		"orderId":         fmt.Sprintf("LAB-%d", d.now().Unix()),
		"webhookResponse": status,
	}, nil
}

// deliver POSTs the payload and returns the response status. The status is
// recorded but never interpreted.
func (d *Dispatcher) deliver(ctx context.Context, body map[string]any) (int, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(d.webhookURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	errC := make(chan error)
	go func() {
		defer close(errC)
		errC <- fasthttp.Do(req, resp)
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case err := <-errC:
		if err != nil {
			return 0, fmt.Errorf("performing HTTP request: %w", err)
		}
	}
	d.logger.Debug("webhook responded", zap.Int("status", resp.StatusCode()))
	return resp.StatusCode(), nil
}
