package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bt-bridge/interpreter-relay/shared"
	"github.com/bt-bridge/interpreter-relay/tools"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	upstreamHandshakeTimeout = 10 * time.Second
	upstreamWriteTimeout     = 5 * time.Second
)

const sessionInstructions = `You are a Medical Interpreter facilitating communication between a Spanish-speaking patient and an English-speaking doctor. Your task is to translate audio inputs literally and perform specific actions when requested.`

const summaryInstructions = `Generate a concise summary of the medical conversation:
- Key medical issues discussed
- Recommendations or treatment plans
- Follow-up appointments needed
- Lab orders needed
- Urgent concerns`

func speechInstructions(lastDoctor string) string {
	base := `- Primary Tasks:
  - When given Spanish audio input, assume it's from the patient and translate it to English text verbatim, without adding your own interpretation.
  - When given English audio input, assume it's from the doctor and translate it to Spanish text verbatim, without adding your own interpretation.

- Additional Tasks:
  - If the patient says "repite eso" (Spanish for "repeat that"), repeat the doctor's most recent statement in Spanish, based on provided context.
  - If the doctor says "schedule followup appointment" or "send lab order", call the respective function (schedule_follow_up or send_lab_order) with appropriate arguments inferred from the conversation.
- Output Format: Always return a JSON object in this exact format: {"text": "<translated_text>", "role": "<patient or doctor>"}.
- Notes: Audio input language indicates the speaker (Spanish = patient, English = doctor) unless otherwise specified.`
	if lastDoctor == "" {
		return base
	}
	return base + fmt.Sprintf("\n- Context: the doctor's most recent statement was: %q.", lastDoctor)
}

// UpstreamHandlers receive decoded upstream events on the upstream read
// goroutine. OnServerError is a protocol-level error reported by the service
// (the session survives it); OnClosed fires once when the read loop ends.
type UpstreamHandlers struct {
	OnTextDelta    func(delta string)
	OnTextDone     func(text string)
	OnAudioDelta   func(delta string)
	OnAudioDone    func()
	OnFunctionCall func(name string, args map[string]any)
	OnServerError  func(message string)
	OnClosed       func(err error)
}

// Upstream is the session's view of its translation service connection.
type Upstream interface {
	ProcessSpeech(audioB64, lastDoctorText string) error
	GenerateSummary(transcript string) error
	SendFunctionResult(name string, result map[string]any) error
	Done() <-chan struct{}
	Close() error
}

// UpstreamDialer opens one upstream connection for one session.
type UpstreamDialer func(ctx context.Context, h UpstreamHandlers) (Upstream, error)

type UpstreamClient struct {
	logger shared.LoggerAdapter
	h      UpstreamHandlers

	mu   sync.Mutex
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelCauseFunc
}

var _ Upstream = (*UpstreamClient)(nil)

// DialUpstream connects to the realtime translation service, announces the
// interpreter session (instructions plus tool definitions) and starts the
// read loop. Callers own the returned client and must Close it.
func DialUpstream(ctx context.Context, logger shared.LoggerAdapter, apiKey, rawURL string, h UpstreamHandlers) (*UpstreamClient, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if apiKey == "" {
		return nil, shared.ErrNoAPIKey
	}
	if h.OnClosed == nil {
		return nil, shared.ErrNoHandlers
	}
	if rawURL == "" {
		rawURL = shared.DefaultUpstreamURL
	}

	dialer := websocket.Dialer{HandshakeTimeout: upstreamHandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	conn, _, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("dialing realtime API: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	c := &UpstreamClient{
		logger: logger,
		h:      h,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
	if err := c.sendJSON(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":   []string{"text"},
			"instructions": sessionInstructions,
			"voice":        "alloy",
			"tools":        tools.Definitions(),
			"tool_choice":  "auto",
		},
	}); err != nil {
		cancel(err)
		_ = conn.Close()
		return nil, fmt.Errorf("announcing session: %w", err)
	}
	go c.readLoop()
	c.logger.Info("connected to realtime API")
	return c, nil
}

func (c *UpstreamClient) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *UpstreamClient) Close() error {
	c.cancel(errors.New("upstream closed"))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	deadline := time.Now().Add(upstreamWriteTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *UpstreamClient) respectCtx() error {
	select {
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	default:
	}
	return nil
}

func (c *UpstreamClient) sendJSON(v map[string]any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return shared.ErrUpstreamNotReady
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(upstreamWriteTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *UpstreamClient) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			c.h.OnClosed(context.Cause(c.ctx))
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := c.respectCtx(); ctxErr != nil {
				// Close was deliberate.
				c.h.OnClosed(nil)
				return
			}
			c.logger.Error("reading from realtime API", err)
			c.cancel(err)
			c.h.OnClosed(err)
			return
		}
		c.dispatch(data)
	}
}

func (c *UpstreamClient) dispatch(data []byte) {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		c.logger.Error("can not unmarshal upstream event", err, zap.ByteString("data", data))
		return
	}
	eventType, _ := raw["type"].(string)
	c.logger.Trace("received upstream event", zap.String("type", eventType))
	switch eventType {
	case "response.text.delta":
		if v, ok := raw["delta"].(string); ok && c.h.OnTextDelta != nil {
			c.h.OnTextDelta(v)
		}
	case "response.text.done":
		if v, ok := raw["text"].(string); ok && c.h.OnTextDone != nil {
			c.h.OnTextDone(v)
		}
	case "response.audio.delta":
		if v, ok := raw["delta"].(string); ok && c.h.OnAudioDelta != nil {
			c.h.OnAudioDelta(v)
		}
	case "response.audio.done":
		if c.h.OnAudioDone != nil {
			c.h.OnAudioDone()
		}
	case "response.function_call_arguments.done":
		name, ok := raw["name"].(string)
		if !ok {
			c.logger.Warn("function call event without name")
			return
		}
		argsRaw, ok := raw["arguments"].(string)
		if !ok {
			c.logger.Warn("function call event without arguments", zap.String("name", name))
			return
		}
		var args map[string]any
		if err := sonic.Unmarshal([]byte(argsRaw), &args); err != nil {
			c.logger.Error("can not unmarshal function call arguments", err, zap.String("name", name))
			return
		}
		if c.h.OnFunctionCall != nil {
			c.h.OnFunctionCall(name, args)
		}
	case "error":
		msg := upstreamErrorMessage(raw)
		c.logger.Error("realtime API reported an error", errors.New(msg))
		if c.h.OnServerError != nil {
			c.h.OnServerError(msg)
		}
	}
}

// The service emits errors either nested under "error" or flattened.
func upstreamErrorMessage(raw map[string]any) string {
	if errObj, ok := raw["error"].(map[string]any); ok {
		if v, ok := errObj["message"].(string); ok {
			return v
		}
	}
	if v, ok := raw["message"].(string); ok {
		return v
	}
	return "unknown error"
}

func (c *UpstreamClient) ProcessSpeech(audioB64, lastDoctorText string) error {
	if err := c.respectCtx(); err != nil {
		return fmt.Errorf("respecting upstream context: %w", err)
	}
	if err := c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_audio", "audio": audioB64},
			},
		},
	}); err != nil {
		return fmt.Errorf("creating conversation item: %w", err)
	}
	if err := c.sendJSON(map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"modalities":   []string{"text"},
			"instructions": speechInstructions(lastDoctorText),
			"tools":        tools.Definitions(),
			"tool_choice":  "auto",
		},
	}); err != nil {
		return fmt.Errorf("creating response: %w", err)
	}
	return nil
}

func (c *UpstreamClient) GenerateSummary(transcript string) error {
	if err := c.respectCtx(); err != nil {
		return fmt.Errorf("respecting upstream context: %w", err)
	}
	prompt := "Generate a summary of this medical conversation."
	if transcript != "" {
		prompt += "\n\nConversation so far:\n" + transcript
	}
	if err := c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": prompt},
			},
		},
	}); err != nil {
		return fmt.Errorf("creating conversation item: %w", err)
	}
	if err := c.sendJSON(map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"modalities":   []string{"text"},
			"instructions": summaryInstructions,
		},
	}); err != nil {
		return fmt.Errorf("creating response: %w", err)
	}
	return nil
}

func (c *UpstreamClient) SendFunctionResult(name string, result map[string]any) error {
	if err := c.respectCtx(); err != nil {
		return fmt.Errorf("respecting upstream context: %w", err)
	}
	output, err := sonic.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling function result: %w", err)
	}
	if err := c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":   "function_call_output",
			"output": string(output),
		},
	}); err != nil {
		return fmt.Errorf("creating function output item: %w", err)
	}
	if err := c.sendJSON(map[string]any{"type": "response.create"}); err != nil {
		return fmt.Errorf("creating response: %w", err)
	}
	c.logger.Debug("function result sent", zap.String("name", name))
	return nil
}
