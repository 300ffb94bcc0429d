package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bt-bridge/interpreter-relay/shared"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientConn is the slice of *websocket.Conn the relay needs.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ToolDispatcher runs one validated tool call and returns the result payload.
type ToolDispatcher interface {
	Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Relay owns one session: the client socket, the paired upstream connection
// and the utterance log. Two goroutines touch it, the client read loop and
// the upstream read loop; everything they share is behind the session mutex
// or the relay's own.
type Relay struct {
	logger     shared.LoggerAdapter
	conn       ClientConn
	dial       UpstreamDialer
	dispatcher ToolDispatcher
	transcript *shared.Transcript
	sess       *Session

	mu       sync.Mutex
	upstream Upstream
	writeMu  sync.Mutex

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewRelay builds a relay for one accepted client connection. transcript may
// be nil.
func NewRelay(logger shared.LoggerAdapter, conn ClientConn, dial UpstreamDialer, dispatcher ToolDispatcher, transcript *shared.Transcript) (*Relay, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if conn == nil {
		return nil, errors.New("no client connection provided")
	}
	if dial == nil {
		return nil, errors.New("no upstream dialer provided")
	}
	if dispatcher == nil {
		return nil, errors.New("no tool dispatcher provided")
	}
	sess := NewSession()
	return &Relay{
		logger:     logger.With(zap.String("session", sess.ID())),
		conn:       conn,
		dial:       dial,
		dispatcher: dispatcher,
		transcript: transcript,
		sess:       sess,
	}, nil
}

func (r *Relay) Session() *Session {
	return r.sess
}

// Run drives the session until the client goes away, asks to disconnect, or
// the upstream connection fails. It always releases the paired upstream
// connection before returning.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	r.ctx, r.cancel = ctx, cancel
	defer r.teardown()

	if err := r.sendEnvelope(ServerEnvelopeTypeSession, &ServerEnvelopeParamSession{SessionId: r.sess.ID()}); err != nil {
		return fmt.Errorf("announcing session: %w", err)
	}
	r.logger.Info("session opened")

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
				return cause
			}
			r.logger.Debug("client connection ended", zap.Error(err))
			return nil
		}
		env := new(ClientEnvelope)
		if err := env.UnmarshalJSON(data); err != nil {
			r.logger.Warn("malformed client envelope", zap.Error(err))
			r.sendError(err.Error())
			continue
		}
		done, err := r.handle(env)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (r *Relay) teardown() {
	if up := r.currentUpstream(); up != nil {
		if err := up.Close(); err != nil {
			r.logger.Error("closing upstream connection", err)
		}
	}
	r.sess.Close()
	if err := r.conn.Close(); err == nil {
		r.logger.Debug("client connection closed")
	}
	r.cancel(errors.New("relay finished"))
	r.logger.Info("session closed")
}

func (r *Relay) currentUpstream() Upstream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upstream
}

func (r *Relay) handle(env *ClientEnvelope) (done bool, err error) {
	switch p := env.Param.(type) {
	case *ClientEnvelopeParamConnect:
		return false, r.handleConnect()
	case *ClientEnvelopeParamBeginConversation:
		r.handleSpeech(p)
	case *ClientEnvelopeParamGetSummary:
		r.handleSummary()
	case *ClientEnvelopeParamDisconnect:
		r.logger.Info("client requested disconnect")
		return true, nil
	default:
		// Unreachable while the decoder and this switch stay in sync.
		r.sendError(fmt.Sprintf("unsupported envelope type: %s", env.Type))
	}
	return false, nil
}

// handleConnect lazily establishes the upstream connection. A dial failure
// is fatal for the session.
func (r *Relay) handleConnect() error {
	if r.currentUpstream() != nil {
		r.sendError("OpenAI connection already initialized")
		return nil
	}
	if err := r.sess.BeginConnect(); err != nil {
		r.sendError(err.Error())
		return nil
	}
	up, err := r.dial(r.ctx, r.handlers())
	if err != nil {
		r.logger.Error("establishing upstream connection", err)
		r.sendError("OpenAI connection failed: " + err.Error())
		return fmt.Errorf("dialing upstream: %w", err)
	}
	r.mu.Lock()
	r.upstream = up
	r.mu.Unlock()
	if err := r.sess.MarkActive(); err != nil {
		return err
	}
	r.sendEnvelope(ServerEnvelopeTypeOpenAIConnected, &ServerEnvelopeParamOpenAIConnected{})
	r.logger.Info("upstream connected")
	return nil
}

func (r *Relay) handleSpeech(p *ClientEnvelopeParamBeginConversation) {
	up := r.currentUpstream()
	if up == nil {
		r.sendError("OpenAI connection not initialized")
		return
	}
	if err := up.ProcessSpeech(p.Audio, r.sess.LastDoctor()); err != nil {
		r.logger.Error("forwarding speech", err)
		r.sendError("processing speech failed: " + err.Error())
	}
}

func (r *Relay) handleSummary() {
	up := r.currentUpstream()
	if up == nil {
		r.sendError("OpenAI connection not initialized")
		return
	}
	if err := r.sess.BeginSummary(); err != nil {
		r.sendError(err.Error())
		return
	}
	if err := up.GenerateSummary(r.sess.TranscriptText()); err != nil {
		r.sess.EndSummary()
		r.logger.Error("requesting summary", err)
		r.sendError("generating summary failed: " + err.Error())
	}
}

// handlers wires upstream events back to the client socket. All callbacks
// run on the upstream read goroutine.
func (r *Relay) handlers() UpstreamHandlers {
	return UpstreamHandlers{
		OnTextDelta: func(delta string) {
			r.sendEnvelope(ServerEnvelopeTypeTextDelta, &ServerEnvelopeParamTextDelta{Delta: delta})
		},
		OnTextDone:   r.onTextDone,
		OnAudioDelta: func(delta string) {
			r.sendEnvelope(ServerEnvelopeTypeAudioDelta, &ServerEnvelopeParamAudioDelta{Delta: delta})
		},
		OnAudioDone: func() {
			r.sendEnvelope(ServerEnvelopeTypeAudioDone, &ServerEnvelopeParamAudioDone{})
		},
		OnFunctionCall: r.onFunctionCall,
		OnServerError: func(message string) {
			r.sendError(message)
		},
		OnClosed: r.onUpstreamClosed,
	}
}

func (r *Relay) onTextDone(text string) {
	role, utterance, ok := parseUtterance(text)
	r.sendEnvelope(ServerEnvelopeTypeTextDone, &ServerEnvelopeParamTextDone{Text: text, Role: string(role)})
	if r.sess.State() == SessionStateSummarizing {
		// Summary reply; relay verbatim, keep it out of the history.
		r.sess.EndSummary()
		return
	}
	if !ok {
		r.logger.Warn("text response without role payload")
		return
	}
	r.sess.Append(role, utterance)
	if r.transcript != nil {
		if err := r.transcript.Record(r.sess.ID(), string(role), utterance); err != nil {
			r.logger.Error("recording transcript", err)
		}
	}
}

func (r *Relay) onFunctionCall(name string, args map[string]any) {
	r.logger.Info("function call", zap.String("name", name), zap.Any("args", args))
	result, err := r.dispatcher.Execute(r.ctx, name, args)
	if err != nil {
		r.logger.Error("executing function", err, zap.String("name", name))
		result = map[string]any{"error": err.Error()}
	}
	up := r.currentUpstream()
	if up == nil {
		return
	}
	if err := up.SendFunctionResult(name, result); err != nil {
		r.logger.Error("sending function result", err, zap.String("name", name))
	}
	r.sendEnvelope(ServerEnvelopeTypeActionExecuted, &ServerEnvelopeParamActionExecuted{
		Action:  name,
		Details: result,
	})
}

func (r *Relay) onUpstreamClosed(err error) {
	if err == nil {
		return
	}
	r.logger.Error("upstream connection lost", err)
	r.sendError("OpenAI connection lost: " + err.Error())
	r.cancel(fmt.Errorf("upstream connection lost: %w", err))
	// Unblock the client read loop so Run can tear the session down.
	_ = r.conn.Close()
}

func (r *Relay) sendEnvelope(t ServerEnvelopeType, p EnvelopeParam) error {
	env := &ServerEnvelope{Type: t, Param: p}
	data, err := env.MarshalJSON()
	if err != nil {
		r.logger.Error("marshaling server envelope", err, zap.String("type", string(t)))
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		r.logger.Debug("writing to client failed", zap.Error(err))
		return err
	}
	return nil
}

func (r *Relay) sendError(message string) {
	_ = r.sendEnvelope(ServerEnvelopeTypeError, &ServerEnvelopeParamError{Message: message})
}

// parseUtterance unwraps the model's {"text","role"} reply, tolerating the
// ```json fencing it tends to add.
func parseUtterance(text string) (Role, string, bool) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	var parsed struct {
		Text string `json:"text"`
		Role string `json:"role"`
	}
	if err := sonic.Unmarshal([]byte(clean), &parsed); err != nil {
		return "", "", false
	}
	switch Role(parsed.Role) {
	case RoleDoctor, RolePatient:
		return Role(parsed.Role), parsed.Text, true
	}
	return "", "", false
}
