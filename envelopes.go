package relay

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
)

type EnvelopeType string

type ClientEnvelopeType EnvelopeType

type ServerEnvelopeType EnvelopeType

// Client envelope types
const (
	ClientEnvelopeTypeConnect           ClientEnvelopeType = "connect"
	ClientEnvelopeTypeBeginConversation ClientEnvelopeType = "begin_conversation"
	ClientEnvelopeTypeGetSummary        ClientEnvelopeType = "get_summary"
	ClientEnvelopeTypeDisconnect        ClientEnvelopeType = "disconnect"
)

// Server envelope types
const (
	ServerEnvelopeTypeSession         ServerEnvelopeType = "session"
	ServerEnvelopeTypeOpenAIConnected ServerEnvelopeType = "openai_connected"
	ServerEnvelopeTypeTextDelta       ServerEnvelopeType = "text_response_delta"
	ServerEnvelopeTypeTextDone        ServerEnvelopeType = "text_response_done"
	ServerEnvelopeTypeAudioDelta      ServerEnvelopeType = "audio_response_delta"
	ServerEnvelopeTypeAudioDone       ServerEnvelopeType = "audio_response_done"
	ServerEnvelopeTypeActionExecuted  ServerEnvelopeType = "action_executed"
	ServerEnvelopeTypeError           ServerEnvelopeType = "error"
)

type Envelope interface {
	EnvelopeType() EnvelopeType
	IsServerEnvelope() bool
	IsClientEnvelope() bool
	MarshalYAML() ([]byte, error)
	UnmarshalYAML(data []byte) error
	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error
}

type EnvelopeParam interface {
	New(map[string]any) error
	Json() map[string]any
}

type ClientEnvelope struct {
	Type  ClientEnvelopeType
	Param EnvelopeParam
}

var _ Envelope = (*ClientEnvelope)(nil)

func (e *ClientEnvelope) EnvelopeType() EnvelopeType {
	return EnvelopeType(e.Type)
}

func (e *ClientEnvelope) IsServerEnvelope() bool {
	return false
}

func (e *ClientEnvelope) IsClientEnvelope() bool {
	return true
}

func (e *ClientEnvelope) marshalMap() (map[string]any, error) {
	if e.Type == "" {
		return nil, errors.New("Type is empty")
	}
	if e.Param == nil {
		return nil, errors.New("Param is nil")
	}
	resp := map[string]any{}
	for k, v := range e.Param.Json() {
		resp[k] = v
	}
	resp["type"] = e.Type
	return resp, nil
}

func (e *ClientEnvelope) MarshalJSON() ([]byte, error) {
	resp, err := e.marshalMap()
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(resp)
}

func (e *ClientEnvelope) MarshalYAML() ([]byte, error) {
	resp, err := e.marshalMap()
	if err != nil {
		return nil, err
	}
	return yaml.MarshalWithOptions(resp, yaml.UseJSONMarshaler())
}

func (e *ClientEnvelope) fromMap(raw map[string]any) error {
	v, ok := raw["type"].(string)
	if !ok {
		return errors.New("missing type")
	}
	e.Type = ClientEnvelopeType(v)
	delete(raw, "type")
	switch e.Type {
	case ClientEnvelopeTypeConnect:
		e.Param = new(ClientEnvelopeParamConnect)
	case ClientEnvelopeTypeBeginConversation:
		e.Param = new(ClientEnvelopeParamBeginConversation)
	case ClientEnvelopeTypeGetSummary:
		e.Param = new(ClientEnvelopeParamGetSummary)
	case ClientEnvelopeTypeDisconnect:
		e.Param = new(ClientEnvelopeParamDisconnect)
	default:
		return fmt.Errorf("unknown envelope type: %s", e.Type)
	}
	return e.Param.New(raw)
}

func (e *ClientEnvelope) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	return e.fromMap(raw)
}

func (e *ClientEnvelope) UnmarshalYAML(data []byte) error {
	var raw map[string]any
	if err := yaml.UnmarshalWithOptions(data, &raw, yaml.UseJSONUnmarshaler()); err != nil {
		return err
	}
	return e.fromMap(raw)
}

type ServerEnvelope struct {
	Type  ServerEnvelopeType
	Param EnvelopeParam
}

var _ Envelope = (*ServerEnvelope)(nil)

func (e *ServerEnvelope) EnvelopeType() EnvelopeType {
	return EnvelopeType(e.Type)
}

func (e *ServerEnvelope) IsServerEnvelope() bool {
	return true
}

func (e *ServerEnvelope) IsClientEnvelope() bool {
	return false
}

func (e *ServerEnvelope) marshalMap() (map[string]any, error) {
	if e.Type == "" {
		return nil, errors.New("Type is empty")
	}
	if e.Param == nil {
		return nil, errors.New("Param is nil")
	}
	resp := map[string]any{}
	for k, v := range e.Param.Json() {
		resp[k] = v
	}
	resp["type"] = e.Type
	return resp, nil
}

func (e *ServerEnvelope) MarshalJSON() ([]byte, error) {
	resp, err := e.marshalMap()
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(resp)
}

func (e *ServerEnvelope) MarshalYAML() ([]byte, error) {
	resp, err := e.marshalMap()
	if err != nil {
		return nil, err
	}
	return yaml.MarshalWithOptions(resp, yaml.UseJSONMarshaler())
}

func (e *ServerEnvelope) fromMap(raw map[string]any) error {
	v, ok := raw["type"].(string)
	if !ok {
		return errors.New("missing type")
	}
	e.Type = ServerEnvelopeType(v)
	delete(raw, "type")
	switch e.Type {
	case ServerEnvelopeTypeSession:
		e.Param = new(ServerEnvelopeParamSession)
	case ServerEnvelopeTypeOpenAIConnected:
		e.Param = new(ServerEnvelopeParamOpenAIConnected)
	case ServerEnvelopeTypeTextDelta:
		e.Param = new(ServerEnvelopeParamTextDelta)
	case ServerEnvelopeTypeTextDone:
		e.Param = new(ServerEnvelopeParamTextDone)
	case ServerEnvelopeTypeAudioDelta:
		e.Param = new(ServerEnvelopeParamAudioDelta)
	case ServerEnvelopeTypeAudioDone:
		e.Param = new(ServerEnvelopeParamAudioDone)
	case ServerEnvelopeTypeActionExecuted:
		e.Param = new(ServerEnvelopeParamActionExecuted)
	case ServerEnvelopeTypeError:
		e.Param = new(ServerEnvelopeParamError)
	default:
		return fmt.Errorf("unknown envelope type: %s", e.Type)
	}
	return e.Param.New(raw)
}

func (e *ServerEnvelope) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	return e.fromMap(raw)
}

func (e *ServerEnvelope) UnmarshalYAML(data []byte) error {
	var raw map[string]any
	if err := yaml.UnmarshalWithOptions(data, &raw, yaml.UseJSONUnmarshaler()); err != nil {
		return err
	}
	return e.fromMap(raw)
}

// connect
type ClientEnvelopeParamConnect struct{}

func (p *ClientEnvelopeParamConnect) New(m map[string]any) error {
	return nil
}

func (p *ClientEnvelopeParamConnect) Json() map[string]any {
	return map[string]any{}
}

// begin_conversation
type ClientEnvelopeParamBeginConversation struct {
	Audio string
}

func (p *ClientEnvelopeParamBeginConversation) New(m map[string]any) error {
	v, ok := m["audio"].(string)
	if !ok || v == "" {
		return errors.New("audio data is required")
	}
	p.Audio = v
	return nil
}

func (p *ClientEnvelopeParamBeginConversation) Json() map[string]any {
	return map[string]any{
		"audio": p.Audio,
	}
}

// get_summary
type ClientEnvelopeParamGetSummary struct{}

func (p *ClientEnvelopeParamGetSummary) New(m map[string]any) error {
	return nil
}

func (p *ClientEnvelopeParamGetSummary) Json() map[string]any {
	return map[string]any{}
}

// disconnect
type ClientEnvelopeParamDisconnect struct{}

func (p *ClientEnvelopeParamDisconnect) New(m map[string]any) error {
	return nil
}

func (p *ClientEnvelopeParamDisconnect) Json() map[string]any {
	return map[string]any{}
}

// session
type ServerEnvelopeParamSession struct {
	SessionId string
}

func (p *ServerEnvelopeParamSession) New(m map[string]any) error {
	if v, ok := m["session_id"].(string); ok {
		p.SessionId = v
	} else {
		return errors.New("missing session_id")
	}
	return nil
}

func (p *ServerEnvelopeParamSession) Json() map[string]any {
	return map[string]any{
		"session_id": p.SessionId,
	}
}

// openai_connected
type ServerEnvelopeParamOpenAIConnected struct{}

func (p *ServerEnvelopeParamOpenAIConnected) New(m map[string]any) error {
	return nil
}

func (p *ServerEnvelopeParamOpenAIConnected) Json() map[string]any {
	return map[string]any{}
}

// text_response_delta
type ServerEnvelopeParamTextDelta struct {
	Delta string
}

func (p *ServerEnvelopeParamTextDelta) New(m map[string]any) error {
	if v, ok := m["delta"].(string); ok {
		p.Delta = v
	} else {
		return errors.New("missing delta")
	}
	return nil
}

func (p *ServerEnvelopeParamTextDelta) Json() map[string]any {
	return map[string]any{
		"delta": p.Delta,
	}
}

// text_response_done
type ServerEnvelopeParamTextDone struct {
	Text string
	Role string
}

func (p *ServerEnvelopeParamTextDone) New(m map[string]any) error {
	if v, ok := m["text"].(string); ok {
		p.Text = v
	} else {
		return errors.New("missing text")
	}
	if v, ok := m["role"].(string); ok {
		p.Role = v
	} else {
		// Summaries carry no role.
		p.Role = ""
	}
	return nil
}

func (p *ServerEnvelopeParamTextDone) Json() map[string]any {
	return map[string]any{
		"text": p.Text,
		"role": p.Role,
	}
}

// audio_response_delta
type ServerEnvelopeParamAudioDelta struct {
	Delta string
}

func (p *ServerEnvelopeParamAudioDelta) New(m map[string]any) error {
	if v, ok := m["delta"].(string); ok {
		p.Delta = v
	} else {
		return errors.New("missing delta")
	}
	return nil
}

func (p *ServerEnvelopeParamAudioDelta) Json() map[string]any {
	return map[string]any{
		"delta": p.Delta,
	}
}

// audio_response_done
type ServerEnvelopeParamAudioDone struct{}

func (p *ServerEnvelopeParamAudioDone) New(m map[string]any) error {
	return nil
}

func (p *ServerEnvelopeParamAudioDone) Json() map[string]any {
	return map[string]any{}
}

// action_executed
type ServerEnvelopeParamActionExecuted struct {
	Action  string
	Details map[string]any
}

func (p *ServerEnvelopeParamActionExecuted) New(m map[string]any) error {
	if v, ok := m["action"].(string); ok {
		p.Action = v
	} else {
		return errors.New("missing action")
	}
	if v, ok := m["details"].(map[string]any); ok {
		p.Details = v
	} else {
		return errors.New("missing details")
	}
	return nil
}

func (p *ServerEnvelopeParamActionExecuted) Json() map[string]any {
	return map[string]any{
		"action":  p.Action,
		"details": p.Details,
	}
}

// error
type ServerEnvelopeParamError struct {
	Message string
}

func (p *ServerEnvelopeParamError) New(m map[string]any) error {
	if v, ok := m["message"].(string); ok {
		p.Message = v
	} else {
		return errors.New("missing message")
	}
	return nil
}

func (p *ServerEnvelopeParamError) Json() map[string]any {
	return map[string]any{
		"message": p.Message,
	}
}
