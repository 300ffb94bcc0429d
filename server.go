package relay

import (
	"context"
	"net/http"

	"github.com/bt-bridge/interpreter-relay/shared"
	"github.com/bt-bridge/interpreter-relay/tools"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const serviceName = "Medical Interpreter Relay"

// Server accepts client WebSocket sessions and runs one Relay per
// connection. It also answers the health check.
type Server struct {
	logger     shared.LoggerAdapter
	dial       UpstreamDialer
	dispatcher ToolDispatcher
	transcript *shared.Transcript
	upgrader   websocket.Upgrader
}

// NewServer wires a server from config: the upstream dialer carries the API
// key and endpoint, the dispatcher the webhook URL. transcript may be nil.
func NewServer(logger shared.LoggerAdapter, cfg *shared.Config, transcript *shared.Transcript) (*Server, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dispatcher, err := tools.NewDispatcher(logger, cfg.WebhookURL)
	if err != nil {
		return nil, err
	}
	apiKey, upstreamURL := cfg.APIKey, cfg.UpstreamURL
	dial := func(ctx context.Context, h UpstreamHandlers) (Upstream, error) {
		return DialUpstream(ctx, logger, apiKey, upstreamURL, h)
	}
	return newServer(logger, dial, dispatcher, transcript), nil
}

func newServer(logger shared.LoggerAdapter, dial UpstreamDialer, dispatcher ToolDispatcher, transcript *shared.Transcript) *Server {
	return &Server{
		logger:     logger,
		dial:       dial,
		dispatcher: dispatcher,
		transcript: transcript,
		upgrader: websocket.Upgrader{
			// The browser client is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	body, err := sonic.Marshal(map[string]any{
		"status":  "online",
		"service": serviceName,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrading client connection", err)
		return
	}
	rl, err := NewRelay(s.logger, conn, s.dial, s.dispatcher, s.transcript)
	if err != nil {
		s.logger.Error("creating relay", err)
		_ = conn.Close()
		return
	}
	if err := rl.Run(r.Context()); err != nil {
		s.logger.Error("relay terminated", err, zap.String("session", rl.Session().ID()))
	}
}
