package shared

import "errors"

var (
	ErrNoLogger          = errors.New("no logger provided")
	ErrNoAPIKey          = errors.New("no API key provided")
	ErrNoConfig          = errors.New("no config provided")
	ErrNoWebhookURL      = errors.New("no webhook URL configured")
	ErrNoHandlers        = errors.New("no upstream handlers provided")
	ErrSessionClosed     = errors.New("session closed")
	ErrSummaryInProgress = errors.New("summary already in progress")
	ErrUpstreamNotReady  = errors.New("upstream connection not initialized")
	ErrUpstreamActive    = errors.New("upstream connection already established")
	ErrUnknownTool       = errors.New("unknown tool")
)
