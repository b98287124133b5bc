// Package model defines shared per-request types for the gateway.
package model

import "context"

// ChatRequest is a validated chat-completion request ready to be forwarded.
// Body holds the inbound payload byte-for-byte; it is never re-serialized.
type ChatRequest struct {
	Ctx           context.Context
	Body          []byte
	BotOriginated bool
	BotPassword   string
}

// BackendResponse is the backend's reply, captured in full.
type BackendResponse struct {
	StatusCode int
	Body       []byte
}
