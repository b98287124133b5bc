// Package service implements the core forwarding logic of the gateway.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"chat-gateway-go/internal/auth"
	"chat-gateway-go/internal/client"
	"chat-gateway-go/internal/config"
	"chat-gateway-go/internal/model"
)

// ErrBackendKeyMissing is returned before any network I/O when no backend API
// key is configured. The handler surfaces it on the 502 path with the message
// as detail.
var ErrBackendKeyMissing = errors.New("BACKEND_CHAT_API_KEY is not configured")

// backendChatPath is the fixed backend route every request is forwarded to.
const backendChatPath = "/api/v1/chat/completions"

const userAgent = "chat-gateway-go/1.0"

// ForwardService sends validated chat requests to the backend service.
type ForwardService struct {
	client   *client.BackendClient
	cfg      *config.Config
	logger   *slog.Logger
	chatURL  string
	hasCreds bool
}

// NewForwardService creates a ForwardService. The backend URL is resolved
// once: base URL with any trailing slash trimmed, plus the fixed chat path.
func NewForwardService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) (*ForwardService, error) {
	base := strings.TrimRight(cfg.Backend.BaseURL, "/")
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse backend base_url: %w", err)
	}

	return &ForwardService{
		client:   c,
		cfg:      cfg,
		logger:   logger.With("component", "forward_service"),
		chatURL:  base + backendChatPath,
		hasCreds: cfg.Backend.APIKey != "",
	}, nil
}

// Forward performs exactly one synchronous POST to the backend and returns its
// response. The request body is forwarded byte-for-byte. A missing backend API
// key fails closed before any network I/O. A non-positive status from the
// transport layer is normalized to 502 before returning.
func (s *ForwardService) Forward(req *model.ChatRequest) (*model.BackendResponse, error) {
	if !s.hasCreds {
		return nil, ErrBackendKeyMissing
	}

	header := s.buildHeaders(req)

	s.logger.Debug("forwarding request",
		"url", s.chatURL,
		"bot_originated", req.BotOriginated,
		"bytes_in", len(req.Body),
	)

	resp, err := s.client.Post(req.Ctx, s.chatURL, header, req.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to backend: %w", err)
	}

	if resp.StatusCode <= 0 {
		resp.StatusCode = http.StatusBadGateway
	}
	return resp, nil
}

// buildHeaders constructs the outbound header set: content type, backend
// credentials, and the bot markers only when the request is bot-originated.
func (s *ForwardService) buildHeaders(req *model.ChatRequest) http.Header {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+s.cfg.Backend.APIKey)
	header.Set("User-Agent", userAgent)
	if req.BotOriginated {
		header.Set(auth.HeaderDiscordBot, "true")
		header.Set(auth.HeaderDiscordPassword, req.BotPassword)
	}
	return header
}
