package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chat-gateway-go/internal/auth"
	"chat-gateway-go/internal/model"
	"chat-gateway-go/internal/service"
)

// Validation errors local to the handler.
var (
	errEmptyBody   = errors.New("request body is empty")
	errInvalidJSON = errors.New("request body is not a JSON object or array")
)

// ChatHandler authenticates chat-completion requests and relays the backend's
// response verbatim.
type ChatHandler struct {
	auth    *auth.Authenticator
	service *service.ForwardService
	logger  *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(a *auth.Authenticator, svc *service.ForwardService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		auth:    a,
		service: svc,
		logger:  logger.With("component", "chat_handler"),
	}
}

// Handle processes one POST /v1/chat/completions request.
//
// The checks run in a fixed order, each short-circuiting to an error response:
// body presence, client-key configuration, bearer token, bot password (for
// bot-originated requests), JSON well-formedness, then a single forward to the
// backend. The inbound body is relayed byte-for-byte; the parsed JSON value is
// used for validation only and discarded.
func (h *ChatHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return h.mapError(c, err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return h.mapError(c, errEmptyBody)
	}

	// Configuration check runs before credential validation so operators see
	// 500, not 403, on a misconfigured gateway.
	if err := h.auth.VerifyBearer(req.Header); err != nil {
		return h.mapError(c, err)
	}

	botOriginated := h.auth.BotOriginated(req.Header)
	if botOriginated {
		if err := h.auth.VerifyBotPassword(req.Header); err != nil {
			return h.mapError(c, err)
		}
	}

	if !isStructuredJSON(body) {
		return h.mapError(c, errInvalidJSON)
	}

	resp, err := h.service.Forward(&model.ChatRequest{
		Ctx:           req.Context(),
		Body:          body,
		BotOriginated: botOriginated,
		BotPassword:   req.Header.Get(auth.HeaderDiscordPassword),
	})
	if err != nil {
		return h.mapError(c, err)
	}

	return c.JSONBlob(resp.StatusCode, resp.Body)
}

func (h *ChatHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	switch {
	case errors.Is(err, errEmptyBody):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Request body must be valid JSON.",
		})

	case errors.Is(err, auth.ErrClientKeyNotConfigured):
		h.logger.Error("gateway misconfigured", "err", err, "path", path)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "GATEWAY_CLIENT_API_KEY is not configured.",
		})

	case errors.Is(err, auth.ErrInvalidAPIKey):
		h.logger.Warn("rejected request", "reason", "invalid api key", "path", path)
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "Invalid or missing API key.",
		})

	case errors.Is(err, auth.ErrInvalidBotPassword):
		h.logger.Warn("rejected request", "reason", "invalid bot password", "path", path)
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "Invalid Discord bot password.",
		})

	case errors.Is(err, errInvalidJSON):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Unable to parse JSON payload.",
		})

	default:
		h.logger.Error("backend error", "err", err, "path", path)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error":  "Failed to contact backend service.",
			"detail": err.Error(),
		})
	}
}

// isStructuredJSON reports whether data decodes to a JSON object or array.
// Scalars (strings, numbers, booleans, null) do not count as valid payloads.
func isStructuredJSON(data []byte) bool {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

