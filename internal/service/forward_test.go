package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-gateway-go/internal/client"
	"chat-gateway-go/internal/config"
	"chat-gateway-go/internal/model"
)

func testConfig(baseURL, backendKey string) *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{
			BaseURL:         baseURL,
			APIKey:          backendKey,
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
}

func newTestService(t *testing.T, cfg *config.Config) *ForwardService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := client.NewBackendClient(cfg, logger, nil)
	svc, err := NewForwardService(c, cfg, logger)
	if err != nil {
		t.Fatalf("NewForwardService: %v", err)
	}
	return svc
}

func TestForward_FixedPathAndCredentials(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/api/v1/chat/completions")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer backend-key" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer backend-key")
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	// A trailing slash on the base URL must not produce a double slash.
	svc := newTestService(t, testConfig(upstream.URL+"/", "backend-key"))

	resp, err := svc.Forward(&model.ChatRequest{
		Ctx:  context.Background(),
		Body: []byte(`{"model":"gpt"}`),
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestForward_BodyPassedThroughUnchanged(t *testing.T) {
	// Key order and whitespace must survive: the body is relayed
	// byte-for-byte, never re-serialized.
	payload := []byte("{\"b\": 1,\t\"a\": [2, 3] }")

	var received []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newTestService(t, testConfig(upstream.URL, "backend-key"))

	if _, err := svc.Forward(&model.ChatRequest{Ctx: context.Background(), Body: payload}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if !bytes.Equal(received, payload) {
		t.Errorf("backend received %q, want identical bytes %q", received, payload)
	}
}

func TestForward_BotMarkersOnlyWhenBotOriginated(t *testing.T) {
	tests := []struct {
		name          string
		botOriginated bool
		wantBotHeader string
		wantPassword  string
	}{
		{"bot request", true, "true", "hunter2"},
		{"plain request", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("X-Discord-Bot"); got != tt.wantBotHeader {
					t.Errorf("X-Discord-Bot = %q, want %q", got, tt.wantBotHeader)
				}
				if got := r.Header.Get("X-Discord-Password"); got != tt.wantPassword {
					t.Errorf("X-Discord-Password = %q, want %q", got, tt.wantPassword)
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer upstream.Close()

			svc := newTestService(t, testConfig(upstream.URL, "backend-key"))

			req := &model.ChatRequest{
				Ctx:           context.Background(),
				Body:          []byte(`{}`),
				BotOriginated: tt.botOriginated,
			}
			if tt.botOriginated {
				req.BotPassword = "hunter2"
			}

			if _, err := svc.Forward(req); err != nil {
				t.Fatalf("Forward() error = %v", err)
			}
		})
	}
}

func TestForward_MissingBackendKeyFailsBeforeNetworkIO(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newTestService(t, testConfig(upstream.URL, ""))

	_, err := svc.Forward(&model.ChatRequest{Ctx: context.Background(), Body: []byte(`{}`)})
	if !errors.Is(err, ErrBackendKeyMissing) {
		t.Fatalf("Forward() error = %v, want %v", err, ErrBackendKeyMissing)
	}
	if called {
		t.Error("backend was contacted despite missing API key")
	}
}

func TestForward_NonOKStatusPassedThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer upstream.Close()

	svc := newTestService(t, testConfig(upstream.URL, "backend-key"))

	resp, err := svc.Forward(&model.ChatRequest{Ctx: context.Background(), Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if string(resp.Body) != `{"error":"rate limited"}` {
		t.Errorf("Body = %q, want backend body verbatim", resp.Body)
	}
}

func TestForward_TransportError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	svc := newTestService(t, testConfig(url, "backend-key"))

	_, err := svc.Forward(&model.ChatRequest{Ctx: context.Background(), Body: []byte(`{}`)})
	if err == nil {
		t.Fatal("Forward() error = nil, want transport error")
	}
}
