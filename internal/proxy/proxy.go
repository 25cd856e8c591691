package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/relaywave/agentbridge/internal/observability/middleware"
	"github.com/relaywave/agentbridge/internal/recovery"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// staticModels is served by GET /v1/models when the session broker's model
// list endpoint is unreachable.
var staticModels = []string{"claude-sonnet-4-5", "claude-opus-4-1", "claude-haiku-4-5"}

// Proxy is the public-API HTTP server: OpenAI and Anthropic compatible
// endpoints over the upstream exchange, plus service banner/health/model
// list routes.
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
}

var _ http.Handler = (*Proxy)(nil)

// Config configures a Proxy.
type Config struct {
	Streamer     recovery.Streamer
	Codec        wireproto.Codec
	DefaultModel string
	ModelsURL    string // optional; session broker's model-list endpoint
	ModelsClient *http.Client
	Logger       *slog.Logger
}

// New constructs a Proxy ready to Start.
func New(cfg Config) *Proxy {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ModelsClient == nil {
		cfg.ModelsClient = &http.Client{Timeout: 5 * time.Second}
	}

	chatHandler := &ChatCompletionsHandler{Streamer: cfg.Streamer, Codec: cfg.Codec, DefaultModel: cfg.DefaultModel}
	messagesHandler := &MessagesHandler{Streamer: cfg.Streamer, Codec: cfg.Codec, DefaultModel: cfg.DefaultModel}
	modelsHandler := &modelsHandler{url: cfg.ModelsURL, client: cfg.ModelsClient}

	mux := http.NewServeMux()
	mux.Handle("GET /", applyMiddlewares(http.HandlerFunc(bannerHandler), middleware.Logging(cfg.Logger), Recovery))
	mux.Handle("GET /healthz", applyMiddlewares(http.HandlerFunc(healthzHandler), middleware.Logging(cfg.Logger), Recovery))
	mux.Handle("GET /v1/models", applyMiddlewares(modelsHandler, middleware.Logging(cfg.Logger), Recovery))
	mux.Handle("POST /v1/chat/completions", applyMiddlewares(chatHandler, middleware.Logging(cfg.Logger), Recovery))
	mux.Handle("POST /v1/messages", applyMiddlewares(messagesHandler, middleware.Logging(cfg.Logger), Recovery))

	return &Proxy{mux: mux}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Startup errors (port in use, permission denied) are returned immediately;
// runtime errors are sent to the returned channel. The caller must call
// Shutdown to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // streaming responses run long
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		err := p.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func bannerHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, map[string]string{
		"service": "agentbridge",
		"status":  "running",
	}, http.StatusOK)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, map[string]string{"status": "ok"}, http.StatusOK)
}

// modelsHandler serves GET /v1/models, proxying the session broker's model
// list and falling back to staticModels on any failure.
type modelsHandler struct {
	url    string
	client *http.Client
}

type modelEntry struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

type modelsResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func (h *modelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if models, err := h.fetchRemote(ctx); err == nil {
		writeJSON(ctx, w, toModelsResponse(models), http.StatusOK)
		return
	} else if h.url != "" {
		slog.WarnContext(ctx, "model list provider unavailable, falling back to static list", "error", err)
	}

	writeJSON(ctx, w, toModelsResponse(staticModels), http.StatusOK)
}

func (h *modelsHandler) fetchRemote(ctx context.Context) ([]string, error) {
	if h.url == "" {
		return nil, fmt.Errorf("no model list provider configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model list provider returned status %d", resp.StatusCode)
	}

	var out struct {
		Models []string `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Models) == 0 {
		return nil, fmt.Errorf("model list provider returned no models")
	}
	return out.Models, nil
}

func toModelsResponse(models []string) modelsResponse {
	out := modelsResponse{Object: "list"}
	for _, m := range models {
		out.Data = append(out.Data, modelEntry{ID: m, Object: "model"})
	}
	return out
}
