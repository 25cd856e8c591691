package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/relaywave/agentbridge/internal/credentials"
	"github.com/relaywave/agentbridge/internal/proxy"
	"github.com/relaywave/agentbridge/internal/streamer"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// App orchestrates the lifecycle of the credential pool and the proxy server.
type App struct {
	cfg   *Config
	pool  *credentials.Pool
	proxy *proxy.Proxy
}

// New creates a new App instance. It reads the broker API key from the
// configured token store; the credential pool and the proxy server are not
// started until Start is called.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}
	apiKey, err := store.Read(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read broker API key: %w", err)
	}

	broker := credentials.NewHTTPBroker(credentials.BrokerConfig{
		BaseURL:       cfg.Broker.BaseURL,
		RefreshURL:    cfg.Broker.RefreshURL,
		APIKey:        apiKey,
		ClientVersion: cfg.Upstream.ClientVersion,
		OSCategory:    cfg.Upstream.OSCategory,
		OSName:        cfg.Upstream.OSName,
		OSVersion:     cfg.Upstream.OSVersion,
	}, nil)

	pool := credentials.NewPool(broker, cfg.Broker.PoolSize, slog.Default())

	upstream := streamer.New(cfg.Upstream.BaseURL, wireproto.NewJSONCodec(), pool, streamer.ClientInfo{
		Version:    cfg.Upstream.ClientVersion,
		OSCategory: cfg.Upstream.OSCategory,
		OSName:     cfg.Upstream.OSName,
		OSVersion:  cfg.Upstream.OSVersion,
	}, slog.Default())

	proxyServer := proxy.New(proxy.Config{
		Streamer:     upstream,
		Codec:        wireproto.NewJSONCodec(),
		DefaultModel: cfg.DefaultModel.Model,
		ModelsURL:    cfg.Broker.BaseURL + "/api/models",
		Logger:       slog.Default(),
	})

	return &App{
		cfg:   cfg,
		pool:  pool,
		proxy: proxyServer,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	a.pool.Start(gCtx)
	shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
		a.pool.Stop()
		return nil
	})

	slog.InfoContext(gCtx, "starting proxy server", "address", address)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
