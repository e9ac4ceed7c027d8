package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	rpc "github.com/nugget/bridgerpc"
	"github.com/nugget/bridgerpc/internal/config"
	"github.com/nugget/bridgerpc/ratelimit"
	"github.com/nugget/bridgerpc/transport/httprpc"
	"github.com/nugget/bridgerpc/transport/ws"
)

// app holds the wired-up client for one command invocation.
type app struct {
	client *rpc.Client
	logger *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	transport, err := buildTransport(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []rpc.ClientOption{
		rpc.WithLogger(logger),
		rpc.WithDefaultTimeout(cfg.Timeout),
		rpc.WithReconnectPolicy(rpc.ReconnectPolicy{
			AutoReconnect: cfg.Reconnect.Enabled,
			MaxReconnects: cfg.Reconnect.MaxReconnects,
			BaseDelay:     cfg.Reconnect.BaseDelay,
		}),
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		opts = append(opts, rpc.WithInterceptors(limiter.Interceptor()))
	}

	return &app{
		client: rpc.NewClient(transport, opts...),
		logger: logger,
	}, nil
}

func buildTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rpc.Transport, error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		return ws.Dial(ctx, ws.Config{
			URL:     cfg.Endpoint,
			Headers: cfg.Headers,
			Logger:  logger,
		})
	case config.TransportHTTP:
		return httprpc.New(httprpc.Config{
			URL:     cfg.Endpoint,
			Headers: cfg.Headers,
			Logger:  logger,
		}), nil
	case config.TransportMemory:
		return nil, errors.New("the memory transport has no host to talk to; it exists for tests and examples")
	default:
		return nil, fmt.Errorf("transport %q not recognized", cfg.Transport)
	}
}

func (a *app) Close() {
	if err := a.client.Close(); err != nil {
		a.logger.Debug("closing client", "error", err)
	}
}

// parseInput interprets the optional trailing argument of call and
// subscribe as a JSON value. Absent input stays nil, which the engine
// transmits as null.
func parseInput(args []string) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(args[0]), &v); err != nil {
		return nil, fmt.Errorf("input is not valid JSON: %w", err)
	}
	return v, nil
}

func printJSON(raw json.RawMessage) {
	var buf any
	if err := json.Unmarshal(raw, &buf); err != nil {
		fmt.Println(string(raw))
		return
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(string(out))
}

func (a *app) runCall(ctx context.Context, path string, rest []string) error {
	input, err := parseInput(rest)
	if err != nil {
		return err
	}
	raw, err := a.client.Call(ctx, path, input)
	if err != nil {
		return err
	}
	printJSON(raw)
	return nil
}

func (a *app) runSubscribe(ctx context.Context, path string, rest []string) error {
	input, err := parseInput(rest)
	if err != nil {
		return err
	}
	it, err := a.client.Subscribe(ctx, path, input)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		raw, err := it.Next(ctx)
		if err == io.EOF {
			a.logger.Info("subscription completed", "path", path)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("subscription interrupted", "path", path)
				return nil
			}
			return err
		}
		printJSON(raw)
	}
}

// runBatch reads a JSON array of {id, path, input} objects from r and
// sends them as one rpc_call_batch invocation.
func (a *app) runBatch(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var requests []rpc.BatchRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return fmt.Errorf("batch input must be a JSON array of {id, path, input}: %w", err)
	}

	resp, err := a.client.ExecuteBatch(ctx, requests)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (a *app) runProcedures(ctx context.Context) error {
	paths, err := a.client.ListProcedures(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func (a *app) runSubscriptionCount(ctx context.Context) error {
	count, err := a.client.SubscriptionCount(ctx)
	if err != nil {
		return err
	}
	fmt.Println(count)
	return nil
}
