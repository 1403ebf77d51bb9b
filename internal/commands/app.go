package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	delivery "github.com/JohnPlummer/jp-go-delivery"
	"github.com/JohnPlummer/jp-go-delivery/config"
	"github.com/JohnPlummer/jp-go-delivery/payload"
	"github.com/JohnPlummer/jp-go-delivery/payload/redisqueue"
	"github.com/JohnPlummer/jp-go-delivery/payload/sqlqueue"
)

// GlobalOptions holds flags shared by every command.
type GlobalOptions struct {
	ConfigFile string
}

// app wires a payload sender from configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   payload.Queue
	client  *delivery.Client
	sender  *payload.Sender
	results chan payload.Result
	done    chan struct{}

	closers []func() error
	server  *http.Server
}

func newApp(ctx context.Context, opts *GlobalOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  cfg.Log.NewLogger(logOut),
		results: make(chan payload.Result, 64),
		done:    make(chan struct{}),
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		a.serveMetrics(registry)
	}

	var transport delivery.Transport = delivery.NewHTTPTransport()
	if cfg.Breaker.Enabled {
		transport = delivery.NewBreakerTransport(transport, cfg.Breaker.BreakerOptions(a.logger)...)
	}

	clientOpts := []delivery.ClientOption{
		delivery.WithRetryPolicy(cfg.Retry.Policy()),
		delivery.WithAttemptTimeout(cfg.Client.Timeout),
		delivery.WithLogger(a.logger),
	}
	senderOpts := []payload.SenderOption{
		payload.WithSenderLogger(a.logger),
	}
	if registry != nil {
		clientOpts = append(clientOpts, delivery.WithListener(delivery.NewMetricsListener(registry)))
		senderOpts = append(senderOpts, payload.WithSenderMetrics(payload.NewSenderMetrics(registry, "payloadctl")))
	}

	a.client = delivery.NewClient(transport, clientOpts...)
	a.sender = payload.NewSender(a.store, a.onResult, senderOpts...)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	q := a.cfg.Queue
	switch q.Driver {
	case config.DriverPostgres:
		store, err := sqlqueue.Open(ctx, q.DSN, q.Table)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	case config.DriverRedis:
		store, err := redisqueue.Open(ctx, q.RedisAddr, q.RedisPassword, q.RedisDB, q.RedisKey,
			redisqueue.WithLogger(a.logger))
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	default:
		a.store = payload.NewMemoryQueue()
	}
	return nil
}

func (a *app) serveMetrics(registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	a.server = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
}

func (a *app) onResult(result payload.Result) {
	select {
	case a.results <- result:
	case <-a.done:
	}
}

// start attaches the HTTP service, which begins draining the queue.
func (a *app) start() {
	a.sender.SetService(payload.NewHTTPService(a.client, a.cfg.Client.BaseURL,
		payload.WithServiceLogger(a.logger)))
}

// waitFor blocks until every id in pending has a result. A failure that
// leaves a payload queued stops the wait with that error.
func (a *app) waitFor(ctx context.Context, pending map[string]struct{}, out io.Writer) error {
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result := <-a.results:
			if err := a.report(result, out); err != nil {
				return err
			}
			delete(pending, result.Record.ID)
		}
	}
	return nil
}

// waitDrained blocks until the queue is empty and the sender is idle.
func (a *app) waitDrained(ctx context.Context, out io.Writer) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result := <-a.results:
			if err := a.report(result, out); err != nil {
				return err
			}
		case <-ticker.C:
			if a.sender.State() != payload.StateIdle {
				continue
			}
			record, err := a.store.PeekOldest(ctx)
			if err != nil {
				return err
			}
			if record == nil {
				return nil
			}
		}
	}
}

func (a *app) report(result payload.Result, out io.Writer) error {
	switch {
	case result.Err == nil:
		fmt.Fprintf(out, "sent %s\n", result.Record)
	case payload.IsRejected(result.Err):
		fmt.Fprintf(out, "rejected %s: %v\n", result.Record, result.Err)
	default:
		return result.Err
	}
	return nil
}

func (a *app) close() {
	close(a.done)
	a.sender.Close()
	a.client.Close()
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}
