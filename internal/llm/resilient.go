package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"
)

// DefaultCallTimeout bounds a single upstream call.
const DefaultCallTimeout = 30 * time.Second

var (
	tracer   = otel.Tracer("debated/llm")
	llmMeter = otel.GetMeterProvider().Meter("debated/llm")
)

// ResilientConfig configures a ResilientClient.
type ResilientConfig struct {
	Pool    *CredentialPool
	Factory Factory
	Logger  *slog.Logger

	// CallTimeout bounds each upstream attempt. A timeout is transient and
	// never rotates credentials.
	CallTimeout time.Duration

	// MaxConcurrency caps in-flight upstream calls across all sessions.
	// Zero means unbounded.
	MaxConcurrency int64
}

// ResilientClient is a Client that fails over across credentials on quota
// errors. Non-quota errors are returned immediately and leave the pool
// untouched.
type ResilientClient struct {
	pool        *CredentialPool
	factory     Factory
	logger      *slog.Logger
	callTimeout time.Duration
	sem         *semaphore.Weighted

	mu      sync.Mutex
	clients map[string]Client
}

// NewResilientClient creates a ResilientClient.
func NewResilientClient(cfg ResilientConfig) (*ResilientClient, error) {
	if cfg.Pool == nil {
		return nil, errors.New("llm: resilient client requires a credential pool")
	}
	if cfg.Factory == nil {
		return nil, errors.New("llm: resilient client requires a provider factory")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	c := &ResilientClient{
		pool:        cfg.Pool,
		factory:     cfg.Factory,
		logger:      cfg.Logger,
		callTimeout: cfg.CallTimeout,
		clients:     make(map[string]Client),
	}
	if cfg.MaxConcurrency > 0 {
		c.sem = semaphore.NewWeighted(cfg.MaxConcurrency)
	}
	return c, nil
}

// Pool returns the underlying credential pool.
func (c *ResilientClient) Pool() *CredentialPool {
	return c.pool
}

// Invoke sends prompt upstream. On a quota failure the current credential is
// marked failed and the call is retried with the next eligible one, at most
// once per credential.
func (c *ResilientClient) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.invoke")
	defer span.End()
	start := time.Now()

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", &Error{Kind: KindTransient, Op: "acquire slot", Err: err}
		}
		defer c.sem.Release(1)
	}

	out, rotations, err := c.invoke(ctx, prompt)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrAllCredentialsExhausted):
		outcome = "exhausted"
	case err != nil:
		outcome = Classify(err).String()
	}
	span.SetAttributes(
		attribute.Int("llm.rotations", rotations),
		attribute.String("llm.outcome", outcome),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	if counter, cerr := llmMeter.Int64Counter("llm.invocations"); cerr == nil {
		counter.Add(ctx, 1, attrs)
	}
	if rotations > 0 {
		if counter, cerr := llmMeter.Int64Counter("llm.credential_rotations"); cerr == nil {
			counter.Add(ctx, int64(rotations))
		}
	}
	if hist, herr := llmMeter.Float64Histogram("llm.duration", otelmetric.WithUnit("ms")); herr == nil {
		hist.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}
	return out, err
}

func (c *ResilientClient) invoke(ctx context.Context, prompt string) (string, int, error) {
	rotations := 0
	var lastErr error
	for range c.pool.Size() {
		idx, cred, err := c.pool.Acquire()
		if err != nil {
			return "", rotations, exhausted(lastErr)
		}

		client, err := c.clientFor(cred)
		if err != nil {
			return "", rotations, &Error{Kind: KindFatal, Op: "build client", Err: err}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		out, err := client.Invoke(callCtx, prompt)
		cancel()
		if err == nil {
			return out, rotations, nil
		}

		if Classify(err) != KindQuota {
			return "", rotations, wrap("invoke", err)
		}

		lastErr = err
		next, merr := c.pool.MarkFailed(idx)
		c.logger.Warn("llm: credential quota exhausted",
			"credential", Fingerprint(cred),
			"index", idx,
			"next_index", next,
			"error", err,
		)
		if merr != nil {
			return "", rotations, exhausted(lastErr)
		}
		rotations++
	}
	return "", rotations, exhausted(lastErr)
}

// clientFor returns the provider client for cred, building it on first use.
func (c *ResilientClient) clientFor(cred string) (Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[cred]; ok {
		return cl, nil
	}
	cl, err := c.factory(cred)
	if err != nil {
		return nil, err
	}
	c.clients[cred] = cl
	return cl, nil
}

func exhausted(last error) error {
	if last == nil {
		return ErrAllCredentialsExhausted
	}
	return fmt.Errorf("%w: last error: %v", ErrAllCredentialsExhausted, last)
}
