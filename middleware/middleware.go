package middleware

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ncecere/textgen-sdk/provider"
	"github.com/ncecere/textgen-sdk/providerutil"
)

// ClientMiddleware wraps a provider.TextGenerationClient with additional
// behavior such as logging, retries, or telemetry.
type ClientMiddleware func(provider.TextGenerationClient) provider.TextGenerationClient

// WrapClient applies the provided middlewares around the base client.
// Middlewares are applied in the order provided, so the first
// middleware becomes the outermost wrapper.
func WrapClient(base provider.TextGenerationClient, mws ...ClientMiddleware) provider.TextGenerationClient {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// LoggingOptions controls which aspects of a transport call are logged
// by the logging middleware.
type LoggingOptions struct {
	// Logger is the destination for log output. If nil, zap.NewNop() is used.
	Logger *zap.Logger
	// Model labels every log entry.
	Model string
	// LogRequest controls whether request metadata is logged.
	LogRequest bool
	// LogResponse controls whether successful responses are logged.
	LogResponse bool
	// LogErrors controls whether errors are logged.
	LogErrors bool
	// LogDuration controls whether call duration is logged.
	LogDuration bool
}

func defaultLoggingOptions(opts LoggingOptions) LoggingOptions {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	// By default, log request metadata, errors, and duration.
	if !opts.LogRequest && !opts.LogResponse && !opts.LogErrors && !opts.LogDuration {
		opts.LogRequest = true
		opts.LogErrors = true
		opts.LogDuration = true
	}
	return opts
}

// LoggingClient returns a ClientMiddleware that logs GenerateText and
// GenerateStream calls. Logs carry metadata only (model, prompt length,
// duration and error), never prompts or generated text.
func LoggingClient(opts LoggingOptions) ClientMiddleware {
	opts = defaultLoggingOptions(opts)

	return func(next provider.TextGenerationClient) provider.TextGenerationClient {
		return &loggingClient{
			next:   next,
			opts:   opts,
			logger: opts.Logger.With(zap.String("model", opts.Model)),
		}
	}
}

type loggingClient struct {
	next   provider.TextGenerationClient
	opts   LoggingOptions
	logger *zap.Logger
}

func (l *loggingClient) GenerateText(ctx context.Context, prompt string, params provider.Params) (string, error) {
	start := time.Now()
	if l.opts.LogRequest {
		l.logger.Info("textgen.generate start",
			zap.Int("prompt_len", len(prompt)),
			zap.Int("params", params.Len()),
		)
	}

	text, err := l.next.GenerateText(ctx, prompt, params)
	fields := l.durationFields(start)

	if err != nil {
		if l.opts.LogErrors {
			l.logger.Error("textgen.generate error", append(fields, zap.Error(err))...)
		}
		return "", err
	}

	if l.opts.LogResponse {
		l.logger.Info("textgen.generate success", append(fields, zap.Int("text_len", len(text)))...)
	} else if l.opts.LogDuration {
		l.logger.Info("textgen.generate done", fields...)
	}
	return text, nil
}

func (l *loggingClient) GenerateStream(ctx context.Context, prompt string, params provider.Params) (provider.FragmentStream, error) {
	start := time.Now()
	if l.opts.LogRequest {
		l.logger.Info("textgen.stream start",
			zap.Int("prompt_len", len(prompt)),
			zap.Int("params", params.Len()),
		)
	}

	stream, err := l.next.GenerateStream(ctx, prompt, params)
	if err != nil {
		if l.opts.LogErrors {
			l.logger.Error("textgen.stream error", append(l.durationFields(start), zap.Error(err))...)
		}
		return nil, err
	}

	if l.opts.LogResponse {
		l.logger.Info("textgen.stream established", l.durationFields(start)...)
	}
	return stream, nil
}

func (l *loggingClient) durationFields(start time.Time) []zap.Field {
	if !l.opts.LogDuration {
		return nil
	}
	return []zap.Field{zap.Duration("duration", time.Since(start))}
}

// RetryOptions configures the retry middleware for transport calls.
type RetryOptions struct {
	// MaxAttempts is the maximum number of attempts, including the first
	// call. If zero or negative, a default of 3 attempts is used.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry. If zero, a
	// default of 100ms is used.
	InitialBackoff time.Duration
	// MaxBackoff caps the backoff delay. If zero, no cap is applied.
	MaxBackoff time.Duration
	// ShouldRetry determines whether a given error is considered
	// transient and should be retried. If nil, timeouts, temporary
	// network errors and 429/502/503/504 responses are retried.
	ShouldRetry func(error) bool
}

func defaultRetryOptions(opts RetryOptions) RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.ShouldRetry == nil {
		opts.ShouldRetry = isTransientError
	}
	return opts
}

// RetryClient returns a ClientMiddleware that retries GenerateText and
// the establishment of GenerateStream when ShouldRetry returns true for
// the encountered error. A stream that has started delivering fragments
// is never retried. Retries respect the provided context for
// cancellation.
func RetryClient(opts RetryOptions) ClientMiddleware {
	opts = defaultRetryOptions(opts)

	return func(next provider.TextGenerationClient) provider.TextGenerationClient {
		return &retryClient{
			next: next,
			opt:  opts,
		}
	}
}

type retryClient struct {
	next provider.TextGenerationClient
	opt  RetryOptions
}

func (r *retryClient) GenerateText(ctx context.Context, prompt string, params provider.Params) (string, error) {
	var text string
	err := r.do(ctx, func() error {
		var err error
		text, err = r.next.GenerateText(ctx, prompt, params)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (r *retryClient) GenerateStream(ctx context.Context, prompt string, params provider.Params) (provider.FragmentStream, error) {
	var stream provider.FragmentStream
	err := r.do(ctx, func() error {
		var err error
		stream, err = r.next.GenerateStream(ctx, prompt, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (r *retryClient) do(ctx context.Context, call func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := call()
		if err == nil {
			return struct{}{}, nil
		}
		// Do not retry on context cancellation.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return struct{}{}, backoff.Permanent(err)
		}
		if !r.opt.ShouldRetry(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(newBackOff(r.opt)),
		backoff.WithMaxTries(uint(r.opt.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// newBackOff builds the exponential policy for opts: delays start at
// InitialBackoff and double up to MaxBackoff, without jitter.
func newBackOff(opts RetryOptions) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialBackoff
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = opts.MaxBackoff
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = time.Duration(math.MaxInt64 / 2)
	}
	return bo
}

// isTransientError reports whether err looks like a transient failure
// suitable for retry.
func isTransientError(err error) bool {
	var httpErr *providerutil.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// RateLimitClient returns a ClientMiddleware that waits on limiter
// before every call. A cancelled context while waiting is returned as
// the call's error.
func RateLimitClient(limiter *rate.Limiter) ClientMiddleware {
	return func(next provider.TextGenerationClient) provider.TextGenerationClient {
		return &rateLimitClient{next: next, limiter: limiter}
	}
}

type rateLimitClient struct {
	next    provider.TextGenerationClient
	limiter *rate.Limiter
}

func (r *rateLimitClient) GenerateText(ctx context.Context, prompt string, params provider.Params) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.GenerateText(ctx, prompt, params)
}

func (r *rateLimitClient) GenerateStream(ctx context.Context, prompt string, params provider.Params) (provider.FragmentStream, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GenerateStream(ctx, prompt, params)
}

// CallKind describes the kind of transport call for telemetry purposes.
type CallKind string

const (
	// CallGenerate represents a non-streaming GenerateText call.
	CallGenerate CallKind = "generate"
	// CallStream represents establishing a streaming call.
	CallStream CallKind = "stream"
)

// CallInfo contains high-level metadata about a transport call that can
// be used for metrics or tracing.
type CallInfo struct {
	Kind      CallKind
	Model     string
	PromptLen int
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// TelemetryHooks defines callbacks that are invoked around transport
// calls so that callers can feed metrics or tracing systems.
type TelemetryHooks struct {
	// Model labels every CallInfo.
	Model  string
	OnCall func(ctx context.Context, info CallInfo)
}

// TelemetryClient returns a ClientMiddleware that invokes the provided
// telemetry hooks around GenerateText and GenerateStream calls.
func TelemetryClient(hooks TelemetryHooks) ClientMiddleware {
	return func(next provider.TextGenerationClient) provider.TextGenerationClient {
		return &telemetryClient{
			next:  next,
			hooks: hooks,
		}
	}
}

type telemetryClient struct {
	next  provider.TextGenerationClient
	hooks TelemetryHooks
}

func (t *telemetryClient) GenerateText(ctx context.Context, prompt string, params provider.Params) (string, error) {
	start := time.Now()
	text, err := t.next.GenerateText(ctx, prompt, params)
	t.report(ctx, CallGenerate, len(prompt), start, err)
	return text, err
}

func (t *telemetryClient) GenerateStream(ctx context.Context, prompt string, params provider.Params) (provider.FragmentStream, error) {
	start := time.Now()
	stream, err := t.next.GenerateStream(ctx, prompt, params)
	t.report(ctx, CallStream, len(prompt), start, err)
	return stream, err
}

func (t *telemetryClient) report(ctx context.Context, kind CallKind, promptLen int, start time.Time, err error) {
	if t.hooks.OnCall == nil {
		return
	}
	t.hooks.OnCall(ctx, CallInfo{
		Kind:      kind,
		Model:     t.hooks.Model,
		PromptLen: promptLen,
		StartTime: start,
		EndTime:   time.Now(),
		Err:       err,
	})
}
