package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/ncecere/textgen-sdk/provider"
	"github.com/ncecere/textgen-sdk/providerutil"
)

type fakeClient struct {
	calls      int
	errs       []error
	text       string
	streamCall int
}

func (f *fakeClient) GenerateText(ctx context.Context, prompt string, params provider.Params) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.text, nil
}

func (f *fakeClient) GenerateStream(ctx context.Context, prompt string, params provider.Params) (provider.FragmentStream, error) {
	f.streamCall++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return emptyStream{}, nil
}

type emptyStream struct{}

func (emptyStream) Next(context.Context) (string, error) { return "", io.EOF }
func (emptyStream) Close() error                         { return nil }

func TestWrapClientOrder(t *testing.T) {
	var order []string
	mark := func(name string) ClientMiddleware {
		return TelemetryClient(TelemetryHooks{OnCall: func(ctx context.Context, info CallInfo) {
			order = append(order, name)
		}})
	}

	client := WrapClient(&fakeClient{text: "ok"}, mark("outer"), mark("inner"))
	_, err := client.GenerateText(context.Background(), "p", provider.Params{})
	require.NoError(t, err)

	// Hooks fire on the way out, so the inner wrapper reports first.
	assert.Equal(t, []string{"inner", "outer"}, order)
}

func TestRetryClientRetriesTransientStatus(t *testing.T) {
	base := &fakeClient{
		text: "done",
		errs: []error{&providerutil.HTTPError{StatusCode: http.StatusServiceUnavailable}, nil},
	}
	client := RetryClient(RetryOptions{InitialBackoff: time.Millisecond})(base)

	text, err := client.GenerateText(context.Background(), "p", provider.Params{})
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, 2, base.calls)
}

func TestRetryClientStopsOnPermanentError(t *testing.T) {
	permanent := &providerutil.HTTPError{StatusCode: http.StatusBadRequest, Body: "bad"}
	base := &fakeClient{errs: []error{permanent}}
	client := RetryClient(RetryOptions{InitialBackoff: time.Millisecond})(base)

	_, err := client.GenerateText(context.Background(), "p", provider.Params{})
	assert.Same(t, permanent, err)
	assert.Equal(t, 1, base.calls)
}

func TestRetryClientExhaustsAttempts(t *testing.T) {
	transient := &providerutil.HTTPError{StatusCode: http.StatusTooManyRequests}
	base := &fakeClient{errs: []error{transient, transient, transient, transient}}
	client := RetryClient(RetryOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond})(base)

	_, err := client.GenerateStream(context.Background(), "p", provider.Params{})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, base.streamCall)
}

func TestRetryClientHonoursCancellation(t *testing.T) {
	base := &fakeClient{errs: []error{context.Canceled}}
	client := RetryClient(RetryOptions{})(base)

	_, err := client.GenerateText(context.Background(), "p", provider.Params{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, base.calls)
}

func TestNewBackOffDoublesUpToCap(t *testing.T) {
	uncapped := newBackOff(defaultRetryOptions(RetryOptions{}))
	assert.InDelta(t, float64(100*time.Millisecond), float64(uncapped.NextBackOff()), float64(time.Millisecond))
	assert.InDelta(t, float64(200*time.Millisecond), float64(uncapped.NextBackOff()), float64(time.Millisecond))
	assert.InDelta(t, float64(400*time.Millisecond), float64(uncapped.NextBackOff()), float64(time.Millisecond))

	capped := newBackOff(defaultRetryOptions(RetryOptions{MaxBackoff: 150 * time.Millisecond}))
	assert.InDelta(t, float64(100*time.Millisecond), float64(capped.NextBackOff()), float64(time.Millisecond))
	assert.InDelta(t, float64(150*time.Millisecond), float64(capped.NextBackOff()), float64(time.Millisecond))
	assert.InDelta(t, float64(150*time.Millisecond), float64(capped.NextBackOff()), float64(time.Millisecond))
}

func TestRetryClientStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	transient := &providerutil.HTTPError{StatusCode: http.StatusBadGateway}
	base := &fakeClient{errs: []error{transient, transient, transient}}
	client := RetryClient(RetryOptions{MaxAttempts: 3, InitialBackoff: time.Hour})(base)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.GenerateText(ctx, "p", provider.Params{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, base.calls)
}

func TestLoggingClientLogsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	boom := errors.New("boom")
	client := LoggingClient(LoggingOptions{Logger: zap.New(core), Model: "tgi"})(&fakeClient{errs: []error{boom}})

	_, err := client.GenerateText(context.Background(), "hello", provider.Params{})
	require.ErrorIs(t, err, boom)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "textgen.generate start", entries[0].Message)
	assert.Equal(t, "textgen.generate error", entries[1].Message)
	assert.Equal(t, "tgi", entries[1].ContextMap()["model"])
}

func TestTelemetryClientReportsStream(t *testing.T) {
	var got CallInfo
	client := TelemetryClient(TelemetryHooks{
		Model: "tgi",
		OnCall: func(ctx context.Context, info CallInfo) {
			got = info
		},
	})(&fakeClient{})

	stream, err := client.GenerateStream(context.Background(), "abc", provider.Params{})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, CallStream, got.Kind)
	assert.Equal(t, "tgi", got.Model)
	assert.Equal(t, 3, got.PromptLen)
	assert.NoError(t, got.Err)
	assert.False(t, got.EndTime.Before(got.StartTime))
}

func TestRateLimitClientHonoursContext(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	base := &fakeClient{text: "ok"}
	client := RateLimitClient(limiter)(base)

	_, err := client.GenerateText(context.Background(), "p", provider.Params{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.GenerateText(ctx, "p", provider.Params{})
	assert.Error(t, err)
	assert.Equal(t, 1, base.calls)
}
