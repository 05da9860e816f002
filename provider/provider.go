package provider

import (
	"context"
	"net/http"
)

// HTTPClient is the minimal interface required from an HTTP client.
// It matches the Do method on *http.Client and allows callers to
// substitute custom clients or middleware.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TextGenerationClient is the blocking transport used to reach a remote
// text-generation endpoint. Implementations receive fully merged
// invocation parameters and must not modify them.
type TextGenerationClient interface {
	// GenerateText issues a single non-streaming request and returns the
	// complete generated text.
	GenerateText(ctx context.Context, prompt string, params Params) (string, error)
	// GenerateStream issues a streaming request and returns a stream of
	// raw text fragments.
	GenerateStream(ctx context.Context, prompt string, params Params) (FragmentStream, error)
}

// FragmentStream yields raw text fragments from a streaming response.
// Next blocks until a fragment is available and returns io.EOF once the
// upstream finishes normally. If ctx is done while Next is blocked, Next
// returns ctx's error; the stream may not be usable afterwards. Close
// releases the underlying connection and must be safe to call more than
// once.
type FragmentStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// AsyncTextGenerationClient is the non-blocking counterpart of
// TextGenerationClient. Neither method blocks the caller; results are
// delivered over channels.
type AsyncTextGenerationClient interface {
	// GenerateTextAsync delivers exactly one TextResult and then closes
	// the returned channel.
	GenerateTextAsync(ctx context.Context, prompt string, params Params) <-chan TextResult
	// GenerateStreamAsync starts a streaming request. Connection errors
	// are delivered as the first Fragment.
	GenerateStreamAsync(ctx context.Context, prompt string, params Params) AsyncFragmentStream
}

// TextResult is the outcome of an asynchronous non-streaming request.
type TextResult struct {
	Text string
	Err  error
}

// Fragment is one unit of raw text received from an asynchronous
// streaming request. A non-nil Err terminates the stream.
type Fragment struct {
	Text string
	Err  error
}

// AsyncFragmentStream exposes asynchronously received fragments. The
// Fragments channel is closed when the upstream finishes, fails, or the
// stream is closed. Close releases the upstream exactly once.
type AsyncFragmentStream interface {
	Fragments() <-chan Fragment
	Close() error
}
