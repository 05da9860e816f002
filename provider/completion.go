package provider

import "context"

// CompletionModel is the caller-facing completion interface. It offers
// blocking and non-blocking variants of both the one-shot and the
// streaming call.
type CompletionModel interface {
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
	CompleteAsync(ctx context.Context, req *CompletionRequest) <-chan CompletionResult
	Stream(ctx context.Context, req *CompletionRequest) (ChunkStream, error)
	StreamAsync(ctx context.Context, req *CompletionRequest) AsyncChunkStream
}

// CompletionRequest describes inputs for a single completion call.
type CompletionRequest struct {
	// Prompt is the input text.
	Prompt string
	// Stop holds additional stop sequences appended after the
	// configured ones.
	Stop []string
	// Params overrides configured generation parameters by name.
	Params map[string]any
	// Observer, if set, receives each emitted chunk while streaming.
	Observer Observer
}

// CompletionResult is the outcome of an asynchronous completion call.
type CompletionResult struct {
	Text string
	Err  error
}

// OutputChunk is a piece of finalized, stop-trimmed text.
type OutputChunk struct {
	Text string
}

// ChunkResult carries either an OutputChunk or the error that ended an
// asynchronous stream.
type ChunkResult struct {
	Chunk OutputChunk
	Err   error
}

// ChunkStream is a finite, consume-once sequence of output chunks.
// Next returns io.EOF after the last chunk. Close releases the upstream
// stream and may be called at any point, more than once.
type ChunkStream interface {
	Next(ctx context.Context) (*OutputChunk, error)
	Close() error
}

// AsyncChunkStream delivers output chunks over a channel that is closed
// once the stream terminates. Close stops the stream early and releases
// the upstream.
type AsyncChunkStream interface {
	Chunks() <-chan ChunkResult
	Close() error
}

// Observer is notified of each chunk as it is emitted. A returned error
// aborts the stream and is handed to the caller.
type Observer interface {
	OnNewToken(ctx context.Context, text string) error
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ctx context.Context, text string) error

// OnNewToken calls f(ctx, text).
func (f ObserverFunc) OnNewToken(ctx context.Context, text string) error {
	return f(ctx, text)
}
