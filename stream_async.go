package textgen

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ncecere/textgen-sdk/provider"
)

// StreamAsync is the non-blocking form of Stream. It returns at once;
// a goroutine drives the asynchronous transport and delivers chunks on
// the Chunks channel, which is closed when the stream terminates. A
// failure is delivered as the final ChunkResult.
//
// The decoding rules are those of Stream. Close stops the stream early:
// it cancels the request, including one still connecting, and waits for
// the goroutine to exit, by which point the upstream has been released.
func (e *Endpoint) StreamAsync(ctx context.Context, req *CompletionRequest) AsyncChunkStream {
	if req == nil {
		req = &CompletionRequest{}
	}
	params := MergeParams(e.generation, req.Stop, req.Params)
	e.logger.Debug("async stream request",
		zap.String("model", e.model),
		zap.Int("prompt_len", len(req.Prompt)),
	)

	ctx, cancel := context.WithCancel(ctx)
	s := &asyncTextStream{
		cancel:   cancel,
		out:      make(chan ChunkResult),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		stops:    params.Stop(),
		observer: req.Observer,
		logger:   e.logger,
	}
	go s.run(ctx, e.asyncClient, req.Prompt, params)
	return s
}

type asyncTextStream struct {
	cancel   context.CancelFunc
	out      chan ChunkResult
	done     chan struct{}
	finished chan struct{}

	stops    []string
	observer provider.Observer
	logger   *zap.Logger

	closeOnce  sync.Once
	releaseErr error
}

var _ provider.AsyncChunkStream = (*asyncTextStream)(nil)

func (s *asyncTextStream) Chunks() <-chan ChunkResult {
	return s.out
}

func (s *asyncTextStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
	<-s.finished
	return s.releaseErr
}

func (s *asyncTextStream) run(ctx context.Context, client provider.AsyncTextGenerationClient, prompt string, params provider.Params) {
	defer close(s.finished)
	defer s.cancel()
	defer close(s.out)

	upstream := client.GenerateStreamAsync(ctx, prompt, params)
	defer func() {
		s.releaseErr = upstream.Close()
	}()

	fragments := upstream.Fragments()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.send(ChunkResult{Err: ctx.Err()})
			return
		case f, ok := <-fragments:
			if !ok {
				return
			}
			if f.Err != nil {
				s.send(ChunkResult{Err: f.Err})
				return
			}

			text, matched := cutAtStop(f.Text, s.stops)
			if text != "" {
				if s.observer != nil {
					if err := s.observer.OnNewToken(ctx, text); err != nil {
						s.send(ChunkResult{Err: err})
						return
					}
				}
				if !s.send(ChunkResult{Chunk: OutputChunk{Text: text}}) {
					return
				}
			}
			if matched {
				s.logger.Debug("stop sequence reached", zap.Int("emitted_len", len(text)))
				return
			}
		}
	}
}

// send delivers res unless the consumer has closed the stream.
func (s *asyncTextStream) send(res ChunkResult) bool {
	select {
	case s.out <- res:
		return true
	case <-s.done:
		return false
	}
}
