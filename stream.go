package textgen

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/ncecere/textgen-sdk/provider"
)

type streamState int

const (
	stateStreaming streamState = iota
	stateStopped
	stateFailed
)

// Stream starts a streaming completion and returns a decoder over the
// upstream fragments.
//
// Each fragment is scanned for the merged stop sequences on its own.
// Text before a match (or the whole fragment when none matches) is
// emitted if non-empty, after the request Observer has seen it. A match
// ends the stream and releases the upstream; no further fragments are
// requested. The caller must Close the stream, even after io.EOF.
func (e *Endpoint) Stream(ctx context.Context, req *CompletionRequest) (ChunkStream, error) {
	if req == nil {
		req = &CompletionRequest{}
	}
	params := MergeParams(e.generation, req.Stop, req.Params)
	e.logger.Debug("stream request",
		zap.String("model", e.model),
		zap.Int("prompt_len", len(req.Prompt)),
	)

	upstream, err := e.client.GenerateStream(ctx, req.Prompt, params)
	if err != nil {
		return nil, err
	}
	return &textStream{
		upstream: upstream,
		stops:    params.Stop(),
		observer: req.Observer,
		logger:   e.logger,
	}, nil
}

// textStream is single-owner and not safe for concurrent use.
type textStream struct {
	upstream provider.FragmentStream
	stops    []string
	observer provider.Observer
	logger   *zap.Logger

	state streamState
	err   error

	releaseOnce sync.Once
	releaseErr  error
}

// Next returns the next chunk, io.EOF once the stream has stopped, or
// the error that failed it.
func (s *textStream) Next(ctx context.Context) (*OutputChunk, error) {
	for {
		switch s.state {
		case stateStopped:
			return nil, io.EOF
		case stateFailed:
			return nil, s.err
		}

		fragment, err := s.upstream.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.finish(stateStopped, nil)
			return nil, io.EOF
		}
		if err != nil {
			s.finish(stateFailed, err)
			return nil, err
		}

		text, matched := cutAtStop(fragment, s.stops)
		if text != "" && s.observer != nil {
			if err := s.observer.OnNewToken(ctx, text); err != nil {
				s.finish(stateFailed, err)
				return nil, err
			}
		}
		if matched {
			s.logger.Debug("stop sequence reached", zap.Int("emitted_len", len(text)))
			s.finish(stateStopped, nil)
		}
		if text != "" {
			return &OutputChunk{Text: text}, nil
		}
	}
}

// Close releases the upstream stream. It is safe to call repeatedly.
func (s *textStream) Close() error {
	if s.state == stateStreaming {
		s.state = stateStopped
	}
	return s.release()
}

func (s *textStream) finish(state streamState, err error) {
	s.state = state
	s.err = err
	_ = s.release()
}

func (s *textStream) release() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.upstream.Close()
	})
	return s.releaseErr
}

var _ provider.ChunkStream = (*textStream)(nil)

// Chunks adapts a ChunkStream to a range-over-func sequence. The stream
// is closed when iteration ends, including when the loop body breaks
// early. An error is yielded once, as the final element.
func Chunks(ctx context.Context, stream ChunkStream) iter.Seq2[OutputChunk, error] {
	return func(yield func(OutputChunk, error) bool) {
		defer stream.Close()
		for {
			chunk, err := stream.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(OutputChunk{}, err)
				return
			}
			if !yield(*chunk, nil) {
				return
			}
		}
	}
}
