package huggingface

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ncecere/textgen-sdk/provider"
)

// AsyncClient runs requests of a blocking provider.TextGenerationClient
// on background goroutines and delivers results over channels.
type AsyncClient struct {
	client provider.TextGenerationClient
}

var _ provider.AsyncTextGenerationClient = (*AsyncClient)(nil)

// NewAsyncClient wraps client for non-blocking use.
func NewAsyncClient(client provider.TextGenerationClient) *AsyncClient {
	return &AsyncClient{client: client}
}

// GenerateTextAsync implements provider.AsyncTextGenerationClient.
func (a *AsyncClient) GenerateTextAsync(ctx context.Context, prompt string, params provider.Params) <-chan provider.TextResult {
	out := make(chan provider.TextResult, 1)
	go func() {
		defer close(out)
		text, err := a.client.GenerateText(ctx, prompt, params)
		out <- provider.TextResult{Text: text, Err: err}
	}()
	return out
}

// GenerateStreamAsync implements provider.AsyncTextGenerationClient.
func (a *AsyncClient) GenerateStreamAsync(ctx context.Context, prompt string, params provider.Params) provider.AsyncFragmentStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &asyncFragmentStream{
		out:      make(chan provider.Fragment),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		cancel:   cancel,
	}
	go s.run(ctx, a.client, prompt, params)
	return s
}

type asyncFragmentStream struct {
	out      chan provider.Fragment
	done     chan struct{}
	finished chan struct{}
	cancel   context.CancelFunc

	once     sync.Once
	closeErr error

	mu       sync.Mutex
	upstream provider.FragmentStream
	closed   bool
}

func (s *asyncFragmentStream) Fragments() <-chan provider.Fragment {
	return s.out
}

// Close stops delivery and releases the upstream. It cancels a request
// still waiting for response headers, and closing the upstream unblocks
// a pending read on the response body. Close returns once the
// background goroutine has exited.
func (s *asyncFragmentStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		s.closeErr = s.release()
	})
	<-s.finished
	return s.closeErr
}

func (s *asyncFragmentStream) release() error {
	s.mu.Lock()
	up := s.upstream
	s.upstream = nil
	s.closed = true
	s.mu.Unlock()
	if up == nil {
		return nil
	}
	return up.Close()
}

func (s *asyncFragmentStream) run(ctx context.Context, client provider.TextGenerationClient, prompt string, params provider.Params) {
	defer close(s.finished)
	defer s.cancel()
	defer close(s.out)

	up, err := client.GenerateStream(ctx, prompt, params)
	if err != nil {
		s.send(provider.Fragment{Err: err})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = up.Close()
		return
	}
	s.upstream = up
	s.mu.Unlock()
	defer s.release()

	for {
		text, err := up.Next(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.send(provider.Fragment{Err: err})
			return
		}
		if !s.send(provider.Fragment{Text: text}) {
			return
		}
	}
}

func (s *asyncFragmentStream) send(f provider.Fragment) bool {
	select {
	case s.out <- f:
		return true
	case <-s.done:
		return false
	}
}
