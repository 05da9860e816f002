package textgen

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/textgen-sdk/provider"
)

// fakeTransport is an in-memory TextGenerationClient.
type fakeTransport struct {
	text      string
	textErr   error
	fragments []string
	// failAfter, when set, is returned after the fragments instead of io.EOF.
	failAfter error
	streamErr error

	mu        sync.Mutex
	gotPrompt string
	gotParams provider.Params
	streams   []*fakeFragments
}

func (f *fakeTransport) GenerateText(ctx context.Context, prompt string, params provider.Params) (string, error) {
	f.record(prompt, params)
	if f.textErr != nil {
		return "", f.textErr
	}
	return f.text, nil
}

func (f *fakeTransport) GenerateStream(ctx context.Context, prompt string, params provider.Params) (provider.FragmentStream, error) {
	f.record(prompt, params)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	s := &fakeFragments{fragments: append([]string(nil), f.fragments...), failAfter: f.failAfter}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeTransport) record(prompt string, params provider.Params) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotPrompt = prompt
	f.gotParams = params
}

func (f *fakeTransport) params() provider.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotParams
}

func (f *fakeTransport) lastStream(t *testing.T) *fakeFragments {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.streams)
	return f.streams[len(f.streams)-1]
}

// fakeFragments counts reads and releases.
type fakeFragments struct {
	mu        sync.Mutex
	fragments []string
	failAfter error
	reads     int
	closes    atomic.Int32
}

func (s *fakeFragments) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if len(s.fragments) == 0 {
		if s.failAfter != nil {
			return "", s.failAfter
		}
		return "", io.EOF
	}
	f := s.fragments[0]
	s.fragments = s.fragments[1:]
	return f, nil
}

func (s *fakeFragments) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *fakeFragments) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func newTestEndpoint(t *testing.T, transport *fakeTransport, mutate ...func(*Config)) *Endpoint {
	t.Helper()
	cfg := Config{EndpointURL: "http://tgi.local", Generation: DefaultGenerationConfig()}
	for _, m := range mutate {
		m(&cfg)
	}
	ep, err := NewEndpoint(cfg, WithTransport(transport, nil))
	require.NoError(t, err)
	return ep
}

func collect(t *testing.T, stream ChunkStream) []string {
	t.Helper()
	var out []string
	for chunk, err := range Chunks(context.Background(), stream) {
		require.NoError(t, err)
		out = append(out, chunk.Text)
	}
	return out
}

func collectAsync(t *testing.T, stream AsyncChunkStream) []string {
	t.Helper()
	defer stream.Close()
	var out []string
	for res := range stream.Chunks() {
		require.NoError(t, res.Err)
		out = append(out, res.Chunk.Text)
	}
	return out
}
