package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ncecere/textgen-sdk/provider"
	"github.com/ncecere/textgen-sdk/providerutil"
)

// StreamError reports an error frame or a malformed frame received on a
// streaming response.
type StreamError struct {
	// Type is the server supplied error_type, if any.
	Type string
	// Message describes the failure.
	Message string
	// Data holds the raw frame payload.
	Data string
}

func (e *StreamError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Type != "" {
		return fmt.Sprintf("huggingface: stream error (%s): %s", e.Type, e.Message)
	}
	return "huggingface: stream error: " + e.Message
}

type streamFrame struct {
	Token *struct {
		ID      int     `json:"id"`
		Text    string  `json:"text"`
		Special bool    `json:"special"`
		Logprob float64 `json:"logprob"`
	} `json:"token"`
	GeneratedText *string `json:"generated_text"`
	Error         string  `json:"error"`
	ErrorType     string  `json:"error_type"`
}

type tokenStream struct {
	body    io.ReadCloser
	scanner *providerutil.SSEScanner

	mu     sync.Mutex
	done   bool
	closed bool
}

func newTokenStream(body io.ReadCloser) *tokenStream {
	return &tokenStream{
		body:    body,
		scanner: providerutil.NewSSEScanner(body),
	}
}

// Next implements provider.FragmentStream. If ctx is done while a read
// is pending, the response body is closed and ctx's error is returned;
// the stream cannot be resumed after that.
func (s *tokenStream) Next(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.isDone() {
			return "", io.EOF
		}
		if !s.scanner.Next() {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if err := s.scanner.Err(); err != nil {
				if s.isDone() {
					return "", io.EOF
				}
				return "", err
			}
			s.markDone()
			return "", io.EOF
		}

		ev := s.scanner.Event()
		if ev.Data == "" {
			continue
		}
		if ev.Data == "[DONE]" {
			s.markDone()
			return "", io.EOF
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(ev.Data), &frame); err != nil {
			return "", &StreamError{Message: "malformed frame: " + err.Error(), Data: ev.Data}
		}
		if frame.Error != "" {
			return "", &StreamError{Type: frame.ErrorType, Message: frame.Error, Data: ev.Data}
		}
		if frame.Token == nil {
			return "", &StreamError{Message: "frame has no token", Data: ev.Data}
		}
		return frame.Token.Text, nil
	}
}

// Close implements provider.FragmentStream.
func (s *tokenStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.done = true
	s.mu.Unlock()
	return s.body.Close()
}

func (s *tokenStream) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *tokenStream) markDone() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

var _ provider.FragmentStream = (*tokenStream)(nil)
