package textgen

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Complete generates text for req and blocks until it is available.
//
// In streaming mode the streaming decoder is drained and the chunk
// texts are concatenated. Otherwise a single request is issued and any
// trailing stop sequence is trimmed from the response. Transport errors
// are returned unmodified.
func (e *Endpoint) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	if req == nil {
		req = &CompletionRequest{}
	}
	if e.streaming {
		stream, err := e.Stream(ctx, req)
		if err != nil {
			return "", err
		}
		defer stream.Close()
		return drain(ctx, stream)
	}

	params := MergeParams(e.generation, req.Stop, req.Params)
	e.logger.Debug("completion request",
		zap.String("model", e.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Int("stop_count", len(params.Stop())),
	)

	text, err := e.client.GenerateText(ctx, req.Prompt, params)
	if err != nil {
		return "", err
	}
	return TrimTrailingStop(text, params.Stop()), nil
}

// CompleteAsync is the non-blocking form of Complete. The returned
// channel delivers exactly one CompletionResult and is then closed.
func (e *Endpoint) CompleteAsync(ctx context.Context, req *CompletionRequest) <-chan CompletionResult {
	if req == nil {
		req = &CompletionRequest{}
	}
	out := make(chan CompletionResult, 1)

	if e.streaming {
		stream := e.StreamAsync(ctx, req)
		go func() {
			defer close(out)
			defer stream.Close()
			var sb strings.Builder
			for res := range stream.Chunks() {
				if res.Err != nil {
					out <- CompletionResult{Err: res.Err}
					return
				}
				sb.WriteString(res.Chunk.Text)
			}
			out <- CompletionResult{Text: sb.String()}
		}()
		return out
	}

	params := MergeParams(e.generation, req.Stop, req.Params)
	e.logger.Debug("async completion request",
		zap.String("model", e.model),
		zap.Int("prompt_len", len(req.Prompt)),
	)
	pending := e.asyncClient.GenerateTextAsync(ctx, req.Prompt, params)

	go func() {
		defer close(out)
		select {
		case res, ok := <-pending:
			if !ok {
				out <- CompletionResult{Err: io.ErrUnexpectedEOF}
				return
			}
			if res.Err != nil {
				out <- CompletionResult{Err: res.Err}
				return
			}
			out <- CompletionResult{Text: TrimTrailingStop(res.Text, params.Stop())}
		case <-ctx.Done():
			out <- CompletionResult{Err: ctx.Err()}
		}
	}()
	return out
}

// drain concatenates every chunk of stream.
func drain(ctx context.Context, stream ChunkStream) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(chunk.Text)
	}
}
