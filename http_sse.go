package textgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// WriteTextStreamAsSSE writes a ChunkStream to an http.ResponseWriter
// using the Server-Sent Events (SSE) format.
//
// It sets the standard SSE headers and then sends each chunk as a
// `data:` event; embedded newlines become additional data lines. The
// stream is closed on return.
func WriteTextStreamAsSSE(ctx context.Context, w http.ResponseWriter, stream ChunkStream) error {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	return WriteSSE(ctx, w, stream, func() {
		if flusher != nil {
			flusher.Flush()
		}
	})
}

// WriteSSE writes every chunk of stream to w as SSE events followed by a
// final [DONE] marker, calling flush after each event. The stream is
// closed on return.
func WriteSSE(ctx context.Context, w io.Writer, stream ChunkStream, flush func()) error {
	defer stream.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if _, err := io.WriteString(w, formatSSEData(chunk.Text)); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
	}

	// Send a final [DONE] marker for convenience.
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

func formatSSEData(text string) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	return sb.String()
}
