package rootcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tgiRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters"`
	Stream     bool           `json:"stream"`
}

func newTGIServer(t *testing.T, got *tgiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !got.Stream {
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `[{"generated_text":"Hello world\n\n"}]`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Hello", " world", "\n\nignored"} {
			b, _ := json.Marshal(map[string]any{"token": map[string]any{"text": tok}})
			_, _ = fmt.Fprintf(w, "data:%s\n\n", b)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCompleteCommand(t *testing.T) {
	var got tgiRequest
	srv := newTGIServer(t, &got)

	out, err := execute(t, "complete", "--endpoint-url", srv.URL, "--stop", `\n\n`, "--param", "seed=7", "What is Deep Learning?")
	require.NoError(t, err)

	assert.Equal(t, "Hello world\n", out)
	assert.Equal(t, "What is Deep Learning?", got.Inputs)
	assert.Equal(t, []any{"\n\n"}, got.Parameters["stop"])
	assert.Equal(t, float64(7), got.Parameters["seed"])
	assert.False(t, got.Stream)
}

func TestCompleteCommandAsync(t *testing.T) {
	var got tgiRequest
	srv := newTGIServer(t, &got)

	out, err := execute(t, "complete", "--endpoint-url", srv.URL, "--async", "--stop", `\n\n`, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", out)
}

func TestStreamCommand(t *testing.T) {
	for _, async := range []bool{false, true} {
		t.Run(fmt.Sprintf("async=%v", async), func(t *testing.T) {
			var got tgiRequest
			srv := newTGIServer(t, &got)

			args := []string{"stream", "--endpoint-url", srv.URL, "--stop", `\n\n`}
			if async {
				args = append(args, "--async")
			}
			out, err := execute(t, append(args, "hi")...)
			require.NoError(t, err)

			assert.Equal(t, "Hello world\n", out)
			assert.True(t, got.Stream)
		})
	}
}

func TestCompleteCommandRequiresTarget(t *testing.T) {
	t.Setenv("HF_INFERENCE_ENDPOINT", "")

	_, err := execute(t, "complete", "hi")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}
