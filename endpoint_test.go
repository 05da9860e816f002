package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ncecere/textgen-sdk/provider"
)

func clearModelEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HF_INFERENCE_ENDPOINT", "")
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "")
	t.Setenv("HF_TOKEN", "")
}

func TestNewEndpointConflictingModel(t *testing.T) {
	clearModelEnv(t)

	_, err := NewEndpoint(Config{EndpointURL: "http://a", RepoID: "org/model"})
	assert.ErrorIs(t, err, ErrConflictingModel)

	_, err = NewEndpoint(Config{Model: "org/model", EndpointURL: "http://a"})
	assert.ErrorIs(t, err, ErrConflictingModel)
}

func TestNewEndpointMissingModel(t *testing.T) {
	clearModelEnv(t)

	_, err := NewEndpoint(Config{})
	assert.ErrorIs(t, err, ErrMissingModel)
}

func TestNewEndpointModelFromEnv(t *testing.T) {
	clearModelEnv(t)
	t.Setenv("HF_INFERENCE_ENDPOINT", "http://env.local/")

	ep, err := NewEndpoint(Config{})
	require.NoError(t, err)
	assert.Equal(t, "http://env.local/", ep.Model())
}

func TestNewEndpointInvalidTask(t *testing.T) {
	clearModelEnv(t)

	_, err := NewEndpoint(Config{EndpointURL: "http://a", Task: "image-classification"})
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "task", invalid.Parameter)

	_, err = NewEndpoint(Config{EndpointURL: "http://a", Task: "summarization"})
	assert.NoError(t, err)
}

func TestNewEndpointValidatesGeneration(t *testing.T) {
	cases := map[string]GenerationConfig{
		"top_p":        {TopP: Float64(1.5)},
		"typical_p":    {TypicalP: Float64(0)},
		"temperature":  {Temperature: Float64(-1)},
		"top_k":        {TopK: Int(0)},
		"stop":         {StopSequences: []string{"ok", ""}},
		"model_kwargs": {ModelKwargs: map[string]any{"temperature": 0.2}},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewEndpoint(Config{EndpointURL: "http://a", Generation: gen})
			var invalid *InvalidArgumentError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, name, invalid.Parameter)
		})
	}
}

func TestNewEndpointDefaultsMaxNewTokens(t *testing.T) {
	ep, err := NewEndpoint(Config{EndpointURL: "http://a"})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxNewTokens, ep.Generation().MaxNewTokens)
}

func TestNewEndpointOwnsGeneration(t *testing.T) {
	gen := DefaultGenerationConfig()
	gen.StopSequences = []string{"a"}
	ep, err := NewEndpoint(Config{EndpointURL: "http://a", Generation: gen})
	require.NoError(t, err)

	gen.StopSequences[0] = "changed"
	assert.Equal(t, []string{"a"}, ep.Generation().StopSequences)
}

func TestEndpointIdentity(t *testing.T) {
	gen := DefaultGenerationConfig()
	gen.ModelKwargs = map[string]any{"best_of": 2}
	ep, err := NewEndpoint(Config{
		RepoID:     "mistralai/Mistral-Nemo-Base-2407",
		Provider:   "novita",
		Task:       "text-generation",
		Generation: gen,
	})
	require.NoError(t, err)

	assert.Equal(t, EndpointType, ep.Type())
	assert.Equal(t, "mistralai/Mistral-Nemo-Base-2407", ep.Model())
	assert.False(t, ep.Streaming())
	assert.Equal(t, map[string]any{
		"endpoint_url": "",
		"task":         "text-generation",
		"provider":     "novita",
		"model_kwargs": map[string]any{"best_of": 2},
	}, ep.IdentifyingParams())
}

func TestNewEndpointServerKwargs(t *testing.T) {
	clearModelEnv(t)
	t.Setenv("HF_TOKEN", "hf_env")

	var gotHeader, gotCookie, gotBill, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Team")
		gotBill = r.Header.Get("X-HF-Bill-To")
		gotAuth = r.Header.Get("Authorization")
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"generated_text": "ok"})
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	ep, err := NewEndpoint(Config{
		EndpointURL: srv.URL,
		Timeout:     5 * time.Second,
		ServerKwargs: map[string]any{
			ServerKwargHeaders: map[string]any{"X-Team": "research"},
			ServerKwargCookies: map[string]string{"session": "abc"},
			ServerKwargBillTo:  "my-org",
			"unknown_option":   1,
		},
	}, WithLogger(zap.New(core)))
	require.NoError(t, err)

	text, err := ep.Complete(context.Background(), &CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	assert.Equal(t, "research", gotHeader)
	assert.Equal(t, "abc", gotCookie)
	assert.Equal(t, "my-org", gotBill)
	assert.Equal(t, "Bearer hf_env", gotAuth)

	warnings := logs.FilterMessageSnippet("ignoring server kwargs").All()
	require.Len(t, warnings, 1)
}

func TestNewEndpointTokenPrecedence(t *testing.T) {
	clearModelEnv(t)
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "hub_token")
	t.Setenv("HF_TOKEN", "hf_token")

	opts, err := transportOptions(Config{}, "http://a", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "hub_token", opts.APIKey)

	opts, err = transportOptions(Config{APIToken: "explicit"}, "http://a", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "explicit", opts.APIKey)
	assert.Equal(t, DefaultTimeout, opts.Timeout)
}

func TestNewEndpointRejectsMalformedServerKwargs(t *testing.T) {
	_, err := NewEndpoint(Config{
		EndpointURL:  "http://a",
		ServerKwargs: map[string]any{ServerKwargHeaders: "not-a-map"},
	})
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ServerKwargHeaders, invalid.Parameter)
}

func TestWrapTransport(t *testing.T) {
	transport := &fakeTransport{text: "inner"}
	var wrapped bool
	ep, err := NewEndpoint(Config{EndpointURL: "http://a"},
		WithTransport(transport, nil),
		WrapTransport(func(c provider.TextGenerationClient) provider.TextGenerationClient {
			wrapped = true
			return c
		}),
	)
	require.NoError(t, err)
	assert.True(t, wrapped)

	res := <-ep.CompleteAsync(context.Background(), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, "inner", res.Text)
}
