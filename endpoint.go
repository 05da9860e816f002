package textgen

import (
	"fmt"
	"maps"
	"net/http"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ncecere/textgen-sdk/huggingface"
	"github.com/ncecere/textgen-sdk/provider"
)

// EndpointType identifies completion models created by NewEndpoint.
const EndpointType = "huggingface_endpoint"

// DefaultTimeout is used when Config.Timeout is zero.
const DefaultTimeout = 120 * time.Second

// ValidTasks lists the tasks that return generated text.
var ValidTasks = []string{
	"text2text-generation",
	"text-generation",
	"summarization",
	"conversational",
}

// Server keyword arguments understood by the transport.
const (
	ServerKwargHeaders = "headers"
	ServerKwargCookies = "cookies"
	ServerKwargBillTo  = "bill_to"
	ServerKwargBaseURL = "base_url"
)

// Config describes the remote endpoint and the generation defaults.
//
// Exactly one of Model, EndpointURL and RepoID identifies the target.
// When all three are empty, HF_INFERENCE_ENDPOINT is used.
type Config struct {
	// Model is an endpoint URL or a Hub repository id.
	Model string
	// EndpointURL is the URL of a deployed inference endpoint.
	EndpointURL string
	// RepoID is a Hub repository id served by Provider.
	RepoID string
	// Provider names the inference provider for RepoID, e.g. "novita".
	// Empty means the default provider.
	Provider string
	// Task is the task to call the model with. Optional.
	Task string
	// APIToken is the bearer token. If empty,
	// HUGGINGFACEHUB_API_TOKEN and then HF_TOKEN are consulted.
	APIToken string
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// Streaming makes Complete and CompleteAsync use the streaming
	// decoders internally.
	Streaming bool
	// ServerKwargs holds transport options: "headers" and "cookies"
	// (map[string]string), "bill_to" and "base_url" (string). Other
	// keys are ignored with a warning.
	ServerKwargs map[string]any
	// Generation holds the generation defaults.
	Generation GenerationConfig
}

// DefaultConfig returns a Config carrying DefaultGenerationConfig.
func DefaultConfig() Config {
	return Config{
		Timeout:    DefaultTimeout,
		Generation: DefaultGenerationConfig(),
	}
}

// Endpoint is a completion model backed by a remote text-generation
// endpoint. It implements provider.CompletionModel. An Endpoint holds no
// per-call state and is safe for concurrent use.
type Endpoint struct {
	model       string
	endpointURL string
	task        string
	provider    string
	streaming   bool
	generation  GenerationConfig

	client      provider.TextGenerationClient
	asyncClient provider.AsyncTextGenerationClient
	logger      *zap.Logger
}

var _ provider.CompletionModel = (*Endpoint)(nil)

// Option customizes NewEndpoint.
type Option func(*endpointOptions)

type endpointOptions struct {
	logger      *zap.Logger
	httpClient  provider.HTTPClient
	client      provider.TextGenerationClient
	asyncClient provider.AsyncTextGenerationClient
	wrap        func(provider.TextGenerationClient) provider.TextGenerationClient
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *endpointOptions) { o.logger = logger }
}

// WithHTTPClient sets the HTTP client used by the default transport.
func WithHTTPClient(hc provider.HTTPClient) Option {
	return func(o *endpointOptions) { o.httpClient = hc }
}

// WithTransport replaces the default transport. A nil async client is
// derived from client.
func WithTransport(client provider.TextGenerationClient, async provider.AsyncTextGenerationClient) Option {
	return func(o *endpointOptions) {
		o.client = client
		o.asyncClient = async
	}
}

// WrapTransport decorates the blocking transport, for example with
// retries or logging. The async transport is derived from the wrapped
// client unless WithTransport supplies one.
func WrapTransport(wrap func(provider.TextGenerationClient) provider.TextGenerationClient) Option {
	return func(o *endpointOptions) { o.wrap = wrap }
}

// NewEndpoint validates cfg and builds the blocking and non-blocking
// transports once. Configuration errors are returned before any request
// is made.
//
// Errors:
//   - ErrConflictingModel if more than one target identifier is set.
//   - ErrMissingModel if no target can be resolved.
//   - *InvalidArgumentError for an unknown Task or out-of-range
//     generation values.
func NewEndpoint(cfg Config, opts ...Option) (*Endpoint, error) {
	o := endpointOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	model, err := resolveModel(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Task != "" && !slices.Contains(ValidTasks, cfg.Task) {
		return nil, &InvalidArgumentError{Parameter: "task", Value: cfg.Task, Message: fmt.Sprintf("must be one of %v", ValidTasks)}
	}

	gen := cfg.Generation.clone()
	if gen.MaxNewTokens == 0 {
		gen.MaxNewTokens = DefaultMaxNewTokens
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}

	e := &Endpoint{
		model:       model,
		endpointURL: cfg.EndpointURL,
		task:        cfg.Task,
		provider:    cfg.Provider,
		streaming:   cfg.Streaming,
		generation:  gen,
		client:      o.client,
		asyncClient: o.asyncClient,
		logger:      o.logger,
	}

	if e.client == nil {
		hfOpts, err := transportOptions(cfg, model, o.logger)
		if err != nil {
			return nil, err
		}
		hfOpts.HTTPClient = o.httpClient
		client, err := huggingface.NewClient(hfOpts)
		if err != nil {
			return nil, err
		}
		e.client = client
	}
	if o.wrap != nil {
		e.client = o.wrap(e.client)
	}
	if e.asyncClient == nil {
		e.asyncClient = huggingface.NewAsyncClient(e.client)
	}

	return e, nil
}

func resolveModel(cfg Config) (string, error) {
	set := 0
	for _, v := range []string{cfg.Model, cfg.EndpointURL, cfg.RepoID} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return "", ErrConflictingModel
	}

	switch {
	case cfg.Model != "":
		return cfg.Model, nil
	case cfg.EndpointURL != "":
		return cfg.EndpointURL, nil
	case cfg.RepoID != "":
		return cfg.RepoID, nil
	}
	if env := os.Getenv("HF_INFERENCE_ENDPOINT"); env != "" {
		return env, nil
	}
	return "", ErrMissingModel
}

func transportOptions(cfg Config, model string, logger *zap.Logger) (huggingface.Options, error) {
	token := cfg.APIToken
	if token == "" {
		token = os.Getenv("HUGGINGFACEHUB_API_TOKEN")
	}
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := huggingface.Options{
		Model:    model,
		Provider: cfg.Provider,
		APIKey:   token,
		Timeout:  timeout,
	}

	var ignored []string
	for _, k := range sortedKeys(cfg.ServerKwargs) {
		v := cfg.ServerKwargs[k]
		switch k {
		case ServerKwargHeaders:
			h, err := stringMap(k, v)
			if err != nil {
				return opts, err
			}
			opts.Headers = make(http.Header, len(h))
			for name, value := range h {
				opts.Headers.Set(name, value)
			}
		case ServerKwargCookies:
			c, err := stringMap(k, v)
			if err != nil {
				return opts, err
			}
			opts.Cookies = c
		case ServerKwargBillTo:
			s, ok := v.(string)
			if !ok {
				return opts, &InvalidArgumentError{Parameter: k, Value: v, Message: "must be a string"}
			}
			opts.BillTo = s
		case ServerKwargBaseURL:
			s, ok := v.(string)
			if !ok {
				return opts, &InvalidArgumentError{Parameter: k, Value: v, Message: "must be a string"}
			}
			opts.BaseURL = s
		default:
			ignored = append(ignored, k)
		}
	}
	if len(ignored) > 0 {
		logger.Warn("ignoring server kwargs not supported by the inference client",
			zap.Strings("keys", ignored),
		)
	}
	return opts, nil
}

func stringMap(name string, v any) (map[string]string, error) {
	switch t := v.(type) {
	case map[string]string:
		return maps.Clone(t), nil
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, val := range t {
			s, ok := val.(string)
			if !ok {
				return nil, &InvalidArgumentError{Parameter: name, Value: v, Message: "values must be strings"}
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, &InvalidArgumentError{Parameter: name, Value: v, Message: "must be a map of strings"}
}

// Type returns EndpointType.
func (e *Endpoint) Type() string {
	return EndpointType
}

// Model returns the resolved model identifier.
func (e *Endpoint) Model() string {
	return e.model
}

// Streaming reports whether Complete uses the streaming decoders.
func (e *Endpoint) Streaming() bool {
	return e.streaming
}

// Generation returns a copy of the generation defaults.
func (e *Endpoint) Generation() GenerationConfig {
	return e.generation.clone()
}

// IdentifyingParams returns the values that identify this endpoint.
func (e *Endpoint) IdentifyingParams() map[string]any {
	kwargs := e.generation.ModelKwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return map[string]any{
		"endpoint_url": e.endpointURL,
		"task":         e.task,
		"provider":     e.provider,
		"model_kwargs": maps.Clone(kwargs),
	}
}
