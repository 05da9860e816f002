// Package endpointflags holds the flags shared by every textgen command
// and turns them, together with the config file, into an endpoint.
package endpointflags

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	textgen "github.com/ncecere/textgen-sdk"
	"github.com/ncecere/textgen-sdk/config"
	"github.com/ncecere/textgen-sdk/logger"
	"github.com/ncecere/textgen-sdk/middleware"
	"github.com/ncecere/textgen-sdk/provider"
)

// Options are the persistent flags of the root command.
type Options struct {
	ConfigPath  string
	Model       string
	EndpointURL string
	RepoID      string
	Provider    string
	Token       string
	Timeout     time.Duration
	Streaming   bool
	Debug       bool
	Retries     int

	cmd *cobra.Command
}

// AddFlags registers the options as persistent flags on cmd.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.cmd = cmd
	f := cmd.PersistentFlags()
	f.StringVarP(&o.ConfigPath, "config", "c", "", "Path to a YAML, TOML or JSON config file")
	f.StringVarP(&o.Model, "model", "m", "", "Endpoint URL or Hub repository id")
	f.StringVar(&o.EndpointURL, "endpoint-url", "", "URL of a deployed inference endpoint")
	f.StringVar(&o.RepoID, "repo-id", "", "Hub repository id")
	f.StringVar(&o.Provider, "provider", "", "Inference provider for --repo-id")
	f.StringVar(&o.Token, "token", "", "API token (default $HUGGINGFACEHUB_API_TOKEN or $HF_TOKEN)")
	f.DurationVar(&o.Timeout, "timeout", 0, "Request timeout (default from config, 120s)")
	f.BoolVar(&o.Streaming, "streaming", false, "Use streaming requests for complete")
	f.BoolVar(&o.Debug, "debug", false, "Enable debug logging")
	f.IntVar(&o.Retries, "retries", 3, "Attempts per upstream request, including the first")
}

// Load reads the config file and applies flags set on the command line.
func (o *Options) Load(opts ...config.Option) (*config.Config, config.File, error) {
	cfg, err := config.Load(o.ConfigPath, opts...)
	if err != nil {
		return nil, config.File{}, fmt.Errorf("could not load config: %w", err)
	}
	return cfg, o.Apply(cfg.Get()), nil
}

// Apply overlays the flags that were set explicitly onto f.
func (o *Options) Apply(f config.File) config.File {
	changed := func(name string) bool {
		return o.cmd != nil && o.cmd.PersistentFlags().Changed(name)
	}

	// A target given on the command line replaces the one in the file.
	if changed("model") || changed("endpoint-url") || changed("repo-id") {
		f.Endpoint.Model = o.Model
		f.Endpoint.EndpointURL = o.EndpointURL
		f.Endpoint.RepoID = o.RepoID
	}
	if changed("provider") {
		f.Endpoint.Provider = o.Provider
	}
	if changed("token") {
		f.Endpoint.APIToken = o.Token
	}
	if changed("timeout") {
		f.Endpoint.Timeout = o.Timeout
	}
	if changed("streaming") {
		f.Endpoint.Streaming = o.Streaming
	}
	if changed("debug") {
		f.Log.Debug = o.Debug
	}
	return f
}

// Logger builds the logger for f.
func Logger(f config.File) *zap.Logger {
	return logger.New(f.Log.Debug)
}

// BuildEndpoint creates an endpoint for f with logging, retries and,
// when configured, rate limiting around the transport.
func BuildEndpoint(f config.File, retries int, log *zap.Logger, opts ...textgen.Option) (*textgen.Endpoint, error) {
	mws := []middleware.ClientMiddleware{
		middleware.LoggingClient(middleware.LoggingOptions{
			Logger: log,
			Model:  firstNonEmpty(f.Endpoint.Model, f.Endpoint.EndpointURL, f.Endpoint.RepoID),
		}),
		middleware.RetryClient(middleware.RetryOptions{MaxAttempts: retries}),
	}
	if f.Server.RateLimit > 0 {
		burst := max(f.Server.Burst, 1)
		mws = append(mws, middleware.RateLimitClient(rate.NewLimiter(rate.Limit(f.Server.RateLimit), burst)))
	}

	opts = append([]textgen.Option{
		textgen.WithLogger(log),
		textgen.WrapTransport(func(c provider.TextGenerationClient) provider.TextGenerationClient {
			return middleware.WrapClient(c, mws...)
		}),
	}, opts...)
	return textgen.NewEndpoint(f.EndpointConfig(), opts...)
}

// ParseParams parses key=value pairs. Values that are valid JSON are
// decoded, so "seed=7" yields a number and "details=true" a bool;
// anything else is kept as a string.
func ParseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
