// Package config loads endpoint, generation and server settings from a
// file and the environment, and optionally reloads them when the file
// changes.
package config

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	textgen "github.com/ncecere/textgen-sdk"
)

// EnvPrefix prefixes every environment override, e.g.
// TEXTGEN_ENDPOINT_MODEL or TEXTGEN_GENERATION_TEMPERATURE.
const EnvPrefix = "TEXTGEN"

// File is the on-disk configuration layout.
//
// Keys are case-insensitive, so model_kwargs and server_kwargs keys are
// read in lower case.
type File struct {
	Endpoint   Endpoint   `mapstructure:"endpoint"`
	Generation Generation `mapstructure:"generation"`
	Server     Server     `mapstructure:"server"`
	Log        Log        `mapstructure:"log"`
}

// Endpoint selects the remote model and transport settings.
type Endpoint struct {
	Model        string         `mapstructure:"model"`
	EndpointURL  string         `mapstructure:"endpoint_url"`
	RepoID       string         `mapstructure:"repo_id"`
	Provider     string         `mapstructure:"provider"`
	Task         string         `mapstructure:"task"`
	APIToken     string         `mapstructure:"api_token"`
	Timeout      time.Duration  `mapstructure:"timeout"`
	Streaming    bool           `mapstructure:"streaming"`
	ServerKwargs map[string]any `mapstructure:"server_kwargs"`
}

// Generation holds the generation defaults.
type Generation struct {
	MaxNewTokens      int            `mapstructure:"max_new_tokens"`
	TopK              *int           `mapstructure:"top_k"`
	TopP              *float64       `mapstructure:"top_p"`
	TypicalP          *float64       `mapstructure:"typical_p"`
	Temperature       *float64       `mapstructure:"temperature"`
	RepetitionPenalty *float64       `mapstructure:"repetition_penalty"`
	ReturnFullText    bool           `mapstructure:"return_full_text"`
	Truncate          *int           `mapstructure:"truncate"`
	StopSequences     []string       `mapstructure:"stop_sequences"`
	Seed              *int           `mapstructure:"seed"`
	DoSample          bool           `mapstructure:"do_sample"`
	Watermark         bool           `mapstructure:"watermark"`
	ModelKwargs       map[string]any `mapstructure:"model_kwargs"`
}

// Server configures the HTTP server started by "textgen serve".
type Server struct {
	Addr string `mapstructure:"addr"`
	// RateLimit is the upstream request rate per second. Zero disables
	// limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// Log configures the logger.
type Log struct {
	Debug bool `mapstructure:"debug"`
}

// EndpointConfig converts the file into an endpoint configuration.
func (f File) EndpointConfig() textgen.Config {
	g := f.Generation
	return textgen.Config{
		Model:        f.Endpoint.Model,
		EndpointURL:  f.Endpoint.EndpointURL,
		RepoID:       f.Endpoint.RepoID,
		Provider:     f.Endpoint.Provider,
		Task:         f.Endpoint.Task,
		APIToken:     f.Endpoint.APIToken,
		Timeout:      f.Endpoint.Timeout,
		Streaming:    f.Endpoint.Streaming,
		ServerKwargs: maps.Clone(f.Endpoint.ServerKwargs),
		Generation: textgen.GenerationConfig{
			MaxNewTokens:      g.MaxNewTokens,
			TopK:              g.TopK,
			TopP:              g.TopP,
			TypicalP:          g.TypicalP,
			Temperature:       g.Temperature,
			RepetitionPenalty: g.RepetitionPenalty,
			ReturnFullText:    g.ReturnFullText,
			Truncate:          g.Truncate,
			StopSequences:     slices.Clone(g.StopSequences),
			Seed:              g.Seed,
			DoSample:          g.DoSample,
			Watermark:         g.Watermark,
			ModelKwargs:       maps.Clone(g.ModelKwargs),
		},
	}
}

// Defaults returns the default values keyed by their dotted viper keys.
func Defaults() map[string]any {
	gen := textgen.DefaultGenerationConfig()
	return map[string]any{
		"endpoint.model":        "",
		"endpoint.endpoint_url": "",
		"endpoint.repo_id":      "",
		"endpoint.provider":     "",
		"endpoint.task":         "",
		"endpoint.api_token":    "",
		"endpoint.timeout":      textgen.DefaultTimeout,
		"endpoint.streaming":    false,

		"generation.max_new_tokens":   gen.MaxNewTokens,
		"generation.top_p":            *gen.TopP,
		"generation.typical_p":        *gen.TypicalP,
		"generation.temperature":      *gen.Temperature,
		"generation.return_full_text": false,
		"generation.do_sample":        false,
		"generation.watermark":        false,

		"server.addr":       ":8080",
		"server.rate_limit": 0.0,
		"server.burst":      1,

		"log.debug": false,
	}
}

// optionalKeys have no default but may still come from the environment.
var optionalKeys = []string{
	"generation.top_k",
	"generation.repetition_penalty",
	"generation.truncate",
	"generation.seed",
}

// Config holds the current File and notifies watchers when it changes.
type Config struct {
	v        *viper.Viper
	value    File
	mu       sync.RWMutex
	watchers []func(old, new File)
	watching bool
}

// Option configures Load.
type Option func(*Config)

// WithDefaults overrides individual defaults.
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) {
		for k, v := range defaults {
			c.v.SetDefault(k, v)
		}
	}
}

// WithEnv binds environment variables under prefix.
func WithEnv(prefix string) Option {
	return func(c *Config) {
		c.v.SetEnvPrefix(prefix)
		c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		c.v.AutomaticEnv()
		for _, k := range optionalKeys {
			_ = c.v.BindEnv(k)
		}
	}
}

// WithWatch reloads the file when it changes and calls the OnChange
// callbacks. It has no effect without a file.
func WithWatch() Option {
	return func(c *Config) {
		c.watching = true
	}
}

// Load reads path (YAML, TOML or JSON, chosen by extension) over the
// defaults, with TEXTGEN_ environment overrides on top. An empty path
// reads the defaults and the environment only.
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.New()
	c := &Config{v: v}

	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	WithEnv(EnvPrefix)(c)
	for _, opt := range opts {
		opt(c)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(&c.value); err != nil {
		return nil, err
	}

	if path != "" && c.watching {
		c.watch()
	}
	return c, nil
}

// Get returns a copy of the current configuration.
func (c *Config) Get() File {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value.clone()
}

// OnChange registers a callback invoked after a reload that changed the
// configuration. A panicking callback does not affect the others.
func (c *Config) OnChange(callback func(old, new File)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, callback)
}

func (c *Config) watch() {
	var (
		debounceTimer *time.Timer
		debounceMu    sync.Mutex
	)

	c.v.OnConfigChange(func(_ fsnotify.Event) {
		debounceMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(100*time.Millisecond, c.reload)
		debounceMu.Unlock()
	})

	c.v.WatchConfig()
}

func (c *Config) reload() {
	old := c.Get()

	updated, watchers, ok := c.readFile()
	if !ok || reflect.DeepEqual(old, updated) {
		return
	}

	for _, cb := range watchers {
		func() {
			defer func() { _ = recover() }()
			cb(old, updated)
		}()
	}
}

// readFile re-reads the file. A file that fails to parse keeps the
// previous configuration.
func (c *Config) readFile() (File, []func(old, new File), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.v.ReadInConfig(); err != nil {
		return File{}, nil, false
	}
	var val File
	if err := c.v.Unmarshal(&val); err != nil {
		return File{}, nil, false
	}
	c.value = val

	return val.clone(), slices.Clone(c.watchers), true
}

func (f File) clone() File {
	f.Endpoint.ServerKwargs = maps.Clone(f.Endpoint.ServerKwargs)
	g := &f.Generation
	g.TopK = clonePtr(g.TopK)
	g.TopP = clonePtr(g.TopP)
	g.TypicalP = clonePtr(g.TypicalP)
	g.Temperature = clonePtr(g.Temperature)
	g.RepetitionPenalty = clonePtr(g.RepetitionPenalty)
	g.Truncate = clonePtr(g.Truncate)
	g.Seed = clonePtr(g.Seed)
	g.StopSequences = slices.Clone(g.StopSequences)
	g.ModelKwargs = maps.Clone(g.ModelKwargs)
	return f
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
