package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ncecere/textgen-sdk/provider"
	"github.com/ncecere/textgen-sdk/providerutil"
)

const (
	// DefaultRouterURL is the Hugging Face inference router.
	DefaultRouterURL = "https://router.huggingface.co"
	// DefaultProvider serves models hosted by Hugging Face itself.
	DefaultProvider = "hf-inference"
	// DefaultTimeout bounds a whole request, including streamed bodies.
	DefaultTimeout = 120 * time.Second
)

// Options configures a Client.
type Options struct {
	// Model is either a deployed endpoint URL or a Hub repository id.
	Model string
	// Provider selects the inference provider used for repository ids.
	// Empty or "auto" means DefaultProvider.
	Provider string
	// APIKey is the bearer token. If empty, HF_TOKEN is consulted.
	APIKey string
	// BaseURL overrides the router URL used for repository ids.
	BaseURL string
	// Timeout is applied to the default HTTP client. Zero means
	// DefaultTimeout.
	Timeout time.Duration
	// HTTPClient is the underlying HTTP client. If nil, one is built
	// with Timeout.
	HTTPClient provider.HTTPClient
	// Headers are attached to every outbound request.
	Headers http.Header
	// Cookies are attached to every outbound request.
	Cookies map[string]string
	// BillTo names the organization billed for the request.
	BillTo string
}

// Client talks to a text-generation-inference compatible endpoint. It
// implements provider.TextGenerationClient and is safe for concurrent
// use.
type Client struct {
	url        string
	apiKey     string
	httpClient provider.HTTPClient
	headers    http.Header
	cookies    map[string]string
	billTo     string
}

var _ provider.TextGenerationClient = (*Client)(nil)

// NewClient creates a new Client.
//
// Environment variables:
//   - HF_TOKEN (used if opts.APIKey is empty; optional for local servers)
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("huggingface: missing model; set Options.Model to an endpoint URL or repo id")
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("HF_TOKEN")
	}

	target, err := resolveURL(opts)
	if err != nil {
		return nil, err
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = providerutil.NewHTTPClient(timeout)
	}

	return &Client{
		url:        target,
		apiKey:     apiKey,
		httpClient: hc,
		headers:    opts.Headers,
		cookies:    opts.Cookies,
		billTo:     opts.BillTo,
	}, nil
}

// URL returns the resolved request URL.
func (c *Client) URL() string {
	return c.url
}

func resolveURL(opts Options) (string, error) {
	model := strings.TrimSpace(opts.Model)
	if strings.HasPrefix(model, "http://") || strings.HasPrefix(model, "https://") {
		if _, err := url.Parse(model); err != nil {
			return "", fmt.Errorf("huggingface: invalid endpoint URL %q: %w", model, err)
		}
		return strings.TrimRight(model, "/"), nil
	}

	base := opts.BaseURL
	if base == "" {
		base = DefaultRouterURL
	}
	base = strings.TrimRight(base, "/")

	prov := opts.Provider
	if prov == "" || prov == "auto" {
		prov = DefaultProvider
	}
	return base + "/" + url.PathEscape(prov) + "/models/" + model, nil
}

type generateRequest struct {
	Inputs     string          `json:"inputs"`
	Parameters provider.Params `json:"parameters"`
	Stream     bool            `json:"stream"`
}

type generateOutput struct {
	GeneratedText string `json:"generated_text"`
}

// GenerateText implements provider.TextGenerationClient.
func (c *Client) GenerateText(ctx context.Context, prompt string, params provider.Params) (string, error) {
	httpReq, err := c.newRequest(ctx, prompt, params, false)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}

	var raw json.RawMessage
	if err := providerutil.ReadJSON(resp, &raw); err != nil {
		return "", err
	}
	return decodeGeneratedText(raw)
}

// decodeGeneratedText accepts both the TGI object form and the
// Inference API list form.
func decodeGeneratedText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var outs []generateOutput
		if err := json.Unmarshal(trimmed, &outs); err != nil {
			return "", fmt.Errorf("huggingface: decoding generation list: %w", err)
		}
		if len(outs) == 0 {
			return "", nil
		}
		return outs[0].GeneratedText, nil
	}
	var out generateOutput
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return "", fmt.Errorf("huggingface: decoding generation: %w", err)
	}
	return out.GeneratedText, nil
}

// GenerateStream implements provider.TextGenerationClient.
func (c *Client) GenerateStream(ctx context.Context, prompt string, params provider.Params) (provider.FragmentStream, error) {
	httpReq, err := c.newRequest(ctx, prompt, params, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if err := providerutil.CheckStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return newTokenStream(resp.Body), nil
}

func (c *Client) newRequest(ctx context.Context, prompt string, params provider.Params, stream bool) (*http.Request, error) {
	buf, err := json.Marshal(generateRequest{
		Inputs:     prompt,
		Parameters: params,
		Stream:     stream,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	// Attach any custom headers first, then enforce required headers.
	for k, vs := range c.headers {
		for _, v := range vs {
			if v == "" {
				continue
			}
			httpReq.Header.Add(k, v)
		}
	}
	for name, value := range c.cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if c.billTo != "" {
		httpReq.Header.Set("X-HF-Bill-To", c.billTo)
	}
	if httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", uuid.NewString())
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}
