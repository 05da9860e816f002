// Package server exposes completion models over HTTP using Fiber.
//
// Routes:
//
//	POST /v1/complete  JSON {"model","prompt","stop","params"} -> {"model","text"}
//	POST /v1/stream    same body, answered as Server-Sent Events
//	GET  /v1/stream    ?prompt=...&stop=...&model=..., answered as Server-Sent Events
//	GET  /health       {"status":"ok","models":[...]}
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	textgen "github.com/ncecere/textgen-sdk"
	"github.com/ncecere/textgen-sdk/providerutil"
	"github.com/ncecere/textgen-sdk/registry"
)

// DefaultModelName is used when a request names no model.
const DefaultModelName = "default"

// DefaultRequestTimeout bounds a single completion or stream.
const DefaultRequestTimeout = 2 * time.Minute

// CompleteRequest is the JSON body accepted by the completion routes.
type CompleteRequest struct {
	Model  string         `json:"model"`
	Prompt string         `json:"prompt"`
	Stop   []string       `json:"stop"`
	Params map[string]any `json:"params"`
}

// CompleteResponse is returned by POST /v1/complete.
type CompleteResponse struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// Server serves the models held in a registry.
type Server struct {
	app          *fiber.App
	reg          registry.Registry
	defaultModel string
	timeout      time.Duration
	logger       *zap.Logger
}

// Option customizes New.
type Option func(*Server)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(name string) Option {
	return func(s *Server) { s.defaultModel = name }
}

// WithRequestTimeout bounds each completion or stream.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New builds a Server over reg. Models may be registered or replaced in
// reg at any time, including while requests are in flight.
func New(reg registry.Registry, opts ...Option) *Server {
	s := &Server{
		reg:          reg,
		defaultModel: DefaultModelName,
		timeout:      DefaultRequestTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())

	s.app.Get("/health", s.health)
	s.app.Post("/v1/complete", s.complete)
	s.app.Post("/v1/stream", s.streamBody)
	s.app.Get("/v1/stream", s.streamQuery)
	return s
}

// App returns the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetModel registers model under the default name, replacing any
// previous one. Requests already running keep the model they started
// with.
func (s *Server) SetModel(model textgen.CompletionModel) {
	s.reg.RegisterCompletionModel(s.defaultModel, model)
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"models": s.reg.Names(),
	})
}

func (s *Server) complete(c *fiber.Ctx) error {
	req, err := s.parseBody(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.timeout)
	defer cancel()

	text, err := textgen.CompleteWithRegistry(ctx, s.reg, req.Model, &textgen.CompletionRequest{
		Prompt: req.Prompt,
		Stop:   req.Stop,
		Params: req.Params,
	})
	if err != nil {
		return err
	}
	return c.JSON(CompleteResponse{Model: req.Model, Text: text})
}

func (s *Server) streamBody(c *fiber.Ctx) error {
	req, err := s.parseBody(c)
	if err != nil {
		return err
	}
	return s.stream(c, req)
}

func (s *Server) streamQuery(c *fiber.Ctx) error {
	req := CompleteRequest{
		Model:  c.Query("model", s.defaultModel),
		Prompt: c.Query("prompt"),
	}
	for _, v := range c.Context().QueryArgs().PeekMulti("stop") {
		req.Stop = append(req.Stop, string(v))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "prompt is required")
	}
	return s.stream(c, req)
}

func (s *Server) stream(c *fiber.Ctx, req CompleteRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

	stream, err := textgen.StreamWithRegistry(ctx, s.reg, req.Model, &textgen.CompletionRequest{
		Prompt: req.Prompt,
		Stop:   req.Stop,
		Params: req.Params,
	})
	if err != nil {
		cancel()
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	model := req.Model
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		s.writeStream(ctx, cancel, w, stream, model)
	})
	return nil
}

// writeStream copies stream to w as SSE events. A failed flush means the
// client has gone away: cancel is called so the upstream request stops
// instead of being drained.
func (s *Server) writeStream(ctx context.Context, cancel context.CancelFunc, w *bufio.Writer, stream textgen.ChunkStream, model string) {
	disconnected := false
	flush := func() {
		if err := w.Flush(); err != nil && !disconnected {
			disconnected = true
			s.logger.Debug("stream client disconnected", zap.String("model", model), zap.Error(err))
			cancel()
		}
	}

	err := textgen.WriteSSE(ctx, w, stream, flush)
	if err == nil || disconnected {
		return
	}
	s.logger.Warn("stream failed", zap.String("model", model), zap.Error(err))
	_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", strings.ReplaceAll(err.Error(), "\n", " "))
	_ = w.Flush()
}

func (s *Server) parseBody(c *fiber.Ctx) (CompleteRequest, error) {
	var req CompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return req, fiber.NewError(fiber.StatusBadRequest, "prompt is required")
	}
	if req.Model == "" {
		req.Model = s.defaultModel
	}
	return req, nil
}

// handleError maps errors to status codes and a JSON body.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	var noModel *registry.NoSuchModelError
	var invalid *textgen.InvalidArgumentError
	var httpErr *providerutil.HTTPError
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
	case errors.As(err, &noModel):
		code = fiber.StatusNotFound
	case errors.As(err, &invalid):
		code = fiber.StatusBadRequest
	case errors.As(err, &httpErr):
		code = fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		code = fiber.StatusGatewayTimeout
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
