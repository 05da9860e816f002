package servecmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ncecere/textgen-sdk/cmd/textgen/endpointflags"
	"github.com/ncecere/textgen-sdk/config"
	"github.com/ncecere/textgen-sdk/registry"
	"github.com/ncecere/textgen-sdk/server"
)

const serveLongDesc string = `Serve completions over HTTP.

Routes:
  POST /v1/complete   {"prompt": "...", "stop": [...], "params": {...}}
  POST /v1/stream     same body, answered as Server-Sent Events
  GET  /v1/stream     ?prompt=...&stop=..., answered as Server-Sent Events
  GET  /health

When a config file is given it is watched; edits rebuild the endpoint
without dropping requests in flight.

Examples:
  textgen serve --endpoint-url http://localhost:8010/ --addr :8080
  textgen serve -c textgen.yaml`

const serveShortDesc string = "Serve completions over HTTP"

const shutdownTimeout = 10 * time.Second

type serveCommander struct {
	flags *endpointflags.Options
	addr  string
}

func NewServeCmd(flags *endpointflags.Options) *cobra.Command {
	cmder := &serveCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.addr, "addr", "", "Listen address (default from config, :8080)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, file, err := c.flags.Load(config.WithWatch())
	if err != nil {
		return err
	}
	log := endpointflags.Logger(file)
	defer func() { _ = log.Sync() }()

	ep, err := endpointflags.BuildEndpoint(file, c.flags.Retries, log)
	if err != nil {
		return fmt.Errorf("could not create endpoint: %w", err)
	}

	srv := server.New(registry.NewInMemoryRegistry(), server.WithLogger(log))
	srv.SetModel(ep)

	cfg.OnChange(func(_, updated config.File) {
		updated = c.flags.Apply(updated)
		next, err := endpointflags.BuildEndpoint(updated, c.flags.Retries, log)
		if err != nil {
			log.Error("config reload rejected", zap.Error(err))
			return
		}
		srv.SetModel(next)
		log.Info("endpoint reloaded", zap.String("model", next.Model()))
	})

	addr := c.addr
	if addr == "" {
		addr = file.Server.Addr
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
