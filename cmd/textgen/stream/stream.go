package streamcmder

import (
	"bufio"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	textgen "github.com/ncecere/textgen-sdk"
	completecmder "github.com/ncecere/textgen-sdk/cmd/textgen/complete"
	"github.com/ncecere/textgen-sdk/cmd/textgen/endpointflags"
)

const streamLongDesc string = `Stream a completion to stdout as it is generated.

Output stops at the first fragment containing a stop sequence; the text
before the sequence is still printed.

Examples:
  textgen stream --endpoint-url http://localhost:8010/ "Write a haiku about Go"
  textgen stream --repo-id mistralai/Mistral-Nemo-Base-2407 --stop "<|end|>" --async "Hello"`

const streamShortDesc string = "Stream a completion"

type streamCommander struct {
	flags  *endpointflags.Options
	stop   []string
	params []string
	async  bool
}

func NewStreamCmd(flags *endpointflags.Options) *cobra.Command {
	cmder := &streamCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "stream [prompt]",
		Short: streamShortDesc,
		Long:  streamLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := completecmder.ReadPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cmd, prompt)
		},
	}

	cmd.Flags().StringArrayVar(&cmder.stop, "stop", nil, "Stop sequence (repeatable)")
	cmd.Flags().StringArrayVar(&cmder.params, "param", nil, "Extra generation parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&cmder.async, "async", false, "Use the non-blocking streaming API")

	return cmd
}

func (c *streamCommander) run(ctx context.Context, cmd *cobra.Command, prompt string) error {
	params, err := endpointflags.ParseParams(c.params)
	if err != nil {
		return err
	}

	_, file, err := c.flags.Load()
	if err != nil {
		return err
	}
	log := endpointflags.Logger(file)
	defer func() { _ = log.Sync() }()

	ep, err := endpointflags.BuildEndpoint(file, c.flags.Retries, log)
	if err != nil {
		return fmt.Errorf("could not create endpoint: %w", err)
	}

	req := &textgen.CompletionRequest{
		Prompt: prompt,
		Stop:   completecmder.UnescapeAll(c.stop),
		Params: params,
	}

	w := bufio.NewWriter(cmd.OutOrStdout())
	defer w.Flush()

	write := func(text string) {
		fmt.Fprint(w, text)
		w.Flush()
	}

	if c.async {
		stream := ep.StreamAsync(ctx, req)
		defer stream.Close()
		for res := range stream.Chunks() {
			if res.Err != nil {
				return fmt.Errorf("stream failed: %w", res.Err)
			}
			write(res.Chunk.Text)
		}
	} else {
		stream, err := ep.Stream(ctx, req)
		if err != nil {
			return fmt.Errorf("stream failed: %w", err)
		}
		for chunk, err := range textgen.Chunks(ctx, stream) {
			if err != nil {
				return fmt.Errorf("stream failed: %w", err)
			}
			write(chunk.Text)
		}
	}

	fmt.Fprintln(w)
	return nil
}
