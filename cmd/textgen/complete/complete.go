package completecmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	textgen "github.com/ncecere/textgen-sdk"
	"github.com/ncecere/textgen-sdk/cmd/textgen/endpointflags"
)

const completeLongDesc string = `Generate a completion for a prompt and print it.

The prompt is taken from the argument, or from stdin when the argument
is "-" or missing. Stop sequences given with --stop are appended to the
configured ones; a trailing stop sequence is removed from the output.

Examples:
  textgen complete --endpoint-url http://localhost:8010/ "What is Deep Learning?"
  textgen complete --repo-id mistralai/Mistral-Nemo-Base-2407 --stop "\n\n" --param seed=7 "Once upon a time"
  echo "Summarize Go in one line:" | textgen complete -c textgen.yaml`

const completeShortDesc string = "Generate a completion"

type completeCommander struct {
	flags  *endpointflags.Options
	stop   []string
	params []string
	async  bool
}

func NewCompleteCmd(flags *endpointflags.Options) *cobra.Command {
	cmder := &completeCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: completeShortDesc,
		Long:  completeLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := ReadPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cmd, prompt)
		},
	}

	cmd.Flags().StringArrayVar(&cmder.stop, "stop", nil, "Stop sequence (repeatable)")
	cmd.Flags().StringArrayVar(&cmder.params, "param", nil, "Extra generation parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&cmder.async, "async", false, "Use the non-blocking completion API")

	return cmd
}

func (c *completeCommander) run(ctx context.Context, cmd *cobra.Command, prompt string) error {
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
		Stop:   UnescapeAll(c.stop),
		Params: params,
	}

	var text string
	if c.async {
		res := <-ep.CompleteAsync(ctx, req)
		text, err = res.Text, res.Err
	} else {
		text, err = ep.Complete(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// ReadPrompt returns args[0], or all of stdin when args is empty or
// args[0] is "-".
func ReadPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("could not read prompt from stdin: %w", err)
	}
	prompt := strings.TrimRight(string(b), "\n")
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`)

// UnescapeAll expands \n, \t, \r and \\ so that stop sequences such as
// "\n\n" can be typed on a shell.
func UnescapeAll(vs []string) []string {
	if len(vs) == 0 {
		return nil
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = escapes.Replace(v)
	}
	return out
}
