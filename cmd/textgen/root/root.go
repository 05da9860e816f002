package rootcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	completecmder "github.com/ncecere/textgen-sdk/cmd/textgen/complete"
	"github.com/ncecere/textgen-sdk/cmd/textgen/endpointflags"
	servecmder "github.com/ncecere/textgen-sdk/cmd/textgen/serve"
	streamcmder "github.com/ncecere/textgen-sdk/cmd/textgen/stream"
)

// Version is set at build time with -ldflags "-X ...rootcmder.Version=v1.2.3".
var Version = "dev"

const rootLongDesc string = `textgen sends completion requests to a text-generation inference
endpoint: a Text Generation Inference server, a dedicated Inference
Endpoint, or a Hub model served through an inference provider.

Settings come from the config file (--config), then TEXTGEN_* environment
variables, then flags.`

func NewRootCmd() *cobra.Command {
	flags := &endpointflags.Options{}

	cmd := &cobra.Command{
		Use:           "textgen",
		Short:         "Text generation endpoint client",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.AddFlags(cmd)

	cmd.AddCommand(completecmder.NewCompleteCmd(flags))
	cmd.AddCommand(streamcmder.NewStreamCmd(flags))
	cmd.AddCommand(servecmder.NewServeCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the textgen version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
