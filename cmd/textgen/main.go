package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	rootcmder "github.com/ncecere/textgen-sdk/cmd/textgen/root"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootcmder.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
