// Package textgen turns a remote text-generation inference endpoint into
// a uniform completion interface with blocking and streaming delivery,
// each available in synchronous and asynchronous form.
//
// A typical call looks like:
//
//	ep, err := textgen.NewEndpoint(textgen.Config{
//	    EndpointURL: "http://localhost:8010/",
//	    Generation:  textgen.DefaultGenerationConfig(),
//	})
//	text, err := ep.Complete(ctx, &textgen.CompletionRequest{
//	    Prompt: "What is Deep Learning?",
//	    Stop:   []string{"\n\n"},
//	})
package textgen

import (
	"context"

	"github.com/ncecere/textgen-sdk/provider"
	"github.com/ncecere/textgen-sdk/registry"
)

// Aliases to provider-level types so callers can work through the
// textgen package while transports implement the shared interfaces.
type (
	// CompletionModel is a caller-facing completion interface.
	CompletionModel = provider.CompletionModel
	// CompletionRequest describes inputs for a single completion call.
	CompletionRequest = provider.CompletionRequest
	// CompletionResult is the outcome of an asynchronous completion.
	CompletionResult = provider.CompletionResult
	// OutputChunk is a piece of finalized, stop-trimmed text.
	OutputChunk = provider.OutputChunk
	// ChunkResult is one element of an asynchronous chunk stream.
	ChunkResult = provider.ChunkResult
	// ChunkStream is a blocking stream of output chunks.
	ChunkStream = provider.ChunkStream
	// AsyncChunkStream is a channel-based stream of output chunks.
	AsyncChunkStream = provider.AsyncChunkStream
	// Observer receives each emitted chunk while streaming.
	Observer = provider.Observer
	// ObserverFunc adapts a function to Observer.
	ObserverFunc = provider.ObserverFunc
)

// CompleteWithRegistry looks up the completion model by name in reg and
// calls its Complete method.
//
// Errors:
//   - InvalidArgumentError if reg is nil.
//   - Any error returned by reg.CompletionModel.
//   - Any error returned by the model.
func CompleteWithRegistry(ctx context.Context, reg registry.Registry, modelName string, req *CompletionRequest) (string, error) {
	model, err := lookup(reg, modelName)
	if err != nil {
		return "", err
	}
	return model.Complete(ctx, req)
}

// StreamWithRegistry looks up the completion model by name in reg and
// calls its Stream method.
//
// Errors:
//   - InvalidArgumentError if reg is nil.
//   - Any error returned by reg.CompletionModel.
//   - Any error returned by the model when establishing the stream.
func StreamWithRegistry(ctx context.Context, reg registry.Registry, modelName string, req *CompletionRequest) (ChunkStream, error) {
	model, err := lookup(reg, modelName)
	if err != nil {
		return nil, err
	}
	return model.Stream(ctx, req)
}

func lookup(reg registry.Registry, modelName string) (CompletionModel, error) {
	if reg == nil {
		return nil, &InvalidArgumentError{Parameter: "reg", Value: nil, Message: "registry must not be nil"}
	}
	model, err := reg.CompletionModel(modelName)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, ErrMissingCompletionModel
	}
	return model, nil
}
