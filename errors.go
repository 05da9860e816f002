package textgen

import "errors"

// Package-level error values and types returned by the textgen package.
var (
	// ErrMissingModel is returned when none of Config.Model,
	// Config.EndpointURL, Config.RepoID or HF_INFERENCE_ENDPOINT names
	// the model to call.
	ErrMissingModel = errors.New("textgen: specify a Model, EndpointURL or RepoID")

	// ErrConflictingModel is returned when more than one of
	// Config.Model, Config.EndpointURL and Config.RepoID is set.
	ErrConflictingModel = errors.New("textgen: specify either a Model, an EndpointURL or a RepoID, not more than one")

	// ErrMissingCompletionModel is returned by the registry helpers when
	// a nil model is supplied.
	ErrMissingCompletionModel = errors.New("textgen: missing CompletionModel")
)

// InvalidArgumentError indicates that a configuration value is invalid.
type InvalidArgumentError struct {
	// Parameter is the name of the invalid parameter.
	Parameter string
	// Value is the offending value.
	Value any
	// Message describes why the value is considered invalid.
	Message string
}

func (e *InvalidArgumentError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "textgen: invalid argument for parameter " + e.Parameter + ": " + e.Message
}
