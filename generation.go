package textgen

import (
	"fmt"
	"maps"
	"slices"
)

// GenerationConfig holds the generation defaults sent with every call.
// It is copied into the Endpoint at construction and never mutated
// afterwards. Nil pointer fields are left to the server default.
type GenerationConfig struct {
	// MaxNewTokens is the maximum number of generated tokens.
	MaxNewTokens int
	// TopK keeps only the k most probable tokens when sampling.
	TopK *int
	// TopP keeps the smallest token set whose probability mass reaches
	// TopP when below 1.
	TopP *float64
	// TypicalP is the typical decoding mass.
	TypicalP *float64
	// Temperature modulates the logits distribution.
	Temperature *float64
	// RepetitionPenalty penalizes repeated tokens; 1.0 means none.
	RepetitionPenalty *float64
	// ReturnFullText prepends the prompt to the generated text.
	ReturnFullText bool
	// Truncate truncates input tokens to the given size.
	Truncate *int
	// StopSequences end generation when produced.
	StopSequences []string
	// Seed is the random sampling seed.
	Seed *int
	// DoSample activates logits sampling.
	DoSample bool
	// Watermark enables generation watermarking.
	Watermark bool
	// ModelKwargs holds provider-specific parameters not listed above.
	ModelKwargs map[string]any
}

// Parameter names of the explicit GenerationConfig fields, in the order
// they are sent.
const (
	ParamMaxNewTokens      = "max_new_tokens"
	ParamTopK              = "top_k"
	ParamTopP              = "top_p"
	ParamTypicalP          = "typical_p"
	ParamTemperature       = "temperature"
	ParamRepetitionPenalty = "repetition_penalty"
	ParamReturnFullText    = "return_full_text"
	ParamTruncate          = "truncate"
	ParamStop              = "stop"
	ParamSeed              = "seed"
	ParamDoSample          = "do_sample"
	ParamWatermark         = "watermark"
)

var explicitParams = []string{
	ParamMaxNewTokens,
	ParamTopK,
	ParamTopP,
	ParamTypicalP,
	ParamTemperature,
	ParamRepetitionPenalty,
	ParamReturnFullText,
	ParamTruncate,
	ParamStop,
	ParamSeed,
	ParamDoSample,
	ParamWatermark,
}

// DefaultMaxNewTokens is used when GenerationConfig.MaxNewTokens is zero.
const DefaultMaxNewTokens = 512

// DefaultGenerationConfig returns the default generation settings.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxNewTokens: DefaultMaxNewTokens,
		TopP:         Float64(0.95),
		TypicalP:     Float64(0.95),
		Temperature:  Float64(0.8),
	}
}

// Validate reports the first clearly out-of-range value as an
// *InvalidArgumentError. Values inside ModelKwargs are not checked.
func (g GenerationConfig) Validate() error {
	if g.MaxNewTokens <= 0 {
		return &InvalidArgumentError{Parameter: ParamMaxNewTokens, Value: g.MaxNewTokens, Message: "must be greater than 0"}
	}
	if g.TopK != nil && *g.TopK <= 0 {
		return &InvalidArgumentError{Parameter: ParamTopK, Value: *g.TopK, Message: "must be greater than 0"}
	}
	if g.TopP != nil && (*g.TopP <= 0 || *g.TopP > 1) {
		return &InvalidArgumentError{Parameter: ParamTopP, Value: *g.TopP, Message: "must be in the range (0, 1]"}
	}
	if g.TypicalP != nil && (*g.TypicalP <= 0 || *g.TypicalP > 1) {
		return &InvalidArgumentError{Parameter: ParamTypicalP, Value: *g.TypicalP, Message: "must be in the range (0, 1]"}
	}
	if g.Temperature != nil && *g.Temperature < 0 {
		return &InvalidArgumentError{Parameter: ParamTemperature, Value: *g.Temperature, Message: "must not be negative"}
	}
	if g.RepetitionPenalty != nil && *g.RepetitionPenalty <= 0 {
		return &InvalidArgumentError{Parameter: ParamRepetitionPenalty, Value: *g.RepetitionPenalty, Message: "must be greater than 0"}
	}
	if g.Truncate != nil && *g.Truncate <= 0 {
		return &InvalidArgumentError{Parameter: ParamTruncate, Value: *g.Truncate, Message: "must be greater than 0"}
	}
	for i, s := range g.StopSequences {
		if s == "" {
			return &InvalidArgumentError{Parameter: ParamStop, Value: i, Message: fmt.Sprintf("stop sequence %d is empty", i)}
		}
	}
	for _, k := range explicitParams {
		if _, ok := g.ModelKwargs[k]; ok {
			return &InvalidArgumentError{
				Parameter: "model_kwargs",
				Value:     k,
				Message:   fmt.Sprintf("%s should be specified explicitly, not as part of model_kwargs", k),
			}
		}
	}
	return nil
}

// clone returns a deep copy of the slice and map fields so the Endpoint
// owns its configuration.
func (g GenerationConfig) clone() GenerationConfig {
	g.StopSequences = slices.Clone(g.StopSequences)
	if g.ModelKwargs != nil {
		g.ModelKwargs = maps.Clone(g.ModelKwargs)
	}
	return g
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
