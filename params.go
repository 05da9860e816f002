package textgen

import (
	"maps"
	"slices"

	"github.com/ncecere/textgen-sdk/provider"
)

// MergeParams builds the invocation parameters for one call.
//
// Precedence, lowest first: the explicit GenerationConfig fields, then
// cfg.ModelKwargs, then overrides. Keys keep the position where they
// first appear; keys new to a layer are appended in sorted order. The
// "stop" entry is always cfg.StopSequences followed by runtimeStop,
// duplicates kept.
//
// MergeParams does not validate override values; the transport does.
func MergeParams(cfg GenerationConfig, runtimeStop []string, overrides map[string]any) provider.Params {
	var b provider.ParamsBuilder

	b.Set(ParamMaxNewTokens, cfg.MaxNewTokens)
	b.Set(ParamTopK, cfg.TopK)
	b.Set(ParamTopP, cfg.TopP)
	b.Set(ParamTypicalP, cfg.TypicalP)
	b.Set(ParamTemperature, cfg.Temperature)
	b.Set(ParamRepetitionPenalty, cfg.RepetitionPenalty)
	b.Set(ParamReturnFullText, cfg.ReturnFullText)
	b.Set(ParamTruncate, cfg.Truncate)
	b.Set(ParamStop, nil)
	b.Set(ParamSeed, cfg.Seed)
	b.Set(ParamDoSample, cfg.DoSample)
	b.Set(ParamWatermark, cfg.Watermark)

	for _, k := range sortedKeys(cfg.ModelKwargs) {
		b.Set(k, cfg.ModelKwargs[k])
	}
	for _, k := range sortedKeys(overrides) {
		b.Set(k, overrides[k])
	}

	stop := make([]string, 0, len(cfg.StopSequences)+len(runtimeStop))
	stop = append(stop, cfg.StopSequences...)
	stop = append(stop, runtimeStop...)
	b.Set(ParamStop, stop)

	return b.Build()
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
