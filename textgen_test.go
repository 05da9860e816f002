package textgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/textgen-sdk/registry"
)

func TestCompleteWithRegistry(t *testing.T) {
	reg := registry.NewInMemoryRegistry()
	reg.RegisterCompletionModel("tgi:local", newTestEndpoint(t, &fakeTransport{text: "from registry"}))

	text, err := CompleteWithRegistry(context.Background(), reg, "tgi:local", &CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from registry", text)

	_, err = CompleteWithRegistry(context.Background(), reg, "missing", &CompletionRequest{})
	var noModel *registry.NoSuchModelError
	assert.ErrorAs(t, err, &noModel)

	_, err = CompleteWithRegistry(context.Background(), nil, "tgi:local", &CompletionRequest{})
	var invalid *InvalidArgumentError
	assert.ErrorAs(t, err, &invalid)
}

func TestStreamWithRegistry(t *testing.T) {
	reg := registry.NewInMemoryRegistry()
	reg.RegisterCompletionModel("tgi:local", newTestEndpoint(t, &fakeTransport{fragments: []string{"a", "b"}}))

	stream, err := StreamWithRegistry(context.Background(), reg, "tgi:local", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, collect(t, stream))
}
