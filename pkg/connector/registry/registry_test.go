package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusflow/statusflow/pkg/config"
	"github.com/statusflow/statusflow/pkg/connector/core"
	"github.com/statusflow/statusflow/pkg/errors"
	"github.com/statusflow/statusflow/pkg/models"
)

type stubSource struct{}

func (s *stubSource) Initialize(ctx context.Context) error { return nil }
func (s *stubSource) Read(ctx context.Context) (*core.RecordStream, error) {
	records := make(chan *models.Record)
	close(records)
	return &core.RecordStream{Records: records, Errors: make(chan error)}, nil
}
func (s *stubSource) Close(ctx context.Context) error  { return nil }
func (s *stubSource) Health(ctx context.Context) error { return nil }
func (s *stubSource) Metrics() map[string]interface{}  { return nil }

type stubSink struct{}

func (s *stubSink) Initialize(ctx context.Context) error { return nil }
func (s *stubSink) Write(ctx context.Context, stream *core.RecordStream) error {
	return nil
}
func (s *stubSink) Close(ctx context.Context) error  { return nil }
func (s *stubSink) Health(ctx context.Context) error { return nil }
func (s *stubSink) Metrics() map[string]interface{}  { return nil }

func sourceFactory(params *config.Params) (core.Source, error) { return &stubSource{}, nil }
func sinkFactory(params *config.Params) (core.Sink, error)     { return &stubSink{}, nil }

func TestRegisterAndCreate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterSource("stub", sourceFactory))
	require.NoError(t, r.RegisterSink("stub", sinkFactory))

	source, err := r.CreateSource("stub", config.NewParams(nil))
	require.NoError(t, err)
	assert.NotNil(t, source)

	sink, err := r.CreateSink("stub", config.NewParams(nil))
	require.NoError(t, err)
	assert.NotNil(t, sink)
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterSource("stub", sourceFactory))
	err := r.RegisterSource("stub", sourceFactory)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCreateUnknownConnector(t *testing.T) {
	r := NewRegistry()

	_, err := r.CreateSource("missing", config.NewParams(nil))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = r.CreateSink("missing", config.NewParams(nil))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestFactoryErrorIsWrapped(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterSource("failing", func(params *config.Params) (core.Source, error) {
		return nil, errors.New(errors.ErrorTypeConfig, "bad consumer mode")
	}))

	_, err := r.CreateSource("failing", config.NewParams(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create source connector failing")
}

func TestListAndHas(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterSource("a", sourceFactory))
	require.NoError(t, r.RegisterSource("b", sourceFactory))
	require.NoError(t, r.RegisterSink("c", sinkFactory))

	assert.ElementsMatch(t, []string{"a", "b"}, r.ListSources())
	assert.ElementsMatch(t, []string{"c"}, r.ListSinks())
	assert.True(t, r.HasSource("a"))
	assert.False(t, r.HasSource("c"))
	assert.True(t, r.HasSink("c"))
}

func TestClear(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterSource("stub", sourceFactory))
	r.Clear()
	assert.Empty(t, r.ListSources())
	assert.False(t, r.HasSource("stub"))
}
