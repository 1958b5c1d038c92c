package kinesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusflow/statusflow/pkg/config"
	"github.com/statusflow/statusflow/pkg/errors"
)

func TestNewSourceConfig_Defaults(t *testing.T) {
	params := config.NewParams(nil)

	cfg, err := NewSourceConfig(params)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "source", cfg.Stream)
	assert.Equal(t, ModePolling, cfg.Mode)
	assert.Empty(t, cfg.EFOConsumerName)
}

func TestNewSourceConfig_Explicit(t *testing.T) {
	params := config.NewParams(map[string]string{
		"kinesis.region":        "us-east-1",
		"kinesis.source.stream": "clickstream",
		"kinesis.source.type":   "POLLING",
	})

	cfg, err := NewSourceConfig(params)
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "clickstream", cfg.Stream)
	assert.Equal(t, ModePolling, cfg.Mode)
}

func TestNewSourceConfig_EFOConsumerName(t *testing.T) {
	t.Run("defaults when unset", func(t *testing.T) {
		params := config.NewParams(map[string]string{
			"kinesis.source.type": "EFO",
		})

		cfg, err := NewSourceConfig(params)
		require.NoError(t, err)

		assert.Equal(t, ModeEFO, cfg.Mode)
		assert.Equal(t, "sample-efo-flink-consumer", cfg.EFOConsumerName)
	})

	t.Run("explicit name", func(t *testing.T) {
		params := config.NewParams(map[string]string{
			"kinesis.source.type":        "EFO",
			"kinesis.source.efoConsumer": "statusflow-prod",
		})

		cfg, err := NewSourceConfig(params)
		require.NoError(t, err)

		assert.Equal(t, "statusflow-prod", cfg.EFOConsumerName)
	})

	t.Run("never attached in polling mode", func(t *testing.T) {
		// Even when a consumer name is supplied, polling mode must not
		// carry one.
		params := config.NewParams(map[string]string{
			"kinesis.source.type":        "POLLING",
			"kinesis.source.efoConsumer": "statusflow-prod",
		})

		cfg, err := NewSourceConfig(params)
		require.NoError(t, err)

		assert.Empty(t, cfg.EFOConsumerName)
	})
}

func TestNewSourceConfig_InvalidMode(t *testing.T) {
	params := config.NewParams(map[string]string{
		"kinesis.source.type": "FANOUT",
	})

	_, err := NewSourceConfig(params)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "FANOUT")
}

func TestParseConsumerMode(t *testing.T) {
	tests := []struct {
		input   string
		want    ConsumerMode
		wantErr bool
	}{
		{input: "POLLING", want: ModePolling},
		{input: "EFO", want: ModeEFO},
		{input: "", wantErr: true},
		{input: "polling", wantErr: true}, // case sensitive
		{input: "ENHANCED", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseConsumerMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestNewKinesisSource_InvalidModeFailsFast(t *testing.T) {
	params := config.NewParams(map[string]string{
		"kinesis.source.type": "bogus",
	})

	_, err := NewKinesisSource(params)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
