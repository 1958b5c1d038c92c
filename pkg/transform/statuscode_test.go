package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusflow/statusflow/pkg/errors"
)

func TestStatusCount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "string status code",
			input: `{"response":"200"}`,
			want:  `{"status_code":"200","count":1}`,
		},
		{
			name:  "numeric status code coerced to string",
			input: `{"response":404}`,
			want:  `{"status_code":"404","count":1}`,
		},
		{
			name:  "float keeps its literal text",
			input: `{"response":404.5}`,
			want:  `{"status_code":"404.5","count":1}`,
		},
		{
			name:  "boolean coerced to string",
			input: `{"response":true}`,
			want:  `{"status_code":"true","count":1}`,
		},
		{
			name:  "extra fields are ignored",
			input: `{"request":"GET /","response":"503","agent":"curl"}`,
			want:  `{"status_code":"503","count":1}`,
		},
		{
			name:  "empty string value",
			input: `{"response":""}`,
			want:  `{"status_code":"","count":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := StatusCount([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestStatusCount_CountIsAlwaysOne(t *testing.T) {
	// Each input record yields exactly one output record with a count
	// of 1; no deduplication or aggregation takes place.
	for i := 0; i < 3; i++ {
		out, err := StatusCount([]byte(`{"response":"200"}`))
		require.NoError(t, err)
		assert.Equal(t, `{"status_code":"200","count":1}`, string(out))
	}
}

func TestStatusCount_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `<html>`},
		{name: "empty payload", input: ``},
		{name: "missing response field", input: `{"status":"200"}`},
		{name: "null response", input: `{"response":null}`},
		{name: "object response", input: `{"response":{"code":200}}`},
		{name: "array response", input: `{"response":[200]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := StatusCount([]byte(tt.input))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.IsType(err, errors.ErrorTypeData),
				"malformed records must surface as data errors, got %v", err)
		})
	}
}

func TestStatusCount_Deterministic(t *testing.T) {
	a, err := StatusCount([]byte(`{"response":"200"}`))
	require.NoError(t, err)
	b, err := StatusCount([]byte(`{"response":"200"}`))
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
}
