// Package transform implements the record transform stage: a pure,
// stateless, record-at-a-time mapping from incoming JSON payloads to
// fixed-shape status-code records.
package transform

import (
	"bytes"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/statusflow/statusflow/pkg/errors"
)

// Field names of the input and output payloads.
const (
	// ResponseField is the input field carrying the status-code-like
	// value.
	ResponseField = "response"
)

// statusCount is the fixed output shape. Count is always the literal 1
// for every record; no aggregation across records takes place despite
// the field's name.
type statusCount struct {
	StatusCode string `json:"status_code"`
	Count      int    `json:"count"`
}

// StatusCount maps one input record to one output record: the payload
// is parsed as JSON, the response field is extracted as a string
// regardless of its original scalar type, and the result is serialized
// as {"status_code":"<value>","count":1}.
//
// A payload that fails to parse, lacks the response field, or carries a
// non-scalar response value yields a per-record data error and no
// output. Parsing holds no shared state, so concurrent invocations are
// safe.
func StatusCount(data []byte) ([]byte, error) {
	value, err := extractResponse(data)
	if err != nil {
		return nil, err
	}

	out, err := gojson.Marshal(statusCount{StatusCode: value, Count: 1})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to serialize output record")
	}
	return out, nil
}

// extractResponse parses the payload and coerces the response field to
// its string form. Numbers keep their literal JSON text ("404", not
// "404.000000"), booleans become "true"/"false".
func extractResponse(data []byte) (string, error) {
	var payload map[string]interface{}

	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to parse record payload")
	}

	raw, ok := payload[ResponseField]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeData, "record payload has no %s field", ResponseField)
	}

	switch v := raw.(type) {
	case string:
		return v, nil
	case gojson.Number:
		return v.String(), nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	default:
		return "", errors.Newf(errors.ErrorTypeData, "%s field is not a scalar value", ResponseField)
	}
}
