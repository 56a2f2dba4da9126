package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// RawMessage is a telemetry payload consumed from a message broker, before
// validation.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string

	// Commit acknowledges the message. It may be nil.
	Commit func(ctx context.Context) error
}

// ErrEmptyPayload is returned for a message with no body.
var ErrEmptyPayload = errors.New("empty payload")

// DecodeParams decodes a flat JSON object of pushed fields. String, number and
// boolean values are kept in their pushed spelling; nested values are ignored.
func DecodeParams(body []byte) (map[string]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]string{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("parse json payload: %w", err)
	}
	params := make(map[string]string, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case string:
			params[k] = t
		case json.Number:
			params[k] = t.String()
		case bool:
			params[k] = strconv.FormatBool(t)
		}
	}
	return params, nil
}

// ParseRawMessage decodes the pushed fields carried by a broker message.
func ParseRawMessage(raw RawMessage) (map[string]string, error) {
	if len(bytes.TrimSpace(raw.Value)) == 0 {
		return nil, ErrEmptyPayload
	}
	return DecodeParams(raw.Value)
}
