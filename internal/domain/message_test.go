package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParams(t *testing.T) {
	params, err := DecodeParams([]byte(`{"T": 21.50, "SW": "roof", "raining": true, "nested": {"a": 1}, "none": null}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"T":       "21.50",
		"SW":      "roof",
		"raining": "true",
	}, params)
}

func TestDecodeParams_Empty(t *testing.T) {
	params, err := DecodeParams([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestDecodeParams_Invalid(t *testing.T) {
	_, err := DecodeParams([]byte("not-json{{{"))
	require.Error(t, err)

	_, err = DecodeParams([]byte(`["T", 1]`))
	require.Error(t, err)
}

func TestParseRawMessage(t *testing.T) {
	params, err := ParseRawMessage(RawMessage{Value: []byte(`{"T":"21,5","PASS":"abc"}`)})
	require.NoError(t, err)
	assert.Equal(t, "21,5", params["T"])
	assert.Equal(t, "abc", params["PASS"])

	_, err = ParseRawMessage(RawMessage{})
	require.ErrorIs(t, err, ErrEmptyPayload)
}
