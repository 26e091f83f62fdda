package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanRequest struct {
	Candidates []string `json:"candidates,omitempty"`
	SampleSize int      `json:"sample_size"`
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec{}
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(&scanRequest{Candidates: []string{"financas"}, SampleSize: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"candidates":["financas"],"sample_size":5}`, string(data))

	var decoded scanRequest
	require.NoError(t, codec.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"financas"}, decoded.Candidates)
}

func TestJSONCodec_EmptyBody(t *testing.T) {
	var req scanRequest
	require.NoError(t, JSONCodec{}.Unmarshal(nil, &req))
	assert.Zero(t, req.SampleSize)
}

func TestJSONCodec_InvalidBody(t *testing.T) {
	var req scanRequest
	err := JSONCodec{}.Unmarshal([]byte(`{"sample_size":"five"}`), &req)
	assert.Error(t, err)
}
