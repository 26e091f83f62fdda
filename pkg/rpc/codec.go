// Package rpc holds the Connect codec used by every service. Request and response
// messages are plain Go structs encoded as JSON.
package rpc

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// CodecName is registered for the application/json and application/connect+json content types
const CodecName = "json"

// JSONCodec implements connect.Codec with encoding/json
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return CodecName }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	// An empty body is a request with every field at its zero value
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return nil
}

// WithJSON returns an option that makes a handler or client speak the JSON codec
func WithJSON() connect.Option {
	return connect.WithCodec(JSONCodec{})
}
