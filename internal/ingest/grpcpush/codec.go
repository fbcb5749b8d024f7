package grpcpush

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets the bidirectional stream move wireMessage frames without a
// protoc-generated message type: grpc-go's codec is a pluggable interface,
// and registering one is the legitimate way to speak gRPC without compiled
// protobuf stubs.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
