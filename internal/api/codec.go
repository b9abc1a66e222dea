// Package api is the wire contract of the offpay.v1.OfflinePay gRPC
// service: request and response messages, the JSON codec they travel in,
// the service descriptor and a client stub.
//
// There is no .proto file. Messages are plain Go structs with json tags and
// travel as application/grpc+json. The codec registers itself under the
// "json" content subtype at init, the client stub sets that subtype on every
// call, and the server picks the codec from the request's content-type. Any
// gRPC client can call the service by sending the same subtype with JSON
// bodies. A call made with the default application/grpc (protobuf) codec
// fails because these structs are not proto.Message values.
package api

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of every offpay call
// (application/grpc+json).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
