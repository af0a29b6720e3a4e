package rpc

import (
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of every dispatcher message.
const CodecName = "msgpack"

// Codec encodes gRPC messages as MessagePack.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (Codec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (Codec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
