package wire

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// api is the sonic configuration compatible with encoding/json semantics
// (escaping, map key order, RawMessage handling).
var api = sonic.ConfigStd

var protoOut = protojson.MarshalOptions{UseProtoNames: true}
var protoIn = protojson.UnmarshalOptions{DiscardUnknown: true}

// Encode serializes v. Protobuf messages (for example structpb.Struct used for
// untyped payloads) go through protojson, everything else through sonic.
func Encode(v any) (json.RawMessage, error) {
	if m, ok := v.(proto.Message); ok {
		b, err := protoOut.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("wire: encode %T: %w", v, err)
		}
		return b, nil
	}
	b, err := api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %T: %w", v, err)
	}
	return b, nil
}

// Decode parses data into v, which must be a pointer or a protobuf message.
// Empty data and JSON null leave v untouched.
func Decode(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if m, ok := v.(proto.Message); ok {
		if err := protoIn.Unmarshal(data, m); err != nil {
			return fmt.Errorf("wire: decode %T: %w", v, err)
		}
		return nil
	}
	if err := api.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: decode %T: %w", v, err)
	}
	return nil
}
