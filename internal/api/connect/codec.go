package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// jsonCodec carries plain Go structs as JSON. It replaces connect's
// protobuf-only "json" codec on both ends.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %T", msg)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrapf(err, "failed to decode %T", msg)
	}
	return nil
}
