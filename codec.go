package persist

import (
	"encoding/json"

	"github.com/tidwall/jsonc"
)

// Codec converts values to and from their stored text form. Decoding into an
// *any must produce the JSON data model (maps, slices, float64, string, bool,
// nil); type hints and rule evaluation depend on it.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the default codec.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// TolerantJSON writes plain JSON but also reads stored text containing
// comments and trailing commas, for slots that are edited by hand.
type TolerantJSON struct{}

func (TolerantJSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (TolerantJSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(jsonc.ToJSON(data), v)
}

func toStructural(codec Codec, v any) (any, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := codec.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func isObject(data any) bool {
	switch data.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
