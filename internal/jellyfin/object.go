package jellyfin

import (
	"encoding/json"
	"strconv"
)

// Object is a decoded JSON object, kept verbatim so it can be forwarded as is.
type Object map[string]any

// Item is a Jellyfin media item. It carries at least Id and Name.
type Item = Object

// decodeObject never fails: anything that is not a JSON object becomes empty.
func decodeObject(body []byte) Object {
	var out Object
	if err := json.Unmarshal(body, &out); err != nil || out == nil {
		return Object{}
	}
	return out
}

// decodeAny parses an error body when it is JSON, nil otherwise.
func decodeAny(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil
	}
	return out
}

// Has reports whether key is present with a non-null value.
func (o Object) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

func (o Object) String(key string) string {
	switch v := o[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func (o Object) Int(key string) int64 {
	switch v := o[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Object returns a nested object, or nil.
func (o Object) Object(key string) Object {
	switch v := o[key].(type) {
	case map[string]any:
		return Object(v)
	case Object:
		return v
	default:
		return nil
	}
}

// Objects returns the object elements of a nested array and whether the key
// held an array at all.
func (o Object) Objects(key string) ([]Object, bool) {
	raw, ok := o[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]Object, 0, len(raw))
	for _, el := range raw {
		if m, ok := el.(map[string]any); ok {
			out = append(out, Object(m))
		}
	}
	return out, true
}
