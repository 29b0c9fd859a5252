// Package metadata encodes typed metadata values into (string, type tag)
// pairs for stores that only hold strings, and decodes them back without
// changing their type.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Type is the tag stored next to an encoded value.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeNull   Type = "null"

	// typeLegacyString is the tag written by the JSON import scripts.
	typeLegacyString Type = "str"
)

var (
	// ErrUnsupportedValue is returned by Encode for values that are not
	// strings, integers, floats, booleans or nil.
	ErrUnsupportedValue = errors.New("unsupported metadata value")

	// ErrUnknownType is wrapped by a DecodeError when the stored tag is not recognized.
	ErrUnknownType = errors.New("unknown metadata type")
)

// DecodeError reports a stored value that does not parse under its tag.
type DecodeError struct {
	Key   string
	Value string
	Type  Type
	cause error
}

func (e *DecodeError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("decode metadata %q: value %q as %s: %v", e.Key, e.Value, e.Type, e.cause)
	}
	return fmt.Sprintf("decode metadata value %q as %s: %v", e.Value, e.Type, e.cause)
}

func (e *DecodeError) Unwrap() error { return e.cause }

// Map is a set of typed metadata values keyed by name.
type Map map[string]any

// Entry is one encoded metadata field.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  Type   `json:"value_type"`
}

// Encode converts v into its string form and type tag. Integer kinds are
// normalized to int64 and float kinds to float64.
func Encode(v any) (string, Type, error) {
	switch val := v.(type) {
	case nil:
		return "", TypeNull, nil
	case string:
		return val, TypeString, nil
	case bool:
		return strconv.FormatBool(val), TypeBool, nil
	case int:
		return strconv.FormatInt(int64(val), 10), TypeInt, nil
	case int8:
		return strconv.FormatInt(int64(val), 10), TypeInt, nil
	case int16:
		return strconv.FormatInt(int64(val), 10), TypeInt, nil
	case int32:
		return strconv.FormatInt(int64(val), 10), TypeInt, nil
	case int64:
		return strconv.FormatInt(val, 10), TypeInt, nil
	case uint:
		return encodeUint(uint64(val))
	case uint8:
		return encodeUint(uint64(val))
	case uint16:
		return encodeUint(uint64(val))
	case uint32:
		return encodeUint(uint64(val))
	case uint64:
		return encodeUint(val)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), TypeFloat, nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), TypeFloat, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10), TypeInt, nil
		}
		f, err := val.Float64()
		if err != nil {
			return "", "", fmt.Errorf("%w: json number %q", ErrUnsupportedValue, val.String())
		}
		return strconv.FormatFloat(f, 'g', -1, 64), TypeFloat, nil
	default:
		return "", "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func encodeUint(u uint64) (string, Type, error) {
	if u > math.MaxInt64 {
		return "", "", fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, u)
	}
	return strconv.FormatInt(int64(u), 10), TypeInt, nil
}

// Decode converts a stored string back into a typed value using its tag.
// Booleans are recognized by membership in {"true", "1", "yes"} and are
// never routed through integer parsing.
func Decode(s string, t Type) (any, error) {
	switch t {
	case TypeString, typeLegacyString:
		return s, nil
	case TypeBool:
		return parseBool(s), nil
	case TypeInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &DecodeError{Value: s, Type: t, cause: err}
		}
		return i, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &DecodeError{Value: s, Type: t, cause: err}
		}
		return f, nil
	case TypeNull:
		return nil, nil
	default:
		return nil, &DecodeError{Value: s, Type: t, cause: ErrUnknownType}
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// Infer types a value typed by hand, as on a command line: true and false
// become booleans, integers int64, other numbers float64. Everything else,
// including the empty string, stays a string.
func Infer(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

// Normalize returns v as Decode would return it after a round trip.
func Normalize(v any) (any, error) {
	s, t, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return Decode(s, t)
}

// EncodeMap encodes every field of m. Entries are sorted by key.
func EncodeMap(m Map) ([]Entry, error) {
	entries := make([]Entry, 0, len(m))
	for k, v := range m {
		if k == "" {
			return nil, fmt.Errorf("%w: empty metadata key", ErrUnsupportedValue)
		}
		s, t, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		entries = append(entries, Entry{Key: k, Value: s, Type: t})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// DecodeEntries decodes entries into a Map. Fields that fail to decode are
// left out and reported in the returned slice; the rest are kept.
func DecodeEntries(entries []Entry) (Map, []error) {
	m := make(Map, len(entries))
	var errs []error
	for _, e := range entries {
		v, err := Decode(e.Value, e.Type)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				de.Key = e.Key
			}
			errs = append(errs, err)
			continue
		}
		m[e.Key] = v
	}
	return m, errs
}

// Clone returns a shallow copy of m. A nil map clones to an empty one.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
