// Package registry is the process-wide analyzer/transform lookup of
// SPEC_FULL §4.2: two flat maps keyed by (asset_type, name), populated by
// an explicit startup-time table rather than import-time side effects
// (§9's re-expression of the source's metaclass registration).
package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldKind is a settings-schema field's value type.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldInt    FieldKind = "int"
	FieldFloat  FieldKind = "float"
	FieldBool   FieldKind = "bool"
	FieldEnum   FieldKind = "enum"
)

// Field describes one settings key a capability accepts.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	Default  any
	Min      *float64
	Max      *float64
	Enum     []string
}

// Schema is a capability's full settings form.
type Schema []Field

// Validate checks raw against the schema, returning normalized settings
// (defaults filled in, numeric types coerced) and a list of field-path ->
// messages for the API's arg_errors response.
func (s Schema) Validate(raw map[string]any) (map[string]any, map[string][]string) {
	out := map[string]any{}
	errs := map[string][]string{}

	for _, f := range s {
		v, present := raw[f.Name]
		if !present {
			if f.Required {
				errs[f.Name] = append(errs[f.Name], "is required")
				continue
			}
			if f.Default != nil {
				out[f.Name] = f.Default
			}
			continue
		}
		normalized, err := normalizeField(f, v)
		if err != "" {
			errs[f.Name] = append(errs[f.Name], err)
			continue
		}
		out[f.Name] = normalized
	}

	return out, errs
}

func normalizeField(f Field, v any) (any, string) {
	switch f.Kind {
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return nil, "must be a string"
		}
		return s, ""
	case FieldBool:
		b, ok := v.(bool)
		if !ok {
			return nil, "must be a boolean"
		}
		return b, ""
	case FieldInt:
		n, err := toFloat(v)
		if err != "" {
			return nil, err
		}
		if msg := checkRange(f, n); msg != "" {
			return nil, msg
		}
		return int(n), ""
	case FieldFloat:
		n, err := toFloat(v)
		if err != "" {
			return nil, err
		}
		if msg := checkRange(f, n); msg != "" {
			return nil, msg
		}
		return n, ""
	case FieldEnum:
		s, ok := v.(string)
		if !ok {
			return nil, "must be a string"
		}
		for _, allowed := range f.Enum {
			if allowed == s {
				return s, ""
			}
		}
		return nil, fmt.Sprintf("must be one of %v", f.Enum)
	default:
		return v, ""
	}
}

func checkRange(f Field, n float64) string {
	if f.Min != nil && n < *f.Min {
		return fmt.Sprintf("must be >= %v", *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Sprintf("must be <= %v", *f.Max)
	}
	return ""
}

func toFloat(v any) (float64, string) {
	switch n := v.(type) {
	case float64:
		return n, ""
	case float32:
		return float64(n), ""
	case int:
		return float64(n), ""
	case int64:
		return float64(n), ""
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, "must be a number"
		}
		return f, ""
	default:
		return 0, "must be a number"
	}
}
