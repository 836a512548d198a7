package agentloom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidStructSchema reports a sample value whose type cannot back a schema.
var ErrInvalidStructSchema = errors.New("agentloom: struct schema requires a struct type")

// SchemaFromStruct derives a JSON schema from a struct value or a pointer to
// one. The schema follows the strict-mode conventions: every property is
// listed in "required", optional fields are expressed as anyOf with null, and
// additionalProperties is always false.
func SchemaFromStruct(sample any) (map[string]any, error) {
	if sample == nil {
		return nil, ErrInvalidStructSchema
	}

	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, ErrInvalidStructSchema
	}

	return objectSchema(t, map[reflect.Type]struct{}{})
}

// StructToSchema derives a ParameterSchema from a struct type, so nested
// parameter shapes do not need manual WithParameter chains.
//
// Field behavior is driven by struct tags:
//   - json: property name ("-" skips the field)
//   - required: "true" marks the field required
//   - desc: property description
//   - enum: comma-separated set of allowed values
//   - default: default value surfaced to the model
//
// Example:
//
//	type SearchFilters struct {
//	    Section string `json:"section" desc:"Restrict to one corpus section"`
//	    Status  string `json:"status" required:"true" enum:"draft,published,archived"`
//	    Window  struct {
//	        MaxAgeDays int `json:"max_age_days" desc:"Only documents newer than this"`
//	    } `json:"window"`
//	}
//
//	schema, _ := agentloom.StructToSchema[SearchFilters]()
//	tool := agentloom.NewTool("search_corpus").
//	    WithParameter("filters", schema).
//	    Build()
func StructToSchema[T any]() (*ParameterSchema, error) {
	var zero T
	raw, err := SchemaFromStruct(zero)
	if err != nil {
		return nil, err
	}

	return &ParameterSchema{
		paramType: paramTypeObject,
		rawSchema: raw,
		required:  true,
	}, nil
}

// NewStructTool creates a tool builder whose schema and argument decoding both
// come from the struct type. The handler receives already-decoded arguments.
func NewStructTool[T any](name string, handler func(context.Context, T) (any, error)) (*ToolBuilder, error) {
	var zero T
	schema, err := SchemaFromStruct(zero)
	if err != nil {
		return nil, err
	}

	return NewTool(name).
		WithRawParameters(schema).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			typed, err := decodeArgs[T](args)
			if err != nil {
				return nil, err
			}
			return handler(ctx, typed)
		}), nil
}

// decodeArgs round-trips raw tool arguments through JSON into T.
func decodeArgs[T any](args map[string]any) (T, error) {
	var typed T
	payload, err := json.Marshal(args)
	if err != nil {
		return typed, fmt.Errorf("failed to encode tool args: %w", err)
	}
	if err := json.Unmarshal(payload, &typed); err != nil {
		return typed, fmt.Errorf("failed to decode tool args: %w", err)
	}
	return typed, nil
}

// objectSchema builds the schema for a struct type. The seen set breaks
// recursive types; a revisited type degrades to a bare object.
func objectSchema(t reflect.Type, seen map[reflect.Type]struct{}) (map[string]any, error) {
	if _, ok := seen[t]; ok {
		return map[string]any{"type": paramTypeObject}, nil
	}
	seen[t] = struct{}{}
	defer delete(seen, t)

	properties := make(map[string]any)
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}

		name, skip := jsonName(field)
		if skip {
			continue
		}

		schema := typeSchema(field.Type, seen)
		if desc := field.Tag.Get("desc"); desc != "" {
			schema["description"] = desc
		}
		if tag := field.Tag.Get("enum"); tag != "" {
			if values := enumValues(tag); len(values) > 0 {
				schema["enum"] = values
			}
		}
		if def := field.Tag.Get("default"); def != "" {
			schema["default"] = def
		}

		if !requiredByTag(field) {
			schema = nullableSchema(schema)
		}

		properties[name] = schema

		// Strict mode lists every property in required; optionality is
		// carried by the anyOf-null wrapper instead.
		required = append(required, name)
	}

	result := map[string]any{
		"type":                 paramTypeObject,
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		result["required"] = required
	}

	return result, nil
}

// nullableSchema wraps a property schema in anyOf with null. The description
// stays on the wrapper so clients surface it regardless of which branch
// validates.
func nullableSchema(schema map[string]any) map[string]any {
	desc := schema["description"]
	delete(schema, "description")

	wrapped := map[string]any{
		"anyOf": []map[string]any{
			schema,
			{"type": "null"},
		},
	}
	if desc != nil {
		wrapped["description"] = desc
	}
	return wrapped
}

var timeType = reflect.TypeOf(time.Time{})

// typeSchema maps a Go type to its JSON schema. It never returns nil;
// unsupported kinds fall back to string.
func typeSchema(t reflect.Type, seen map[reflect.Type]struct{}) map[string]any {
	if t.Kind() == reflect.Pointer {
		return typeSchema(t.Elem(), seen)
	}

	if t == timeType {
		return map[string]any{"type": "string", "format": "date-time"}
	}

	switch t.Kind() {
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem(), seen)}
	case reflect.Map:
		return map[string]any{"type": paramTypeObject}
	case reflect.Struct:
		schema, err := objectSchema(t, seen)
		if err != nil {
			return map[string]any{"type": paramTypeObject}
		}
		return schema
	default:
		return map[string]any{"type": "string"}
	}
}

// jsonName resolves the property name for a field. Untagged fields use the
// Go name with its first rune lowered.
func jsonName(field reflect.StructField) (name string, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}

	if name = strings.Split(tag, ",")[0]; name != "" {
		return name, false
	}
	return lowerFirst(field.Name), false
}

func lowerFirst(value string) string {
	r, size := utf8.DecodeRuneInString(value)
	if size == 0 {
		return value
	}
	return string(unicode.ToLower(r)) + value[size:]
}

func enumValues(tag string) []string {
	parts := strings.Split(tag, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// requiredByTag reports whether the required tag marks the field required.
// Absent or unrecognized values mean optional.
func requiredByTag(field reflect.StructField) bool {
	switch strings.ToLower(strings.TrimSpace(field.Tag.Get("required"))) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
