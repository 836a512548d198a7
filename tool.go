package agentloom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentloom/agentloom/providers"
)

// ToolHandler executes a tool call. Arguments arrive already decoded from
// the model's JSON.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// PendingFormatter renders the progress line shown while a tool runs.
type PendingFormatter func(toolName string, args map[string]any) string

// ResultFormatter renders the completion line for a finished tool call.
type ResultFormatter func(toolName string, result any) string

// Tool is a capability the model can call: a name, a JSON Schema for its
// arguments, and the handler that does the work. Build one with NewTool or
// NewStructTool.
type Tool struct {
	name             string
	description      string
	parameters       map[string]any
	handler          ToolHandler
	pendingFormatter PendingFormatter
	resultFormatter  ResultFormatter
	concurrency      ConcurrencyMode
	strict           bool // strict schema validation (Structured Outputs)
}

// ToToolDefinition converts the tool to a provider-agnostic ToolDefinition.
func (t *Tool) ToToolDefinition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

// Execute decodes the model-supplied JSON arguments and runs the handler.
func (t *Tool) Execute(ctx context.Context, argsJSON string) (any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, err
	}
	return t.handler(ctx, args)
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return t.name
}

// Concurrency reports whether the tool may run alongside others. The zero
// value means parallel.
func (t *Tool) Concurrency() ConcurrencyMode {
	if t.concurrency == "" {
		return ConcurrencyParallel
	}
	return t.concurrency
}

// FormatPending returns the display line for a tool that is about to run.
func (t *Tool) FormatPending(args map[string]any) string {
	if t.pendingFormatter != nil {
		return t.pendingFormatter(t.name, args)
	}
	return fmt.Sprintf("%s...", formatToolName(t.name))
}

// FormatResult returns the display line for a finished tool call. Without a
// custom formatter, results that carry an error or a failed success flag
// render with ✗.
func (t *Tool) FormatResult(result any) string {
	if t.resultFormatter != nil {
		return t.resultFormatter(t.name, result)
	}

	if m, ok := result.(map[string]any); ok {
		if msg, ok := m["error"].(string); ok && msg != "" {
			return fmt.Sprintf("✗ %s", msg)
		}
		if success, ok := m["success"].(bool); ok && !success {
			if msg, ok := m["message"].(string); ok {
				return fmt.Sprintf("✗ %s", msg)
			}
			return fmt.Sprintf("✗ %s failed", formatToolName(t.name))
		}
	}

	return fmt.Sprintf("✓ %s completed", formatToolName(t.name))
}

// formatToolName turns a snake_case or kebab-case name into a display title:
// "merge_documents" becomes "Merge Documents".
func formatToolName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	upper := true
	for _, r := range name {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
			upper = true
		case upper:
			b.WriteRune(asciiUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func asciiUpper(r rune) rune {
	if 'a' <= r && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// ToolBuilder assembles a Tool through a fluent chain ending in Build.
type ToolBuilder struct {
	tool Tool
}

// NewTool starts a tool definition. Tools default to strict schemas and
// parallel execution; see WithStrictMode and WithConcurrency.
func NewTool(name string) *ToolBuilder {
	return &ToolBuilder{
		tool: Tool{
			name:        name,
			parameters:  map[string]any{},
			concurrency: ConcurrencyParallel,
			strict:      true,
		},
	}
}

// WithDescription sets the tool description shown to the model.
func (tb *ToolBuilder) WithDescription(desc string) *ToolBuilder {
	tb.tool.description = desc
	return tb
}

// WithParameter adds a named parameter. The first parameter initializes the
// enclosing object schema.
func (tb *ToolBuilder) WithParameter(name string, schema *ParameterSchema) *ToolBuilder {
	if tb.tool.parameters["properties"] == nil {
		tb.tool.parameters = map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"required":             []string{},
			"additionalProperties": false,
		}
	}

	props := tb.tool.parameters["properties"].(map[string]any)
	props[name] = schema.ToMapStrict()

	// Strict schemas list every parameter in required; optional parameters
	// carry an anyOf null union instead.
	required := tb.tool.parameters["required"].([]string)
	tb.tool.parameters["required"] = append(required, name)

	return tb
}

// WithRawParameters replaces the whole parameters schema, for tools whose
// shape is built elsewhere or copied from an external definition.
func (tb *ToolBuilder) WithRawParameters(params map[string]any) *ToolBuilder {
	tb.tool.parameters = params
	return tb
}

// WithJSONSchema is an alias for WithRawParameters.
func (tb *ToolBuilder) WithJSONSchema(schema map[string]any) *ToolBuilder {
	return tb.WithRawParameters(schema)
}

// WithHandler sets the function that executes the tool.
func (tb *ToolBuilder) WithHandler(handler ToolHandler) *ToolBuilder {
	tb.tool.handler = handler
	return tb
}

// WithPendingFormatter overrides the progress line shown while the tool runs.
func (tb *ToolBuilder) WithPendingFormatter(formatter PendingFormatter) *ToolBuilder {
	tb.tool.pendingFormatter = formatter
	return tb
}

// WithResultFormatter overrides the completion line for the tool's results.
func (tb *ToolBuilder) WithResultFormatter(formatter ResultFormatter) *ToolBuilder {
	tb.tool.resultFormatter = formatter
	return tb
}

// WithConcurrency controls whether the tool can run in parallel with other
// tool calls from the same response.
func (tb *ToolBuilder) WithConcurrency(mode ConcurrencyMode) *ToolBuilder {
	if mode == "" {
		mode = ConcurrencyParallel
	}
	tb.tool.concurrency = mode
	return tb
}

// WithStrictMode toggles strict schema validation (OpenAI Structured
// Outputs). On by default; turn it off only for JSON Schema features strict
// mode cannot express.
func (tb *ToolBuilder) WithStrictMode(strict bool) *ToolBuilder {
	tb.tool.strict = strict
	return tb
}

// Build finalizes the tool. Strict tools get their schema closed first.
func (tb *ToolBuilder) Build() Tool {
	if tb.tool.strict {
		tb.tool.parameters = closeSchema(tb.tool.parameters)
	}
	return tb.tool
}

// closeSchema fills in the object skeleton strict providers require. An
// explicit additionalProperties value, open or closed, survives untouched.
func closeSchema(params map[string]any) map[string]any {
	if len(params) == 0 {
		return map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		}
	}

	if _, ok := params["type"]; !ok {
		params["type"] = "object"
	}
	if params["type"] == "object" {
		if _, ok := params["properties"]; !ok {
			params["properties"] = map[string]any{}
		}
	}
	if _, ok := params["additionalProperties"]; !ok {
		params["additionalProperties"] = false
	}

	return params
}

// ParameterSchema describes one tool parameter as a fluent JSON Schema
// fragment. Construct with String, Number, Integer, Boolean, Array, ArrayOf,
// or Object.
type ParameterSchema struct {
	paramType   string
	description string
	required    bool
	enum        []string
	items       map[string]any
	properties  map[string]*ParameterSchema
	rawSchema   map[string]any // struct-derived schemas pass through untouched
}

const (
	paramTypeString  = "string"
	paramTypeNumber  = "number"
	paramTypeInteger = "integer"
	paramTypeBoolean = "boolean"
	paramTypeArray   = "array"
	paramTypeObject  = "object"
)

// String creates a string parameter schema.
func String() *ParameterSchema { return &ParameterSchema{paramType: paramTypeString} }

// Number creates a number parameter schema.
func Number() *ParameterSchema { return &ParameterSchema{paramType: paramTypeNumber} }

// Integer creates an integer parameter schema.
func Integer() *ParameterSchema { return &ParameterSchema{paramType: paramTypeInteger} }

// Boolean creates a boolean parameter schema.
func Boolean() *ParameterSchema { return &ParameterSchema{paramType: paramTypeBoolean} }

// Array creates an array schema with primitive items of the given type.
func Array(itemType string) *ParameterSchema {
	return &ParameterSchema{
		paramType: paramTypeArray,
		items:     map[string]any{"type": itemType},
	}
}

// ArrayOf creates an array schema whose items follow a full schema, for
// arrays of objects or other composite items.
func ArrayOf(itemSchema *ParameterSchema) *ParameterSchema {
	items := map[string]any{}
	if itemSchema != nil {
		// Items take the bare schema, never an anyOf union: optionality is
		// meaningless for array elements.
		items = itemSchema.schemaMap(false)
		if itemSchema.paramType == paramTypeObject && len(itemSchema.properties) > 0 {
			itemSchema.fillObject(items, true)
		}
	}

	return &ParameterSchema{
		paramType: paramTypeArray,
		items:     items,
	}
}

// Object creates an object parameter schema; add fields with WithProperty.
func Object() *ParameterSchema {
	return &ParameterSchema{
		paramType:  paramTypeObject,
		properties: map[string]*ParameterSchema{},
	}
}

// WithProperty adds a property to an object schema. Calling it on a
// non-object schema converts it to one.
func (ps *ParameterSchema) WithProperty(name string, schema *ParameterSchema) *ParameterSchema {
	ps.paramType = paramTypeObject
	if ps.properties == nil {
		ps.properties = map[string]*ParameterSchema{}
	}
	ps.properties[name] = schema
	return ps
}

// WithDescription sets the parameter description shown to the model.
func (ps *ParameterSchema) WithDescription(desc string) *ParameterSchema {
	ps.description = desc
	return ps
}

// Required marks the parameter as required.
func (ps *ParameterSchema) Required() *ParameterSchema {
	ps.required = true
	return ps
}

// Optional marks the parameter as optional.
func (ps *ParameterSchema) Optional() *ParameterSchema {
	ps.required = false
	return ps
}

// WithEnum restricts the parameter to the given values.
func (ps *ParameterSchema) WithEnum(values ...string) *ParameterSchema {
	ps.enum = values
	return ps
}

// ToMap converts the schema to a plain JSON Schema map.
func (ps *ParameterSchema) ToMap() map[string]any {
	return ps.schemaMap(false)
}

// ToMapStrict converts the schema for strict providers: optional fields
// become anyOf null unions and object schemas are closed.
func (ps *ParameterSchema) ToMapStrict() map[string]any {
	return ps.schemaMap(true)
}

func (ps *ParameterSchema) schemaMap(strict bool) map[string]any {
	if ps.rawSchema != nil {
		return ps.rawSchema
	}

	if strict && !ps.required && ps.paramType != "" {
		return ps.nullUnion()
	}

	m := map[string]any{
		"type": ps.paramType,
	}
	if ps.description != "" {
		m["description"] = ps.description
	}
	if len(ps.enum) > 0 {
		m["enum"] = ps.enum
	}
	if len(ps.items) > 0 {
		m["items"] = ps.items
	}
	if len(ps.properties) > 0 {
		ps.fillObject(m, strict)
	}

	return m
}

// nullUnion wraps the base schema in anyOf with null. The description moves
// to the wrapper so providers surface it on the union, not the branch.
func (ps *ParameterSchema) nullUnion() map[string]any {
	base := ps.schemaMap(false)
	delete(base, "required")
	return map[string]any{
		"anyOf": []map[string]any{
			base,
			{"type": "null"},
		},
		"description": ps.description,
	}
}

// fillObject writes the properties block into m. Strict mode lists every
// property in required and closes the schema; lax mode lists only fields
// actually marked required.
func (ps *ParameterSchema) fillObject(m map[string]any, strict bool) {
	props := make(map[string]any, len(ps.properties))
	required := make([]string, 0, len(ps.properties))

	for name, schema := range ps.properties {
		if schema == nil {
			continue
		}
		props[name] = schema.schemaMap(strict)
		if strict || schema.required {
			required = append(required, name)
		}
	}

	m["properties"] = props
	if strict {
		m["required"] = required
		m["additionalProperties"] = false
	} else if len(required) > 0 {
		m["required"] = required
	}
}
