package agentloom

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestToolBuilderDefaults(t *testing.T) {
	tool := NewTool("link_nodes").Build()

	if tool.name != "link_nodes" {
		t.Errorf("name = %q, want link_nodes", tool.name)
	}
	if tool.description != "" {
		t.Errorf("description = %q, want empty", tool.description)
	}
	if tool.handler != nil {
		t.Error("handler should be nil until set")
	}

	// Strict mode is the default, so even a parameterless tool gets a
	// closed object schema.
	if tool.parameters["type"] != paramTypeObject {
		t.Errorf("schema type = %v, want object", tool.parameters["type"])
	}
	if tool.parameters["additionalProperties"] != false {
		t.Error("strict schema must set additionalProperties=false")
	}
}

func TestToolBuilderChaining(t *testing.T) {
	tool := NewTool("search_corpus").
		WithDescription("Search ingested documentation").
		WithParameter("query", String().Required()).
		WithParameter("section", String().Optional()).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"hits": 0}, nil
		}).
		Build()

	if tool.name != "search_corpus" || tool.description != "Search ingested documentation" {
		t.Errorf("chained metadata lost: name=%q description=%q", tool.name, tool.description)
	}
	if tool.handler == nil {
		t.Error("chained handler lost")
	}
	if props := tool.parameters["properties"].(map[string]any); len(props) != 2 {
		t.Errorf("properties = %d, want 2", len(props))
	}
}

func TestToolBuilderStringParameter(t *testing.T) {
	tool := NewTool("tag_document").
		WithParameter("label", String().Required().WithDescription("Tag label")).
		Build()

	props := tool.parameters["properties"].(map[string]any)
	label := props["label"].(map[string]any)

	if label["type"] != paramTypeString {
		t.Errorf("type = %v, want string", label["type"])
	}
	if label["description"] != "Tag label" {
		t.Errorf("description = %v, want Tag label", label["description"])
	}

	required := tool.parameters["required"].([]string)
	if len(required) != 1 || required[0] != "label" {
		t.Errorf("required = %v, want [label]", required)
	}
}

func TestToolBuilderOptionalParameter(t *testing.T) {
	tool := NewTool("tag_document").
		WithParameter("note", String().Optional()).
		Build()

	// Strict schemas list every parameter as required; optional ones are
	// expressed as anyOf with null instead.
	required := tool.parameters["required"].([]string)
	if len(required) != 1 {
		t.Errorf("required = %v, want the optional field listed", required)
	}

	props := tool.parameters["properties"].(map[string]any)
	note := props["note"].(map[string]any)
	if _, ok := note["anyOf"]; !ok {
		t.Error("optional field should be wrapped in anyOf with null")
	}
}

func TestToolBuilderArrayParameter(t *testing.T) {
	tool := NewTool("retire_documents").
		WithParameter("paths", Array("string").Required().WithDescription("Paths to retire")).
		Build()

	props := tool.parameters["properties"].(map[string]any)
	paths := props["paths"].(map[string]any)

	if paths["type"] != paramTypeArray {
		t.Errorf("type = %v, want array", paths["type"])
	}
	if items := paths["items"].(map[string]any); items["type"] != paramTypeString {
		t.Errorf("items type = %v, want string", items["type"])
	}
	if paths["description"] != "Paths to retire" {
		t.Errorf("description = %v", paths["description"])
	}
}

func TestToolBuilderMixedParameters(t *testing.T) {
	tool := NewTool("classify_verb").
		WithParameter("verb", String().Required()).
		WithParameter("hint", String().Optional()).
		WithParameter("candidates", Array("string").Required()).
		Build()

	props := tool.parameters["properties"].(map[string]any)
	if len(props) != 3 {
		t.Fatalf("properties = %d, want 3", len(props))
	}

	required := tool.parameters["required"].([]string)
	seen := map[string]bool{}
	for _, name := range required {
		seen[name] = true
	}
	for _, name := range []string{"verb", "hint", "candidates"} {
		if !seen[name] {
			t.Errorf("required missing %q (strict schemas list every field)", name)
		}
	}

	if hint := props["hint"].(map[string]any); hint["anyOf"] == nil {
		t.Error("optional hint should carry anyOf")
	}
}

func TestToolBuilderHandler(t *testing.T) {
	invoked := false
	tool := NewTool("noop").
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			invoked = true
			return "done", nil
		}).
		Build()

	if tool.handler == nil {
		t.Fatal("handler not set")
	}

	result, err := tool.handler(context.Background(), nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !invoked || result != "done" {
		t.Errorf("invoked=%v result=%v", invoked, result)
	}
}

func TestToolBuilderSerialConcurrency(t *testing.T) {
	tool := NewTool("compact_store").WithConcurrency(ConcurrencySerial).Build()
	if tool.concurrency != ConcurrencySerial {
		t.Fatalf("concurrency = %v, want serial", tool.concurrency)
	}
}

func TestToolBuilderRawSchema(t *testing.T) {
	raw := map[string]any{
		"type": paramTypeObject,
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []string{"query"},
	}

	tool := NewTool("search_corpus").WithJSONSchema(raw).Build()
	if tool.parameters["type"] != paramTypeObject {
		t.Fatalf("schema type = %v, want object", tool.parameters["type"])
	}
}

func TestToolDefinitionRoundTrip(t *testing.T) {
	tool := NewTool("supersede_document").
		WithDescription("Mark a document as replaced by another").
		WithParameter("path", String().Required().WithDescription("Document path")).
		WithParameter("replacement", String().Optional().WithDescription("Replacement path")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		}).
		Build()

	def := tool.ToToolDefinition()
	if def.Name != "supersede_document" {
		t.Errorf("name = %q", def.Name)
	}
	if def.Description != "Mark a document as replaced by another" {
		t.Errorf("description = %q", def.Description)
	}

	// The schema has to survive the trip through the provider wire format.
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		t.Fatalf("marshal parameters: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal parameters: %v", err)
	}

	if decoded["type"] != paramTypeObject {
		t.Errorf("wire type = %v, want object", decoded["type"])
	}
	if props := decoded["properties"].(map[string]any); len(props) != 2 {
		t.Errorf("wire properties = %d, want 2", len(props))
	}
}

func TestSchemaConstructors(t *testing.T) {
	cases := []struct {
		name   string
		schema *ParameterSchema
		want   string
	}{
		{"string", String(), paramTypeString},
		{"number", Number(), paramTypeNumber},
		{"integer", Integer(), paramTypeInteger},
		{"boolean", Boolean(), paramTypeBoolean},
		{"array", Array("string"), paramTypeArray},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.schema.paramType != tc.want {
				t.Errorf("paramType = %q, want %q", tc.schema.paramType, tc.want)
			}
			if m := tc.schema.ToMap(); m["type"] != tc.want {
				t.Errorf("ToMap type = %v, want %q", m["type"], tc.want)
			}
		})
	}
}

func TestSchemaRequiredFlag(t *testing.T) {
	if !String().Required().required {
		t.Error("Required() did not set the flag")
	}
	if String().Optional().required {
		t.Error("Optional() left the flag set")
	}
}

func TestSchemaDescription(t *testing.T) {
	schema := String().WithDescription("Verb to classify")
	if schema.description != "Verb to classify" {
		t.Errorf("description = %q", schema.description)
	}
	if m := schema.ToMap(); m["description"] != "Verb to classify" {
		t.Errorf("ToMap description = %v", m["description"])
	}
}

func TestSchemaToMapOmitsRequired(t *testing.T) {
	// The required flag lives in the enclosing object schema, never on the
	// parameter map itself.
	m := String().Required().WithDescription("Path").ToMap()
	if m["type"] != paramTypeString || m["description"] != "Path" {
		t.Errorf("ToMap = %v", m)
	}
	if _, ok := m["required"]; ok {
		t.Error("parameter map should not carry a required key")
	}
}

func TestSchemaEnum(t *testing.T) {
	m := String().Required().WithEnum("merge", "supersede", "outline").ToMap()

	enum, ok := m["enum"].([]string)
	if !ok {
		t.Fatalf("enum = %T, want []string", m["enum"])
	}
	want := []string{"merge", "supersede", "outline"}
	if len(enum) != len(want) {
		t.Fatalf("enum = %v, want %v", enum, want)
	}
	for i := range want {
		if enum[i] != want[i] {
			t.Errorf("enum[%d] = %q, want %q", i, enum[i], want[i])
		}
	}
}

func TestSchemaArrayItems(t *testing.T) {
	m := Array("number").WithDescription("Similarity scores").ToMap()

	if m["type"] != paramTypeArray {
		t.Errorf("type = %v, want array", m["type"])
	}
	if m["description"] != "Similarity scores" {
		t.Errorf("description = %v", m["description"])
	}
	if items := m["items"].(map[string]any); items["type"] != "number" {
		t.Errorf("items type = %v, want number", items["type"])
	}
}

func TestSchemaObject(t *testing.T) {
	m := Object().
		WithProperty("path", String().Required()).
		WithProperty("title", String().Optional()).
		ToMap()

	if m["type"] != paramTypeObject {
		t.Fatalf("type = %v, want object", m["type"])
	}

	props := m["properties"].(map[string]any)
	if _, ok := props["path"]; !ok {
		t.Fatal("missing path property")
	}
	if _, ok := props["title"]; !ok {
		t.Fatal("missing title property")
	}

	// Outside strict mode only genuinely required fields appear.
	required := m["required"].([]string)
	if len(required) != 1 || required[0] != "path" {
		t.Fatalf("required = %v, want [path]", required)
	}
}

func TestSchemaArrayOfObjects(t *testing.T) {
	m := ArrayOf(Object().WithProperty("id", String().Required())).ToMap()

	items := m["items"].(map[string]any)
	if items["type"] != paramTypeObject {
		t.Fatalf("items type = %v, want object", items["type"])
	}
	if items["additionalProperties"] != false {
		t.Error("object items should be closed schemas")
	}
}

func TestToolExecute(t *testing.T) {
	tool := NewTool("lookup_node").
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			id := args["id"].(string)
			return map[string]any{"id": id, "label": "ingest pipeline"}, nil
		}).
		Build()

	result, err := tool.Execute(context.Background(), `{"id":"node-7"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := result.(map[string]any)
	if got["label"] != "ingest pipeline" {
		t.Errorf("result = %v", got)
	}
}

func TestToolExecuteBadJSON(t *testing.T) {
	tool := NewTool("lookup_node").
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		}).
		Build()

	if _, err := tool.Execute(context.Background(), `{broken`); err == nil {
		t.Error("expected a parse error for malformed arguments")
	}
}

func TestToolExecuteHandlerError(t *testing.T) {
	errLocked := errors.New("store locked")
	tool := NewTool("compact_store").
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errLocked
		}).
		Build()

	_, err := tool.Execute(context.Background(), `{}`)
	if !errors.Is(err, errLocked) {
		t.Errorf("err = %v, want %v", err, errLocked)
	}
}
