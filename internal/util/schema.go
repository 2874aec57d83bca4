package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives a JSON schema from a Go struct. Field names follow the
// json tag; a `description` tag becomes the property description. Fields
// tagged omitempty and pointer fields are optional.
func CreateSchema(structType any) map[string]any {
	empty := map[string]any{"type": "object", "properties": map[string]any{}}

	t := reflect.TypeOf(structType)
	if t == nil {
		return empty
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return empty
	}

	r := &invopop.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	doc, err := normalize(r.ReflectFromType(t))
	if err != nil {
		return empty
	}
	schema, ok := doc.(map[string]any)
	if !ok {
		return empty
	}
	delete(schema, "$schema")
	delete(schema, "$id")

	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
		schema["properties"] = props
	}
	optional := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, skip := jsonName(field)
		if skip {
			continue
		}
		if desc := field.Tag.Get("description"); desc != "" {
			if p, ok := props[name].(map[string]any); ok {
				p["description"] = desc
			}
		}
		if isPointer(field.Type) || hasOmitEmpty(field.Tag.Get("json")) {
			optional[name] = true
		}
	}

	var required []string
	if list, ok := schema["required"].([]any); ok {
		for _, v := range list {
			if name, ok := v.(string); ok && !optional[name] {
				required = append(required, name)
			}
		}
	}
	delete(schema, "required")
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonName(field reflect.StructField) (string, bool) {
	if !field.IsExported() {
		return "", true
	}
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, false
	}
	return field.Name, false
}

// CompileSchema compiles a JSON schema given as a Go map. The map is
// normalized through encoding/json first so Go literals ([]string, int)
// are accepted the same way as decoded JSON.
func CompileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	doc, err := normalize(schema)
	if err != nil {
		return nil, fmt.Errorf("normalize schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// Validate checks params against a compiled schema. Failures are reported as
// *ValidationError naming the offending field.
func Validate(params map[string]any, schema *jsonschema.Schema) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	doc, err := normalize(params)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("arguments are not JSON encodable: %v", err)}
	}
	if err := schema.Validate(doc); err != nil {
		var vErr *jsonschema.ValidationError
		if errors.As(err, &vErr) {
			leaf := vErr
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			return &ValidationError{
				Field:   strings.Join(leaf.InstanceLocation, "."),
				Value:   params,
				Message: leaf.Error(),
			}
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

// ValidateParameters compiles schema and validates params against it.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := CompileSchema(schema)
	if err != nil {
		return err
	}
	return Validate(params, compiled)
}

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isPointer checks if a type is a pointer.
func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}
