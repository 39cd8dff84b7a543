package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON Schema plus its raw form, kept for defaults and listings.
type Schema struct {
	name     string
	compiled *gojsonschema.Schema
	raw      map[string]interface{}
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins every validation error into one line.
func (r *ValidationResult) Error() string {
	if r == nil || r.Valid {
		return ""
	}
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Compile parses and compiles a JSON Schema document.
func Compile(name string, raw []byte) (*Schema, error) {
	var rawMap map[string]interface{}
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return nil, fmt.Errorf("schema %s is not valid JSON: %w", name, err)
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema %s failed to compile: %w", name, err)
	}

	return &Schema{name: name, compiled: compiled, raw: rawMap}, nil
}

// CompileMap compiles a schema given as a Go map.
func CompileMap(name string, schema map[string]interface{}) (*Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("schema %s failed to marshal: %w", name, err)
	}
	return Compile(name, raw)
}

// MustCompile is Compile for schemas embedded in the binary.
func MustCompile(name string, raw []byte) *Schema {
	s, err := Compile(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Raw returns the schema document as decoded JSON.
func (s *Schema) Raw() map[string]interface{} { return s.raw }

// Validate checks a Go value (maps, slices, scalars) against the schema.
func (s *Schema) Validate(doc interface{}) *ValidationResult {
	return s.validate(gojsonschema.NewGoLoader(doc))
}

// ValidateBytes checks a raw JSON document against the schema.
func (s *Schema) ValidateBytes(doc []byte) *ValidationResult {
	return s.validate(gojsonschema.NewBytesLoader(doc))
}

func (s *Schema) validate(loader gojsonschema.JSONLoader) *ValidationResult {
	result, err := s.compiled.Validate(loader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "INVALID_DOCUMENT",
			}},
		}
	}

	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		field := re.Field()
		if prop, ok := re.Details()["property"].(string); ok && re.Type() == "required" {
			field = prop
		}
		errs = append(errs, ValidationError{
			Field:   field,
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}

	return &ValidationResult{Valid: false, Errors: errs}
}

// ApplyDefaults fills missing top-level properties from their "default" values.
func (s *Schema) ApplyDefaults(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}

	props, _ := s.raw["properties"].(map[string]interface{})
	for name, p := range props {
		prop, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if _, present := out[name]; present {
			continue
		}
		if def, ok := prop["default"]; ok {
			out[name] = def
		}
	}
	return out
}
