package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"opsdash/internal/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

// Checker validates request parameters against a function's declared
// required-field list. Field lists are translated to JSON Schema once
// and the compiled form is cached per function.
type Checker struct {
	cache *expirable.LRU[string, *js.Schema]
}

// NewChecker creates a checker with an expirable compiled-schema cache.
func NewChecker(maxSize int) *Checker {
	return &Checker{
		cache: expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

// Validate checks params against the function's declared fields. A nil
// params map is treated as empty. Unknown declared types fall back to
// presence-only checks.
func (c *Checker) Validate(fn model.Function, params map[string]interface{}) error {
	if len(fn.RequiredFields) == 0 {
		return nil
	}

	compiled, err := c.compiled(fn)
	if err != nil {
		return fmt.Errorf("invalid field declaration for function %s: %w", fn.ID, err)
	}

	// The validator walks interface{} values, so round-trip through JSON
	// to normalize numeric types.
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: parameters not serializable: %v", model.ErrValidation, err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: parameters not serializable: %v", model.ErrValidation, err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return nil
}

func (c *Checker) compiled(fn model.Function) (*js.Schema, error) {
	key := c.key(fn)
	if s, ok := c.cache.Get(key); ok {
		return s, nil
	}

	schemaBytes, err := json.Marshal(buildSchema(fn.RequiredFields))
	if err != nil {
		return nil, err
	}

	compiler := js.NewCompiler()
	resourceURL := fmt.Sprintf("mem://functions/%s/params.json", fn.ID)
	if err := compiler.AddResource(resourceURL, bytes.NewReader(schemaBytes)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, compiled)
	return compiled, nil
}

// key includes the field list so a function edit invalidates its cache
// entry naturally.
func (c *Checker) key(fn model.Function) string {
	b, _ := json.Marshal(fn.RequiredFields)
	return fn.ID + ":" + string(b)
}

func buildSchema(fields []model.RequiredField) map[string]interface{} {
	properties := make(map[string]interface{}, len(fields))
	required := make([]string, 0, len(fields))

	for _, f := range fields {
		prop := map[string]interface{}{}
		switch f.Type {
		case "string", "number", "integer", "boolean", "array", "object":
			prop["type"] = f.Type
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		properties[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
