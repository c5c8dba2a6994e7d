package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// paramSchemas maps strategy name to the JSON schema for its params.
// Unknown fields are rejected so config typos surface at load time
// instead of silently falling back to defaults.
var paramSchemas = map[string]string{
	"momentum": `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"fast_period": {"type": "integer", "minimum": 1},
			"slow_period": {"type": "integer", "minimum": 2},
			"max_history": {"type": "integer", "minimum": 10}
		}
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compiledSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*jsonschema.Schema, len(paramSchemas))
		for name, raw := range paramSchemas {
			compiler := jsonschema.NewCompiler()
			url := name + ".schema.json"
			if err := compiler.AddResource(url, strings.NewReader(raw)); err != nil {
				compileErr = err
				return
			}
			schema, err := compiler.Compile(url)
			if err != nil {
				compileErr = err
				return
			}
			compiled[name] = schema
		}
	})
	return compiled, compileErr
}

// ValidateParams checks raw params against the strategy's schema. An
// unregistered strategy name passes; New rejects those on its own.
func ValidateParams(name string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	schemas, err := compiledSchemas()
	if err != nil {
		return fmt.Errorf("strategy: schema compile: %w", err)
	}
	schema, ok := schemas[name]
	if !ok {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("strategy: params are not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("strategy: %s params: %w", name, err)
	}
	return nil
}
