package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed rule.schema.json
var ruleSchemaJSON []byte

const ruleSchemaURL = "rule.schema.json"

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func ruleSchema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(ruleSchemaJSON))
		if err != nil {
			compiledSchemaErr = fmt.Errorf("rule schema unmarshal error: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(ruleSchemaURL, doc); err != nil {
			compiledSchemaErr = fmt.Errorf("rule schema compile error: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = c.Compile(ruleSchemaURL)
	})
	return compiledSchema, compiledSchemaErr
}

// ValidateDocument checks raw rule JSON against the embedded document schema.
// It catches structural problems (wrong types, unknown enum values) before
// the document is decoded.
func ValidateDocument(data []byte) error {
	sch, err := ruleSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
