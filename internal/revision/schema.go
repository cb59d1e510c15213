package revision

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const documentSchemaURL = "soulbench://revision/soul_doc.json"

const documentSchemaText = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["soul_doc"],
  "properties": {
    "soul_doc": {"type": "string", "minLength": 1}
  }
}`

var (
	schemaOnce     sync.Once
	documentSchema *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(documentSchemaURL, strings.NewReader(documentSchemaText)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		documentSchema, schemaErr = compiler.Compile(documentSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return documentSchema, schemaErr
}

// validateObject checks a decoded response object against the document
// schema.
func validateObject(object map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(object); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
