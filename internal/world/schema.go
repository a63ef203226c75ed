package world

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed world.schema.json
var schemaJSON string

var docSchema = jsonschema.MustCompileString("world.schema.json", schemaJSON)

// validateDocument checks a decoded world document against the embedded
// schema. The document is round-tripped through encoding/json so the schema
// library sees the value shapes it expects regardless of the yaml decoder's
// number types.
func validateDocument(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := docSchema.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
