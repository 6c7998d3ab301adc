package save

import (
	_ "embed"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed save.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

func documentSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		schema = jsonschema.MustCompileString("save.schema.json", schemaJSON)
	})
	return schema
}

// CheckSchema validates a current-version document against the save schema.
func CheckSchema(doc Doc) error {
	return documentSchema().Validate(doc)
}
