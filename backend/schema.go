package backend

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/envdesk/envdesk/errors"
)

// dataSchema describes the minimum shape of a daemon data payload.
// Validation happens before the payload reaches the shell so a malformed
// daemon response surfaces as a result-value error, not a downstream panic.
const dataSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["environments"],
	"properties": {
		"environments": {
			"type": "array",
			"items": {"type": "string"}
		},
		"packages": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"versions": {
						"type": "array",
						"items": {"type": "string"}
					}
				}
			}
		},
		"processed_info": {
			"type": "object",
			"properties": {
				"root_writable": {"type": "boolean"},
				"root_prefix": {"type": "string"}
			}
		},
		"applications": {"type": "array"},
		"notifications": {"type": "array"},
		"whats_new": {"type": "object"},
		"tos_accepted": {"type": "boolean"},
		"error": {"type": "string"}
	}
}`

// compileDataSchema compiles the payload schema once at client construction
func compileDataSchema() (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(dataSchema))
	if err != nil {
		return nil, errors.WrapFatal(err, "Client", "compileDataSchema", "schema compile")
	}
	return schema, nil
}

// validateData checks a decoded payload against the data schema
func validateData(schema *gojsonschema.Schema, payload map[string]any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return errors.Wrap(err, "Client", "validateData", "schema evaluation")
	}
	if !result.Valid() {
		desc := ""
		for _, issue := range result.Errors() {
			if desc != "" {
				desc += "; "
			}
			desc += issue.String()
		}
		return errors.WrapInvalid(
			errors.ErrInvalidPayload, "Client", "validateData", desc)
	}
	return nil
}
