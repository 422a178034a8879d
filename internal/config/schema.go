package config

import (
	_ "embed"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	dserrors "github.com/systmms/secvault/internal/errors"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

func validateSchema(doc map[string]interface{}) error {
	jsonData, err := toJSON(doc)
	if err != nil {
		return dserrors.Configuration("validate config", "failed to marshal data for validation", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return dserrors.Configuration("validate config", "schema validation error", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return dserrors.Configuration("validate config",
			"schema validation failed:\n  - "+strings.Join(errorMessages, "\n  - "), nil)
	}
	return nil
}
