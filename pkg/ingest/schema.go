// Package ingest pulls air quality data from an upstream source into the
// local store and validates externally submitted measurement payloads.
package ingest

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// measurementSchema validates externally submitted measurement payloads
// before they touch the store. Value is nullable: sources occasionally
// deliver records without one.
var measurementSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"external_id":           map[string]any{"type": "string", "minLength": 1},
		"site_external_id":      map[string]any{"type": "string", "minLength": 1},
		"pollutant_external_id": map[string]any{"type": "string", "minLength": 1},
		"measured_at":           map[string]any{"type": "string", "format": "date-time"},
		"value":                 map[string]any{"type": []any{"number", "null"}},
		"unit":                  map[string]any{"type": "string"},
	},
	"required":             []any{"external_id", "site_external_id", "pollutant_external_id", "measured_at"},
	"additionalProperties": false,
}

// ValidateMeasurementPayload checks a raw measurement submission against the
// ingest schema.
func ValidateMeasurementPayload(payload map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(measurementSchema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}
