package llm

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// GenerateSchema reflects T into a JSON schema suitable for strict structured output:
// every object closes additional properties and requires all of its properties.
func GenerateSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	closeObjects(m)
	return m, nil
}

// MustGenerateSchema is GenerateSchema for package-level schema values.
func MustGenerateSchema[T any]() map[string]any {
	m, err := GenerateSchema[T]()
	if err != nil {
		panic(err)
	}
	return m
}

func closeObjects(schema map[string]any) {
	if t, ok := schema[typeKey].(string); ok && t == "object" {
		schema[additionalPropertiesKey] = false
		if properties, ok := schema[propertiesKey].(map[string]any); ok && len(properties) > 0 {
			required := make([]string, 0, len(properties))
			for name := range properties {
				required = append(required, name)
			}
			sort.Strings(required)
			schema[requiredKey] = required
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]any); ok {
		for _, prop := range properties {
			if pm, ok := prop.(map[string]any); ok {
				closeObjects(pm)
			}
		}
	}
	if items, ok := schema[itemsKey].(map[string]any); ok {
		closeObjects(items)
	}
	if ap, ok := schema[additionalPropertiesKey].(map[string]any); ok {
		closeObjects(ap)
	}
}
