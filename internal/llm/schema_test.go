package llm

import (
	"reflect"
	"testing"
)

type schemaInner struct {
	Name string `json:"name"`
}

type schemaOuter struct {
	Title  string        `json:"title"`
	Tags   []string      `json:"tags"`
	Inner  schemaInner   `json:"inner"`
	Nested []schemaInner `json:"nested"`
}

func TestGenerateSchema(t *testing.T) {
	s, err := GenerateSchema[schemaOuter]()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s["$schema"]; ok {
		t.Error("$schema should be stripped")
	}
	if s[additionalPropertiesKey] != false {
		t.Errorf("root additionalProperties = %v", s[additionalPropertiesKey])
	}
	want := []string{"inner", "nested", "tags", "title"}
	if got := s[requiredKey]; !reflect.DeepEqual(got, want) {
		t.Errorf("required = %v, want %v", got, want)
	}

	props := s[propertiesKey].(map[string]any)
	inner := props["inner"].(map[string]any)
	if inner[additionalPropertiesKey] != false {
		t.Error("nested object should be closed")
	}
	items := props["nested"].(map[string]any)[itemsKey].(map[string]any)
	if !reflect.DeepEqual(items[requiredKey], []string{"name"}) {
		t.Errorf("array item required = %v", items[requiredKey])
	}
}
