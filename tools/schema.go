package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/richinex/scribe/model"
)

// compileSchema compiles an action's input schema. A nil schema accepts any
// object.
func compileSchema(schema map[string]any) (*gojsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %v: %w", err, model.ErrConfiguration)
	}
	return compiled, nil
}

// validateInputs checks inputs against a compiled schema.
func validateInputs(schema *gojsonschema.Schema, inputs map[string]any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(inputs))
	if err != nil {
		return fmt.Errorf("inputs are not valid JSON: %v: %w", err, model.ErrValidation)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), model.ErrValidation)
}

// withDefaults returns a copy of inputs with schema property defaults filled
// in for missing keys.
func withDefaults(schema map[string]any, inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	props, _ := schema["properties"].(map[string]any)
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if def, has := prop["default"]; has {
			if _, set := out[name]; !set {
				out[name] = def
			}
		}
	}
	return out
}

// PropertyNames lists the properties declared by an input schema, sorted.
func PropertyNames(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	return sortedKeys(props)
}

// Decode converts validated inputs into a typed struct using its json tags.
func Decode(inputs map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(inputs); err != nil {
		return fmt.Errorf("decode inputs: %v: %w", err, model.ErrValidation)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
