package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/richinex/scribe/model"
)

//go:embed schema.json
var schemaJSON string

// Validate checks decoded settings against the JSON schema and the
// cross-field rules the schema cannot express.
func Validate(s Settings) error {
	if err := validateSchema(s); err != nil {
		return err
	}
	if s.Retrieval.ChunkOverlap >= s.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap %d must be below retrieval.chunk_size %d: %w",
			s.Retrieval.ChunkOverlap, s.Retrieval.ChunkSize, model.ErrConfiguration)
	}
	if err := s.Eval.Weights.Validate(); err != nil {
		return fmt.Errorf("eval.weights: %w", err)
	}
	return nil
}

func validateSchema(settings any) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	documentLoader := gojsonschema.NewGoLoader(settings)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validate config schema: %v: %w", err, model.ErrConfiguration)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)

	return fmt.Errorf("config schema validation failed: %s: %w", strings.Join(errs, "; "), model.ErrConfiguration)
}
