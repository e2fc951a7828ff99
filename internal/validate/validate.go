// Package validate checks package index documents against an embedded JSON
// schema of the board manager format.
package validate

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/spresense-arduino/pkgindex/internal/index"
)

//go:embed package-index.schema.json
var packageIndexSchema string

const packageIndexSchemaURL = "resource://package-index.schema.json"

var ErrInvalidIndex = errors.New("package index does not match schema")

var packageIndexValidator = jsonschema.MustCompileString(packageIndexSchemaURL, packageIndexSchema)

// Bytes validates a raw package index document.
func Bytes(raw []byte) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to parse package index: %w", err)
	}
	if err := packageIndexValidator.Validate(parsed); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}
	return nil
}

// File validates the package index at path.
func File(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read package index %s: %w", path, err)
	}
	if err := Bytes(raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Document validates an in-memory document as it would be written.
func Document(doc *index.Document) error {
	raw, err := index.Marshal(doc)
	if err != nil {
		return err
	}
	return Bytes(raw)
}

// Details returns one line per schema violation in err, or nil when err
// carries no schema details.
func Details(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	var lines []string
	for _, cause := range leaves(ve) {
		lines = append(lines, fmt.Sprintf("%s: %s", location(cause.InstanceLocation), cause.Message))
	}
	return lines
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func location(ptr string) string {
	if ptr == "" {
		return "/"
	}
	return ptr
}
