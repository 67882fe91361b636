package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/egv/autotask/internal/contracts"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks the document format from a file extension. Anything
// that is not .json is treated as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

var ErrEmptyDocument = errors.New("catalog document is empty")

//go:embed catalog.schema.json
var catalogSchemaJSON string

const catalogSchemaURL = "catalog.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func catalogSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(catalogSchemaURL, strings.NewReader(catalogSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("load catalog schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(catalogSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile catalog schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks a raw YAML or JSON catalog document against the
// catalog schema. YAML is normalized through JSON first so both formats are
// held to the same rules.
func ValidateDocument(data []byte) error {
	schema, err := catalogSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse catalog document: %w", err)
	}
	if raw == nil {
		return ErrEmptyDocument
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("catalog document must use string keys: %w", err)
	}
	var value any
	if err := json.Unmarshal(normalized, &value); err != nil {
		return fmt.Errorf("normalize catalog document: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return nil
}

// Decode parses a YAML or JSON catalog document, validates it against the
// schema, and then checks the catalog invariants.
func Decode(data []byte) (contracts.Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return contracts.Catalog{}, ErrEmptyDocument
	}
	if err := ValidateDocument(data); err != nil {
		return contracts.Catalog{}, err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var catalog contracts.Catalog
	if err := decoder.Decode(&catalog); err != nil {
		if errors.Is(err, io.EOF) {
			return contracts.Catalog{}, ErrEmptyDocument
		}
		return contracts.Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	normalize(&catalog)
	if err := Validate(catalog); err != nil {
		return contracts.Catalog{}, err
	}
	return catalog, nil
}

// Encode renders a catalog in the given format. YAML output keeps scripts as
// literal blocks.
func Encode(catalog contracts.Catalog, format Format) ([]byte, error) {
	catalog = catalog.Clone()
	normalize(&catalog)

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode catalog json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML, "":
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(catalog); err != nil {
			return nil, fmt.Errorf("encode catalog yaml: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("encode catalog yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
}

func normalize(catalog *contracts.Catalog) {
	if catalog.Tasks == nil {
		catalog.Tasks = []contracts.Task{}
	}
	if catalog.Relations == nil {
		catalog.Relations = []contracts.TaskRelation{}
	}
	for i := range catalog.Tasks {
		if catalog.Tasks[i].Prerequisites == nil {
			catalog.Tasks[i].Prerequisites = []string{}
		}
	}
}
