// Package schema checks entity and graph documents against their JSON schemas
// before they are decoded, so operators get every structural problem at once.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindEntity Kind = "entity"
	KindGraph  Kind = "graph"
)

var (
	ErrUnknownKind   = errors.New("unknown document kind")
	ErrInvalid       = errors.New("document does not match schema")
	ErrEmptyDocument = errors.New("empty document")
)

//go:embed schemas/*.json
var files embed.FS

var compiled = map[Kind]*gojsonschema.Schema{}

func init() {
	for _, kind := range []Kind{KindEntity, KindGraph} {
		raw, err := files.ReadFile("schemas/" + string(kind) + ".json")
		if err != nil {
			panic(err)
		}

		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("schema %s: %v", kind, err))
		}

		compiled[kind] = s
	}
}

// ValidationError lists every schema violation of a document.
type ValidationError struct {
	Kind   Kind
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s document: %s", e.Kind, strings.Join(e.Issues, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// Validate checks a decoded document.
func Validate(kind Kind, document any) error {
	s, ok := compiled[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate %s document: %w", kind, err)
	}

	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}

	return &ValidationError{Kind: kind, Issues: issues}
}

// Decode parses JSON or YAML, validates it against the schema of kind and
// fills dest.
func Decode(kind Kind, raw []byte, dest any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrEmptyDocument
	}

	var document any
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return fmt.Errorf("failed to parse %s document: %w", kind, err)
	}

	if err := Validate(kind, document); err != nil {
		return err
	}

	normalized, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to normalize %s document: %w", kind, err)
	}

	if err := json.Unmarshal(normalized, dest); err != nil {
		return fmt.Errorf("failed to decode %s document: %w", kind, err)
	}

	return nil
}

func DecodeEntity(raw []byte) (*models.Entity, error) {
	var e models.Entity
	if err := Decode(KindEntity, raw, &e); err != nil {
		return nil, err
	}

	return &e, nil
}

func DecodeGraph(raw []byte) (*graph.Graph, error) {
	var g graph.Graph
	if err := Decode(KindGraph, raw, &g); err != nil {
		return nil, err
	}

	return &g, nil
}

// Encode writes v as YAML when path ends in .yaml or .yml and as indented
// JSON otherwise.
func Encode(path string, v any) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var generic any

		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}

		return yaml.Marshal(generic)
	default:
		return json.MarshalIndent(v, "", "  ")
	}
}

// ReadFile loads a document from disk, "-" meaning stdin.
func ReadFile(path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}

		return raw, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return raw, nil
}
