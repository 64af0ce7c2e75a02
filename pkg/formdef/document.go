// Package formdef loads form definitions and exposes them as an in-memory
// form that satisfies the engine host contract.
//
// Definitions come from YAML documents or from the request body of an
// OpenAPI operation. A definition is a list of scopes; each scope carries
// static fields and, optionally, a repeating group whose rows are
// instantiated inside the same scope.
package formdef

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidDocument wraps every validation failure reported by Parse.
	ErrInvalidDocument = errors.New("formdef: invalid document")
	// ErrEmptyDocument is returned when the payload holds no data.
	ErrEmptyDocument = errors.New("formdef: document payload is empty")
)

// Document is the serialised form definition.
type Document struct {
	ID     string            `yaml:"id"`
	Title  string            `yaml:"title,omitempty"`
	Labels map[string]string `yaml:"labels,omitempty"`
	Scopes []Scope           `yaml:"scopes"`
}

// Scope groups the fields that aggregate together.
type Scope struct {
	ID              string            `yaml:"id"`
	ContainerLabels map[string]string `yaml:"container_labels,omitempty"`
	Fields          []Field           `yaml:"fields,omitempty"`
	Repeat          *Repeat           `yaml:"repeat,omitempty"`
}

// Repeat describes a repeating group: a template of fields and the rows
// instantiated from it.
type Repeat struct {
	ContainerLabels map[string]string `yaml:"container_labels,omitempty"`
	Fields          []Field           `yaml:"fields"`
	Rows            []Row             `yaml:"rows,omitempty"`
}

// Row is one instance of a repeating group. Values are keyed by template
// field key.
type Row struct {
	ID     string            `yaml:"id,omitempty"`
	Values map[string]string `yaml:"values,omitempty"`
}

// Field declares one input.
type Field struct {
	ID        string `yaml:"id,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Label     string `yaml:"label,omitempty"`
	Container string `yaml:"container,omitempty"`
	Type      string `yaml:"type,omitempty"`
	Value     string `yaml:"value,omitempty"`
	Min       string `yaml:"min,omitempty"`
	Max       string `yaml:"max,omitempty"`
	Step      string `yaml:"step,omitempty"`
	ReadOnly  bool   `yaml:"readonly,omitempty"`
}

// Key returns the identifier the field is referenced by.
func (f Field) Key() string {
	if id := strings.TrimSpace(f.ID); id != "" {
		return id
	}
	return strings.TrimSpace(f.Name)
}

// Parse decodes and validates a YAML (or JSON) form document.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("formdef: decode document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses the document stored at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("formdef: read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Decode accepts either a form document or an OpenAPI document. OpenAPI
// payloads are converted through FromOpenAPI using operationID.
func Decode(ctx context.Context, data []byte, operationID string) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	var probe struct {
		OpenAPI string `yaml:"openapi"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("formdef: decode document: %w", err)
	}
	if strings.TrimSpace(probe.OpenAPI) != "" {
		return FromOpenAPI(ctx, data, operationID)
	}
	return Parse(data)
}

// LoadFile reads path and decodes it with Decode.
func LoadFile(ctx context.Context, path, operationID string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("formdef: read %s: %w", path, err)
	}
	doc, err := Decode(ctx, data, operationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Validate checks identifiers: scope ids must be present and unique, field
// keys must be present and unique within their scope (row fields included).
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if len(d.Scopes) == 0 {
		return fmt.Errorf("%w: no scopes defined", ErrInvalidDocument)
	}

	scopes := make(map[string]struct{}, len(d.Scopes))
	for i, scope := range d.Scopes {
		id := strings.TrimSpace(scope.ID)
		if id == "" {
			return fmt.Errorf("%w: scope %d has no id", ErrInvalidDocument, i)
		}
		if _, dup := scopes[id]; dup {
			return fmt.Errorf("%w: duplicate scope %q", ErrInvalidDocument, id)
		}
		scopes[id] = struct{}{}

		keys := make(map[string]struct{}, len(scope.Fields))
		for j, f := range scope.Fields {
			key := f.Key()
			if key == "" {
				return fmt.Errorf("%w: scope %q field %d has neither id nor name", ErrInvalidDocument, id, j)
			}
			if _, dup := keys[key]; dup {
				return fmt.Errorf("%w: scope %q duplicate field %q", ErrInvalidDocument, id, key)
			}
			keys[key] = struct{}{}
		}
		if scope.Repeat != nil {
			if err := scope.Repeat.validate(id, keys); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Repeat) validate(scope string, static map[string]struct{}) error {
	if len(r.Fields) == 0 {
		return fmt.Errorf("%w: scope %q repeating group has no fields", ErrInvalidDocument, scope)
	}
	template := make(map[string]struct{}, len(r.Fields))
	for j, f := range r.Fields {
		key := f.Key()
		if key == "" {
			return fmt.Errorf("%w: scope %q repeat field %d has neither id nor name", ErrInvalidDocument, scope, j)
		}
		if _, dup := template[key]; dup {
			return fmt.Errorf("%w: scope %q duplicate repeat field %q", ErrInvalidDocument, scope, key)
		}
		template[key] = struct{}{}
	}

	rows := make(map[string]struct{}, len(r.Rows))
	for i, row := range r.Rows {
		id := rowID(row, i)
		if _, dup := rows[id]; dup {
			return fmt.Errorf("%w: scope %q duplicate row %q", ErrInvalidDocument, scope, id)
		}
		rows[id] = struct{}{}
		for key := range template {
			if _, clash := static[rowKey(key, id)]; clash {
				return fmt.Errorf("%w: scope %q row field %q collides with a static field", ErrInvalidDocument, scope, rowKey(key, id))
			}
		}
		for key := range row.Values {
			if _, ok := template[key]; !ok {
				return fmt.Errorf("%w: scope %q row %q sets unknown field %q", ErrInvalidDocument, scope, id, key)
			}
		}
	}
	return nil
}

func rowID(row Row, index int) string {
	if id := strings.TrimSpace(row.ID); id != "" {
		return id
	}
	return fmt.Sprintf("row%d", index+1)
}

func rowKey(templateKey, rowID string) string {
	return templateKey + "-" + rowID
}

func rowContainer(rowID, container string) string {
	if container == "" {
		return rowID
	}
	return rowID + "/" + container
}
