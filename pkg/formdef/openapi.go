package formdef

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ErrOperationNotFound is returned when the requested operation is missing
// or has no request body schema.
var ErrOperationNotFound = errors.New("formdef: operation not found")

// FromOpenAPI converts the request body of an OpenAPI operation into a form
// document. An empty operationID selects the first operation, ordered by path
// and method, that declares a request body.
//
// Scalar properties become fields of a scope named after the operation. The
// first array-of-object property becomes that scope's repeating group; any
// further ones get a scope of their own.
func FromOpenAPI(ctx context.Context, data []byte, operationID string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	loader := &openapi3.Loader{Context: ctx}
	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("formdef: load openapi document: %w", err)
	}

	opID, op := findOperation(spec, strings.TrimSpace(operationID))
	if op == nil {
		if operationID == "" {
			return nil, fmt.Errorf("%w: no operation declares a request body", ErrOperationNotFound)
		}
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
	}
	schema := requestSchema(op.RequestBody)
	if schema == nil {
		return nil, fmt.Errorf("%w: %s has no request body schema", ErrOperationNotFound, opID)
	}

	doc := &Document{
		ID:     opID,
		Title:  firstNonEmpty(op.Summary, schema.Title, opID),
		Labels: make(map[string]string),
	}
	main := Scope{ID: opID}
	var extra []Scope

	for _, name := range propertyNames(schema) {
		prop := schema.Properties[name].Value
		if prop == nil {
			continue
		}
		if items := objectItems(prop); items != nil {
			repeat := repeatFromSchema(name, prop, items)
			if main.Repeat == nil {
				main.Repeat = repeat
				continue
			}
			extra = append(extra, Scope{ID: opID + "." + name, Repeat: repeat})
			continue
		}
		f := fieldFromSchema(name, prop)
		if prop.Title != "" {
			doc.Labels[name] = prop.Title
		}
		main.Fields = append(main.Fields, f)
	}

	doc.Scopes = append([]Scope{main}, extra...)
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func findOperation(spec *openapi3.T, operationID string) (string, *openapi3.Operation) {
	if spec.Paths == nil {
		return "", nil
	}
	items := spec.Paths.Map()
	paths := make([]string, 0, len(items))
	for path := range items {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := items[path]
		if item == nil {
			continue
		}
		for _, candidate := range []struct {
			method string
			op     *openapi3.Operation
		}{
			{"POST", item.Post},
			{"PUT", item.Put},
			{"PATCH", item.Patch},
			{"GET", item.Get},
			{"DELETE", item.Delete},
		} {
			if candidate.op == nil {
				continue
			}
			id := candidate.op.OperationID
			if id == "" {
				id = strings.ToLower(candidate.method) + ":" + path
			}
			if operationID != "" {
				if id == operationID {
					return id, candidate.op
				}
				continue
			}
			if requestSchema(candidate.op.RequestBody) != nil {
				return id, candidate.op
			}
		}
	}
	return "", nil
}

func requestSchema(body *openapi3.RequestBodyRef) *openapi3.Schema {
	if body == nil || body.Value == nil {
		return nil
	}
	content := body.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt != nil && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	keys := make([]string, 0, len(content))
	for key := range content {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if mt := content[key]; mt != nil && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

func propertyNames(schema *openapi3.Schema) []string {
	names := make([]string, 0, len(schema.Properties))
	for name, ref := range schema.Properties {
		if ref == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func objectItems(schema *openapi3.Schema) *openapi3.Schema {
	if schemaType(schema) != "array" || schema.Items == nil || schema.Items.Value == nil {
		return nil
	}
	items := schema.Items.Value
	if len(items.Properties) == 0 {
		return nil
	}
	return items
}

func repeatFromSchema(name string, array, items *openapi3.Schema) *Repeat {
	repeat := &Repeat{}
	if array.Title != "" {
		repeat.ContainerLabels = map[string]string{name: array.Title}
	}
	for _, prop := range propertyNames(items) {
		ps := items.Properties[prop].Value
		if ps == nil {
			continue
		}
		f := fieldFromSchema(prop, ps)
		f.ID = ""
		f.Container = name
		f.Label = ps.Title
		repeat.Fields = append(repeat.Fields, f)
	}
	rows := int(array.MinItems)
	if rows < 1 {
		rows = 1
	}
	for i := 0; i < rows; i++ {
		repeat.Rows = append(repeat.Rows, Row{})
	}
	return repeat
}

func fieldFromSchema(name string, schema *openapi3.Schema) Field {
	f := Field{
		ID:       name,
		Name:     name,
		Type:     inputType(schema),
		ReadOnly: schema.ReadOnly,
	}
	if schema.Min != nil {
		f.Min = formatFloat(*schema.Min)
	}
	if schema.Max != nil {
		f.Max = formatFloat(*schema.Max)
	}
	if schema.Default != nil {
		f.Value = fmt.Sprint(schema.Default)
	}
	return f
}

func inputType(schema *openapi3.Schema) string {
	switch schemaType(schema) {
	case "number", "integer":
		return "number"
	case "string":
		switch schema.Format {
		case "date":
			return "date"
		case "date-time":
			return "datetime-local"
		}
	}
	return "text"
}

func schemaType(schema *openapi3.Schema) string {
	if schema == nil || schema.Type == nil {
		return ""
	}
	values := schema.Type.Slice()
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
