package formcalc

import (
	"context"

	"github.com/goliatone/go-formcalc/pkg/classify"
	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/field"
	"github.com/goliatone/go-formcalc/pkg/formdef"
	"github.com/goliatone/go-formcalc/pkg/observer"
	"github.com/goliatone/go-formcalc/pkg/report"
)

// Form is a loaded form definition; it satisfies engine.Host.
type Form = formdef.Form

// Ref identifies one field within a scope.
type Ref = field.Ref

// Role is the classification assigned to a field.
type Role = field.Role

// Features toggles the engine behaviours.
type Features = engine.Features

// View is the report snapshot rendered by the report package.
type View = report.View

// LoadForm reads a YAML form definition or, when operationID is set, the
// request body of that OpenAPI operation.
func LoadForm(ctx context.Context, path, operationID string) (*Form, error) {
	doc, err := formdef.LoadFile(ctx, path, operationID)
	if err != nil {
		return nil, err
	}
	return formdef.New(doc)
}

// NewEngine binds an engine to form.
func NewEngine(form *Form, options ...engine.Option) (*engine.Engine, error) {
	return engine.New(form, options...)
}

// NewObserver wraps an engine so notifications can be sent from any goroutine.
func NewObserver(e *engine.Engine, options ...observer.Option) *observer.Observer {
	return observer.New(e, options...)
}

// Classify returns the role of a single field described outside any form.
func Classify(d field.Descriptor, options ...classify.Option) Role {
	return classify.New(options...).Classify(d)
}

// Calculate attaches every scope of form, runs one pass and returns the
// resulting report. It is the shortest path from a definition to totals.
func Calculate(ctx context.Context, form *Form, options ...engine.Option) (View, error) {
	e, err := engine.New(form, options...)
	if err != nil {
		return View{}, err
	}
	for _, scope := range form.Scopes() {
		e.Attach(scope)
	}
	e.Flush(ctx)
	return report.Snapshot(form, e), nil
}
