// Package report renders the classification and aggregation state of a form
// as plain text or HTML.
package report

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/field"
)

//go:embed templates/*.tpl
var embedded embed.FS

const (
	FormatText = "text"
	FormatHTML = "html"
)

var errUnknownFormat = errors.New("report: unknown format")

// Form is the read side of a form needed to describe it.
type Form interface {
	Title() string
	Scopes() []field.ScopeID
	Labels(scope field.ScopeID) field.Labels
	Value(ref field.Ref) string
	Lookup(ref field.Ref) (field.Input, bool)
	Invalid(ref field.Ref) []string
}

// View is the template model for one form.
type View struct {
	Title  string
	Scopes []ScopeView
}

// ScopeView describes one scope.
type ScopeView struct {
	ID           string
	State        string
	Attached     bool
	Armed        bool
	Aggregate    string
	Total        string
	Contributors int
	Ignored      []string
	Fields       []FieldView
}

// FieldView describes one classified field.
type FieldView struct {
	Key      string
	Display  string
	Kind     string
	Role     string
	Keyword  string
	Value    string
	Bounds   string
	ReadOnly bool
	Part     string
	Invalid  []string
}

// Snapshot builds the view for form from the engine's current state. It
// reads the engine, so it must run on the engine's owner goroutine.
func Snapshot(form Form, e *engine.Engine) View {
	view := View{Title: form.Title()}
	for _, scope := range form.Scopes() {
		view.Scopes = append(view.Scopes, scopeView(form, e, scope))
	}
	return view
}

func scopeView(form Form, e *engine.Engine, scope field.ScopeID) ScopeView {
	sv := ScopeView{ID: string(scope), State: engine.StateIdle.String()}
	state, attached := e.State(scope)
	if !attached {
		return sv
	}
	sv.Attached = true
	sv.State = state.String()

	binding, _ := e.Binding(scope)
	sv.Armed = binding.Armed
	sv.Contributors = len(binding.Contributors)
	if binding.Aggregate != nil {
		sv.Aggregate = binding.Aggregate.Key
		sv.Total = form.Value(*binding.Aggregate)
	}
	for _, ref := range binding.Ignored {
		sv.Ignored = append(sv.Ignored, ref.Key)
	}

	labels := form.Labels(scope)
	for _, info := range e.Fields(scope) {
		fv := FieldView{
			Key:     info.Ref.Key,
			Display: field.ResolveLabel(info.Input, labels),
			Kind:    info.Descriptor.Kind.String(),
			Role:    info.Role.String(),
			Keyword: info.Keyword,
			Value:   form.Value(info.Ref),
			Bounds:  formatBounds(info.Bounds),
			Invalid: form.Invalid(info.Ref),
		}
		if live, ok := form.Lookup(info.Ref); ok {
			fv.ReadOnly = live.ReadOnly
		}
		if fv.Display == "" {
			name := info.Input.Name
			if name == "" {
				name = info.Ref.Key
			}
			fv.Display = DisplayName(name)
		}
		switch {
		case binding.IsAggregate(info.Ref):
			fv.Part = "aggregate"
		case binding.IsContributor(info.Ref):
			fv.Part = "contributor"
		case containsRef(binding.Ignored, info.Ref):
			fv.Part = "ignored"
		}
		sv.Fields = append(sv.Fields, fv)
	}
	return sv
}

func containsRef(refs []field.Ref, ref field.Ref) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func formatBounds(b field.Bounds) string {
	var parts []string
	if b.Min != "" {
		parts = append(parts, "min="+b.Min)
	}
	if b.Max != "" {
		parts = append(parts, "max="+b.Max)
	}
	if b.Step != "" {
		parts = append(parts, "step="+b.Step)
	}
	return strings.Join(parts, " ")
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTemplates replaces the embedded templates. The filesystem must provide
// text.tpl and html.tpl.
func WithTemplates(files fs.FS) Option {
	return func(r *Renderer) {
		if files != nil {
			r.files = files
		}
	}
}

// Renderer executes the report templates.
type Renderer struct {
	files fs.FS
	set   *pongo2.TemplateSet
}

// New constructs a Renderer.
func New(options ...Option) (*Renderer, error) {
	r := &Renderer{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.files == nil {
		sub, err := fs.Sub(embedded, "templates")
		if err != nil {
			return nil, fmt.Errorf("report: open embedded templates: %w", err)
		}
		r.files = sub
	}
	r.set = pongo2.NewSet("formcalc-report", pongo2.NewFSLoader(r.files))
	return r, nil
}

// Render writes view to w in the requested format.
func (r *Renderer) Render(w io.Writer, format string, view View) error {
	name, err := templateName(format)
	if err != nil {
		return err
	}
	tmpl, err := r.set.FromCache(name)
	if err != nil {
		return fmt.Errorf("report: load template %q: %w", name, err)
	}
	if err := tmpl.ExecuteWriter(pongo2.Context{"report": view}, w); err != nil {
		return fmt.Errorf("report: execute template %q: %w", name, err)
	}
	return nil
}

// RenderString renders view and returns the output.
func (r *Renderer) RenderString(format string, view View) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, format, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func templateName(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return "text.tpl", nil
	case FormatHTML:
		return "html.tpl", nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}
