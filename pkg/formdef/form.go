package formdef

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/field"
)

var (
	ErrUnknownScope = errors.New("formdef: unknown scope")
	ErrUnknownField = errors.New("formdef: unknown field")
	ErrUnknownRow   = errors.New("formdef: unknown row")
	ErrReadOnly     = errors.New("formdef: field is read-only")
	ErrNoRepeat     = errors.New("formdef: scope has no repeating group")
)

var _ engine.Host = (*Form)(nil)

// Option customises a Form.
type Option func(*Form)

// WithRowIDs overrides the generator used for rows added through AddRow.
func WithRowIDs(next func() string) Option {
	return func(f *Form) {
		if next != nil {
			f.newRowID = next
		}
	}
}

// Form is the live state of a form definition. It implements engine.Host and
// is safe for concurrent use: prompts and file watchers edit values while the
// engine reads them from its own goroutine.
type Form struct {
	mu sync.RWMutex

	id       string
	title    string
	order    []field.ScopeID
	scopes   map[field.ScopeID]*scopeState
	values   map[field.Ref]string
	readOnly map[field.Ref]bool
	bounds   map[field.Ref]field.Bounds
	invalid  map[field.Ref][]string

	newRowID func() string
}

type scopeState struct {
	id              field.ScopeID
	bindings        map[string]string
	containerLabels map[string]string
	fields          []field.Input
	repeat          *repeatState
}

type repeatState struct {
	containerLabels map[string]string
	template        []Field
	rows            []rowState
}

type rowState struct {
	id     string
	fields []field.Input
}

// New builds a Form from a validated document.
func New(doc *Document, options ...Option) (*Form, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	f := &Form{
		newRowID: defaultRowID,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(f)
	}
	f.load(doc)
	return f, nil
}

func defaultRowID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func (f *Form) load(doc *Document) {
	f.id = strings.TrimSpace(doc.ID)
	f.title = strings.TrimSpace(doc.Title)
	f.order = make([]field.ScopeID, 0, len(doc.Scopes))
	f.scopes = make(map[field.ScopeID]*scopeState, len(doc.Scopes))
	f.values = make(map[field.Ref]string)
	f.readOnly = make(map[field.Ref]bool)
	f.bounds = make(map[field.Ref]field.Bounds)
	f.invalid = make(map[field.Ref][]string)

	for _, def := range doc.Scopes {
		st := &scopeState{
			id:              field.ScopeID(strings.TrimSpace(def.ID)),
			bindings:        make(map[string]string, len(doc.Labels)),
			containerLabels: copyLabels(def.ContainerLabels),
		}
		for id, text := range doc.Labels {
			st.bindings[strings.TrimSpace(id)] = text
		}
		for _, fd := range def.Fields {
			in := fd.input()
			if fd.Label != "" {
				if in.ID == "" {
					in.ID = in.Name
				}
				st.bindings[in.ID] = fd.Label
			}
			st.fields = append(st.fields, in)
			f.register(in.Ref(st.id), in)
		}
		if def.Repeat != nil {
			st.repeat = &repeatState{
				containerLabels: copyLabels(def.Repeat.ContainerLabels),
				template:        append([]Field(nil), def.Repeat.Fields...),
			}
			for i, row := range def.Repeat.Rows {
				f.addRow(st, rowID(row, i), row.Values)
			}
		}
		f.order = append(f.order, st.id)
		f.scopes[st.id] = st
	}
}

func (f *Form) register(ref field.Ref, in field.Input) {
	f.values[ref] = in.Value
	if in.ReadOnly {
		f.readOnly[ref] = true
	}
	if !in.Bounds.IsZero() {
		f.bounds[ref] = in.Bounds
	}
}

func (f *Form) addRow(st *scopeState, id string, values map[string]string) {
	row := rowState{id: id}
	for _, tf := range st.repeat.template {
		key := tf.Key()
		in := tf.input()
		in.ID = rowKey(key, id)
		if in.Name == "" {
			in.Name = key
		}
		in.Container = rowContainer(id, tf.Container)
		if v, ok := values[key]; ok {
			in.Value = v
		}
		if tf.Label != "" {
			st.bindings[in.ID] = tf.Label
		}
		row.fields = append(row.fields, in)
		f.register(in.Ref(st.id), in)
	}
	st.repeat.rows = append(st.repeat.rows, row)
}

func (fd Field) input() field.Input {
	return field.Input{
		ID:        strings.TrimSpace(fd.ID),
		Name:      strings.TrimSpace(fd.Name),
		Container: strings.TrimSpace(fd.Container),
		InputType: strings.TrimSpace(fd.Type),
		Value:     fd.Value,
		Bounds: field.Bounds{
			Min:  strings.TrimSpace(fd.Min),
			Max:  strings.TrimSpace(fd.Max),
			Step: strings.TrimSpace(fd.Step),
		},
		ReadOnly: fd.ReadOnly,
	}
}

func copyLabels(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[strings.TrimSpace(k)] = v
	}
	return out
}

// ID returns the document identifier.
func (f *Form) ID() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.id
}

// Title returns the document title, falling back to the id.
func (f *Form) Title() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.title != "" {
		return f.title
	}
	return f.id
}

// Scopes lists scope ids in document order.
func (f *Form) Scopes() []field.ScopeID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]field.ScopeID(nil), f.order...)
}

// HasRepeat reports whether scope declares a repeating group.
func (f *Form) HasRepeat(scope field.ScopeID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.scopes[scope]
	return ok && st.repeat != nil
}

// Rows lists the row ids of the scope's repeating group.
func (f *Form) Rows(scope field.ScopeID) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.scopes[scope]
	if !ok || st.repeat == nil {
		return nil
	}
	out := make([]string, len(st.repeat.rows))
	for i, row := range st.repeat.rows {
		out[i] = row.id
	}
	return out
}

// Fields implements engine.Source. Static fields come first, followed by
// each row's fields in row order.
func (f *Form) Fields(scope field.ScopeID) []field.Input {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.scopes[scope]
	if !ok {
		return nil
	}
	out := make([]field.Input, 0, len(st.fields))
	for _, in := range st.inputs() {
		out = append(out, f.snapshot(scope, in))
	}
	return out
}

func (st *scopeState) inputs() []field.Input {
	out := append([]field.Input(nil), st.fields...)
	if st.repeat != nil {
		for _, row := range st.repeat.rows {
			out = append(out, row.fields...)
		}
	}
	return out
}

func (f *Form) snapshot(scope field.ScopeID, in field.Input) field.Input {
	ref := in.Ref(scope)
	in.Value = f.values[ref]
	in.Bounds = f.bounds[ref]
	in.ReadOnly = f.readOnly[ref]
	return in
}

// Labels implements engine.Source. The returned index is a copy and stays
// valid after later edits.
func (f *Form) Labels(scope field.ScopeID) field.Labels {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.scopes[scope]
	if !ok {
		return nil
	}
	return st.labelIndex()
}

func (st *scopeState) labelIndex() *field.LabelIndex {
	idx := field.NewLabelIndex()
	for id, text := range st.bindings {
		idx.Bind(id, text)
	}
	for container, text := range st.containerLabels {
		idx.AddContainerLabel(container, text)
	}
	if st.repeat != nil {
		for _, row := range st.repeat.rows {
			for container, text := range st.repeat.containerLabels {
				idx.AddContainerLabel(rowContainer(row.id, container), text)
			}
		}
	}
	return idx
}

// Value implements engine.Source.
func (f *Form) Value(ref field.Ref) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[ref]
}

// Lookup returns the current snapshot of one field.
func (f *Form) Lookup(ref field.Ref) (field.Input, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.scopes[ref.Scope]
	if !ok {
		return field.Input{}, false
	}
	for _, in := range st.inputs() {
		if in.Key() == ref.Key {
			return f.snapshot(ref.Scope, in), true
		}
	}
	return field.Input{}, false
}

// WriteValue implements engine.Sink.
func (f *Form) WriteValue(ref field.Ref, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[ref]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, ref)
	}
	f.values[ref] = value
	return nil
}

// SetReadOnly implements engine.Sink.
func (f *Form) SetReadOnly(ref field.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[ref]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, ref)
	}
	f.readOnly[ref] = true
	return nil
}

// SetBounds implements engine.Sink.
func (f *Form) SetBounds(ref field.Ref, bounds field.Bounds) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[ref]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, ref)
	}
	f.bounds[ref] = bounds
	return nil
}

// ReportInvalid implements engine.Sink. Messages accumulate until the
// field is edited again through SetValue.
func (f *Form) ReportInvalid(ref field.Ref, err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[ref]; !ok {
		return
	}
	f.invalid[ref] = normalizeMessages(append(f.invalid[ref], err.Error()))
}

// Invalid returns the validation messages recorded for ref.
func (f *Form) Invalid(ref field.Ref) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.invalid[ref]...)
}

// SetValue applies a user edit. Read-only fields reject edits.
func (f *Form) SetValue(ref field.Ref, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[ref]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, ref)
	}
	if f.readOnly[ref] {
		return fmt.Errorf("%w: %s", ErrReadOnly, ref)
	}
	f.values[ref] = value
	delete(f.invalid, ref)
	return nil
}

// AddRow instantiates a new row in the scope's repeating group and returns
// its id. values seeds template fields by key. Callers notify the engine of
// the structural change.
func (f *Form) AddRow(scope field.ScopeID, values map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.scopes[scope]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	if st.repeat == nil {
		return "", fmt.Errorf("%w: %s", ErrNoRepeat, scope)
	}
	id := f.newRowID()
	for f.hasRow(st, id) {
		id = f.newRowID()
	}
	f.addRow(st, id, values)
	return id, nil
}

func (f *Form) hasRow(st *scopeState, id string) bool {
	for _, row := range st.repeat.rows {
		if row.id == id {
			return true
		}
	}
	return false
}

// RemoveRow drops a row and every value it held.
func (f *Form) RemoveRow(scope field.ScopeID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.scopes[scope]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	if st.repeat == nil {
		return fmt.Errorf("%w: %s", ErrNoRepeat, scope)
	}
	for i, row := range st.repeat.rows {
		if row.id != id {
			continue
		}
		for _, in := range row.fields {
			ref := in.Ref(scope)
			delete(f.values, ref)
			delete(f.readOnly, ref)
			delete(f.bounds, ref)
			delete(f.invalid, ref)
			delete(st.bindings, in.ID)
		}
		st.repeat.rows = append(st.repeat.rows[:i], st.repeat.rows[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s in %s", ErrUnknownRow, id, scope)
}

// Values returns a copy of every field value keyed by reference.
func (f *Form) Values() map[field.Ref]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[field.Ref]string, len(f.values))
	for ref, v := range f.values {
		out[ref] = v
	}
	return out
}

func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func sortedScopes(set map[field.ScopeID]struct{}) []field.ScopeID {
	out := make([]field.ScopeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
