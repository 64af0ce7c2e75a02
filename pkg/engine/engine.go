// Package engine keeps aggregate fields consistent with their contributors.
//
// The engine owns one state machine per scope (Idle → PendingRecompute →
// Idle). Notifications only mark scopes pending; Flush runs at most one pass
// per pending scope, so a burst of triggers for the same scope collapses into
// a single recomputation. Structural notifications additionally re-run
// extraction, classification and resolution before the pass.
//
// An Engine has a single logical owner and is not safe for concurrent use.
// pkg/observer provides an owner goroutine for callers that receive
// notifications from several sources.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formcalc/pkg/aggregate"
	"github.com/goliatone/go-formcalc/pkg/classify"
	"github.com/goliatone/go-formcalc/pkg/field"
)

var errNilHost = errors.New("engine: host is nil")

// State is the lifecycle state of a scope.
type State int

const (
	StateIdle State = iota
	StatePending
)

func (s State) String() string {
	if s == StatePending {
		return "pending_recompute"
	}
	return "idle"
}

// FieldInfo is the engine's view of one classified field.
type FieldInfo struct {
	Ref        field.Ref
	Input      field.Input
	Descriptor field.Descriptor
	Role       field.Role
	Keyword    string
	Bounds     field.Bounds
}

// PassResult describes one completed recomputation pass.
type PassResult struct {
	Scope    field.ScopeID
	Binding  aggregate.Binding
	Result   aggregate.Result
	Armed    bool
	Resolved bool
	Wrote    bool
	Err      error
}

type scopeState struct {
	id           field.ScopeID
	state        State
	needsResolve bool
	fields       []FieldInfo
	index        map[field.Ref]int
	binding      aggregate.Binding
	lastWritten  string
	written      bool
	readOnly     bool
}

// Engine classifies fields and recomputes aggregates for the scopes of a
// single form instance.
type Engine struct {
	host       Host
	classifier *classify.Classifier
	policy     aggregate.Policy
	features   Features
	logger     *zap.Logger
	recorder   Recorder

	scopes   map[field.ScopeID]*scopeState
	suppress map[field.Ref]struct{}
}

// New constructs an Engine bound to host.
func New(host Host, options ...Option) (*Engine, error) {
	if host == nil {
		return nil, errNilHost
	}
	e := &Engine{
		host:       host,
		classifier: classify.New(),
		policy:     aggregate.DefaultPolicy(),
		features:   DefaultFeatures(),
		logger:     zap.NewNop(),
		recorder:   noopRecorder{},
		scopes:     make(map[field.ScopeID]*scopeState),
		suppress:   make(map[field.Ref]struct{}),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e, nil
}

// Classifier returns the classifier in use.
func (e *Engine) Classifier() *classify.Classifier {
	return e.classifier
}

// Attach registers scope and schedules its first resolution and pass.
// Attaching an already known scope behaves like a structural change.
func (e *Engine) Attach(scope field.ScopeID) {
	e.OnStructuralChange(scope)
}

// Detach forgets scope and drops any pending pass for it.
func (e *Engine) Detach(scope field.ScopeID) {
	if _, ok := e.scopes[scope]; !ok {
		return
	}
	delete(e.scopes, scope)
	e.logger.Debug("scope detached", zap.String("scope", string(scope)))
}

// Scopes lists the attached scopes in sorted order.
func (e *Engine) Scopes() []field.ScopeID {
	out := make([]field.ScopeID, 0, len(e.scopes))
	for id := range e.scopes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OnStructuralChange records that fields were added to or removed from
// scope. Unknown scopes are attached.
func (e *Engine) OnStructuralChange(scope field.ScopeID) {
	st, ok := e.scopes[scope]
	if !ok {
		st = &scopeState{id: scope, index: make(map[field.Ref]int)}
		e.scopes[scope] = st
		e.logger.Debug("scope attached", zap.String("scope", string(scope)))
	}
	e.recorder.TriggerReceived(scope, true)
	st.needsResolve = true
	e.markPending(st)
}

// OnFieldChanged records a value change on ref. Changes to contributors
// schedule a pass; changes to past-bounded dates are validated immediately.
// Changes to aggregates, ignored candidates and unclassified fields are
// dropped, as are changes echoed back while the engine writes a field.
func (e *Engine) OnFieldChanged(ref field.Ref) {
	if _, echoed := e.suppress[ref]; echoed {
		e.logger.Debug("dropping echoed change", zap.Stringer("field", ref))
		return
	}
	st, ok := e.scopes[ref.Scope]
	if !ok {
		return
	}
	if st.needsResolve {
		e.recorder.TriggerReceived(st.id, false)
		e.markPending(st)
		return
	}
	idx, known := st.index[ref]
	if !known {
		// A field we never enumerated; treat it as a structural change.
		e.OnStructuralChange(ref.Scope)
		return
	}
	info := st.fields[idx]

	switch info.Role {
	case field.RoleCurrencyAmount:
		if !st.binding.IsContributor(ref) {
			return
		}
		if e.features.ClampNegative && info.Bounds.Min == "0" {
			if clamped, changed := aggregate.ClampNegative(e.host.Value(ref)); changed {
				if err := e.write(ref, clamped); err != nil {
					e.logger.Warn("clamp negative failed", zap.Stringer("field", ref), zap.Error(err))
				}
			}
		}
		if !e.features.Calculations {
			return
		}
		e.recorder.TriggerReceived(st.id, false)
		e.markPending(st)
	case field.RolePastBoundedDate:
		if e.features.DateValidation {
			e.validateDate(st, info)
		}
	}
}

// OnFieldBlur formats currency contributors to two fractional digits when
// the field loses focus.
func (e *Engine) OnFieldBlur(ref field.Ref) {
	if !e.features.CurrencyFormatting {
		return
	}
	st, ok := e.scopes[ref.Scope]
	if !ok || st.needsResolve {
		return
	}
	idx, known := st.index[ref]
	if !known || st.fields[idx].Role != field.RoleCurrencyAmount {
		return
	}
	current := e.host.Value(ref)
	formatted, ok := aggregate.FormatAmount(current)
	if !ok || formatted == current {
		return
	}
	if err := e.write(ref, formatted); err != nil {
		e.logger.Warn("format amount failed", zap.Stringer("field", ref), zap.Error(err))
		return
	}
	if e.features.Calculations && st.binding.IsContributor(ref) {
		e.recorder.TriggerReceived(st.id, false)
		e.markPending(st)
	}
}

// Pending reports whether any scope awaits a pass.
func (e *Engine) Pending() bool {
	for _, st := range e.scopes {
		if st.state == StatePending {
			return true
		}
	}
	return false
}

// State returns the lifecycle state of scope.
func (e *Engine) State(scope field.ScopeID) (State, bool) {
	st, ok := e.scopes[scope]
	if !ok {
		return StateIdle, false
	}
	return st.state, true
}

// Binding returns the current binding of scope. The binding is only
// meaningful once the scope has been flushed after a structural change.
func (e *Engine) Binding(scope field.ScopeID) (aggregate.Binding, bool) {
	st, ok := e.scopes[scope]
	if !ok {
		return aggregate.Binding{}, false
	}
	return st.binding, true
}

// Fields returns the classified fields of scope in document order.
func (e *Engine) Fields(scope field.ScopeID) []FieldInfo {
	st, ok := e.scopes[scope]
	if !ok || len(st.fields) == 0 {
		return nil
	}
	out := make([]FieldInfo, len(st.fields))
	copy(out, st.fields)
	return out
}

// Role returns the role of ref as of the last resolution.
func (e *Engine) Role(ref field.Ref) (field.Role, bool) {
	st, ok := e.scopes[ref.Scope]
	if !ok {
		return field.RoleUnclassified, false
	}
	idx, ok := st.index[ref]
	if !ok {
		return field.RoleUnclassified, false
	}
	return st.fields[idx].Role, true
}

// Flush runs one pass for every pending scope, in scope id order. A pass
// that has started always runs to completion; ctx is only checked between
// scopes.
func (e *Engine) Flush(ctx context.Context) []PassResult {
	var pending []field.ScopeID
	for id, st := range e.scopes {
		if st.state == StatePending {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	results := make([]PassResult, 0, len(pending))
	for _, id := range pending {
		if ctx != nil && ctx.Err() != nil {
			break
		}
		st, ok := e.scopes[id]
		if !ok {
			continue
		}
		results = append(results, e.pass(st))
	}
	return results
}

func (e *Engine) markPending(st *scopeState) {
	if st.state == StatePending {
		e.recorder.TriggerCoalesced(st.id)
		return
	}
	st.state = StatePending
}

func (e *Engine) pass(st *scopeState) PassResult {
	started := time.Now()
	out := PassResult{Scope: st.id}
	defer func() {
		st.state = StateIdle
		e.recorder.PassCompleted(st.id, out.Armed, out.Wrote, time.Since(started))
	}()

	var errs []error
	if st.needsResolve {
		if err := e.resolve(st); err != nil {
			errs = append(errs, err)
		}
		out.Resolved = true
	}
	out.Binding = st.binding

	if e.features.Calculations {
		result, armed := aggregate.Recompute(st.binding, e.host)
		out.Armed = armed
		if armed {
			out.Result = result
			wrote, err := e.apply(st, result)
			out.Wrote = wrote
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	out.Err = errors.Join(errs...)
	if out.Err != nil {
		e.logger.Error("recompute pass failed", zap.String("scope", string(st.id)), zap.Error(out.Err))
	}
	return out
}

// resolve re-extracts and re-classifies every field of the scope and
// rebuilds the binding.
func (e *Engine) resolve(st *scopeState) error {
	inputs := e.host.Fields(st.id)
	labels := e.host.Labels(st.id)

	previous := st.index
	previousFields := st.fields
	st.fields = make([]FieldInfo, 0, len(inputs))
	st.index = make(map[field.Ref]int, len(inputs))
	classified := make([]aggregate.Classified, 0, len(inputs))

	var errs []error
	for _, in := range inputs {
		ref := in.Ref(st.id)
		if ref.Key == "" {
			continue
		}
		if _, dup := st.index[ref]; dup {
			continue
		}
		descriptor := field.Extract(in, labels)
		info := FieldInfo{
			Ref:        ref,
			Input:      in,
			Descriptor: descriptor,
			Bounds:     in.Bounds,
		}
		if idx, seen := previous[ref]; seen && previousFields[idx].Descriptor == descriptor {
			info.Role = previousFields[idx].Role
			info.Keyword = previousFields[idx].Keyword
		} else {
			match := e.classifier.Match(descriptor)
			info.Role = match.Role
			info.Keyword = match.Keyword
			if seen && previousFields[idx].Role != match.Role {
				e.logger.Debug("field reclassified",
					zap.Stringer("field", ref),
					zap.Stringer("from", previousFields[idx].Role),
					zap.Stringer("to", match.Role))
			}
		}

		if bounds := e.boundsFor(info); bounds != in.Bounds {
			if err := e.host.SetBounds(ref, bounds); err != nil {
				errs = append(errs, fmt.Errorf("engine: set bounds %s: %w", ref, err))
			} else {
				info.Bounds = bounds
			}
		}

		st.index[ref] = len(st.fields)
		st.fields = append(st.fields, info)
		classified = append(classified, aggregate.Classified{Ref: ref, Role: info.Role})
	}

	binding := aggregate.Resolve(st.id, classified, e.policy)
	if !sameAggregate(st.binding, binding) {
		st.written = false
		st.readOnly = false
		st.lastWritten = ""
	}
	st.binding = binding
	st.needsResolve = false

	e.logger.Debug("scope resolved",
		zap.String("scope", string(st.id)),
		zap.Int("fields", len(st.fields)),
		zap.Int("contributors", len(binding.Contributors)),
		zap.Bool("armed", binding.Armed))
	if len(binding.Ignored) > 0 {
		e.logger.Info("multiple aggregate candidates, first in document order wins",
			zap.String("scope", string(st.id)),
			zap.Stringer("aggregate", binding.Aggregate),
			zap.Int("ignored", len(binding.Ignored)))
	}
	return errors.Join(errs...)
}

func (e *Engine) boundsFor(info FieldInfo) field.Bounds {
	switch info.Role {
	case field.RoleCurrencyAmount:
		if !e.features.CurrencyFormatting {
			return info.Input.Bounds
		}
	case field.RolePastBoundedDate:
		if !e.features.DateValidation {
			return info.Input.Bounds
		}
	}
	return e.classifier.Bounds(info.Role, info.Input.Bounds)
}

// apply writes the result into the aggregate field unless the field already
// holds it, and marks the field read-only after the first write.
func (e *Engine) apply(st *scopeState, result aggregate.Result) (bool, error) {
	ref := result.Aggregate
	if st.written && st.readOnly && st.lastWritten == result.Text && e.host.Value(ref) == result.Text {
		return false, nil
	}
	if err := e.write(ref, result.Text); err != nil {
		return false, fmt.Errorf("engine: write aggregate %s: %w", ref, err)
	}
	st.written = true
	st.lastWritten = result.Text
	if !st.readOnly && result.ReadOnly {
		if err := e.host.SetReadOnly(ref); err != nil {
			return true, fmt.Errorf("engine: set read-only %s: %w", ref, err)
		}
		st.readOnly = true
	}
	e.logger.Debug("aggregate written",
		zap.Stringer("field", ref),
		zap.String("value", result.Text),
		zap.Int("contributors", result.Contributors))
	return true, nil
}

// write updates a field while suppressing the change notification the host
// may echo back for it.
func (e *Engine) write(ref field.Ref, value string) error {
	e.suppress[ref] = struct{}{}
	defer delete(e.suppress, ref)
	return e.host.WriteValue(ref, value)
}

func (e *Engine) validateDate(st *scopeState, info FieldInfo) {
	err := classify.ValidateDate(e.host.Value(info.Ref), info.Bounds.Max)
	if err == nil {
		return
	}
	e.recorder.ValidationFailed(st.id)
	e.logger.Info("date after bound", zap.Stringer("field", info.Ref), zap.String("max", info.Bounds.Max))
	e.host.ReportInvalid(info.Ref, err)
	if werr := e.write(info.Ref, ""); werr != nil {
		e.logger.Warn("clear invalid date failed", zap.Stringer("field", info.Ref), zap.Error(werr))
	}
}

func sameAggregate(a, b aggregate.Binding) bool {
	switch {
	case a.Aggregate == nil && b.Aggregate == nil:
		return true
	case a.Aggregate == nil || b.Aggregate == nil:
		return false
	default:
		return *a.Aggregate == *b.Aggregate
	}
}
