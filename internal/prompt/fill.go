package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goliatone/go-formcalc/pkg/aggregate"
	"github.com/goliatone/go-formcalc/pkg/classify"
	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/field"
	"github.com/goliatone/go-formcalc/pkg/formdef"
	"github.com/goliatone/go-formcalc/pkg/report"
)

var (
	errNotANumber     = errors.New("enter a number, e.g. 12.50")
	errAmountTooLarge = errors.New("amount is too large")
)

// Session walks the user through the editable fields of a form. It owns the
// engine for its whole lifetime.
type Session struct {
	driver Driver
	form   *formdef.Form
	engine *engine.Engine
	logger *zap.Logger

	// MaxRows caps the rows a user may add per repeating group.
	MaxRows int
}

// NewSession prepares a fill session. The engine must be bound to form.
func NewSession(driver Driver, form *formdef.Form, e *engine.Engine, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		driver:  driver,
		form:    form,
		engine:  e,
		logger:  logger,
		MaxRows: 50,
	}
}

// Run attaches every scope, prompts for each editable field and offers to add
// rows to repeating groups. It stops at the first driver error; ErrAborted
// reports a user interrupt.
func (s *Session) Run(ctx context.Context) error {
	scopes := s.form.Scopes()
	for _, scope := range scopes {
		s.engine.Attach(scope)
	}
	s.engine.Flush(ctx)

	for _, scope := range scopes {
		if err := s.fillScope(ctx, scope, nil); err != nil {
			return err
		}
		if !s.form.HasRepeat(scope) {
			continue
		}
		for added := 0; added < s.MaxRows; added++ {
			more, err := s.driver.Confirm(ctx, ConfirmConfig{
				Message: fmt.Sprintf("Add another row to %s?", scope),
			})
			if err != nil {
				return err
			}
			if !more {
				break
			}
			id, err := s.form.AddRow(scope, nil)
			if err != nil {
				return err
			}
			s.engine.OnStructuralChange(scope)
			s.engine.Flush(ctx)
			suffix := "-" + id
			if err := s.fillScope(ctx, scope, func(key string) bool { return strings.HasSuffix(key, suffix) }); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillScope prompts for the editable fields of scope accepted by only (all
// when nil).
func (s *Session) fillScope(ctx context.Context, scope field.ScopeID, only func(key string) bool) error {
	labels := s.form.Labels(scope)
	for _, info := range s.engine.Fields(scope) {
		if only != nil && !only(info.Ref.Key) {
			continue
		}
		if !editable(info) {
			continue
		}
		current, ok := s.form.Lookup(info.Ref)
		if !ok || current.ReadOnly {
			continue
		}
		if err := s.ask(ctx, info, current, labels); err != nil {
			return err
		}
	}
	return nil
}

func editable(info engine.FieldInfo) bool {
	switch info.Role {
	case field.RoleCurrencyAmount, field.RolePastBoundedDate, field.RolePlainText:
		return true
	case field.RoleUnclassified:
		return info.Descriptor.HasSignal()
	default:
		return false
	}
}

func (s *Session) ask(ctx context.Context, info engine.FieldInfo, current field.Input, labels field.Labels) error {
	message := field.ResolveLabel(current, labels)
	if message == "" {
		message = report.DisplayName(current.Name)
	}
	if message == "" {
		message = report.DisplayName(info.Ref.Key)
	}

	cfg := InputConfig{
		Message: message,
		Default: current.Value,
	}
	switch info.Role {
	case field.RoleCurrencyAmount:
		cfg.Help = "Amount, rounded to cents on completion."
		cfg.Validator = validateAmount
	case field.RolePastBoundedDate:
		bound := current.Bounds.Max
		cfg.Help = fmt.Sprintf("Date as %s, no later than %s.", classify.DateLayout, bound)
		cfg.Validator = func(value string) error {
			return classify.ValidateDate(value, bound)
		}
	}

	answer, err := s.driver.Input(ctx, cfg)
	if err != nil {
		return err
	}
	if answer != current.Value {
		if err := s.form.SetValue(info.Ref, answer); err != nil {
			return err
		}
		s.engine.OnFieldChanged(info.Ref)
	}
	s.engine.OnFieldBlur(info.Ref)

	for _, res := range s.engine.Flush(ctx) {
		if res.Err != nil {
			s.logger.Warn("recompute failed", zap.String("scope", string(res.Scope)), zap.Error(res.Err))
		}
		if res.Armed && res.Wrote {
			msg := fmt.Sprintf("%s = %s", res.Result.Aggregate.Key, res.Result.Text)
			if err := s.driver.Info(ctx, msg); err != nil {
				return err
			}
		}
	}
	for _, problem := range s.form.Invalid(info.Ref) {
		if err := s.driver.Info(ctx, fmt.Sprintf("%s: %s", message, problem)); err != nil {
			return err
		}
	}
	return nil
}

func validateAmount(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return errNotANumber
	}
	if !aggregate.InRange(amount) {
		return errAmountTooLarge
	}
	return nil
}
