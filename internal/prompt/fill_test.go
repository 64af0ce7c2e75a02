package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/field"
	"github.com/goliatone/go-formcalc/pkg/formdef"
)

type stubDriver struct {
	inputs   []string
	confirms []bool
	asked    []InputConfig
	infos    []string
	inputErr error
}

func (s *stubDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	s.asked = append(s.asked, cfg)
	if s.inputErr != nil {
		return "", s.inputErr
	}
	if len(s.inputs) == 0 {
		return cfg.Default, nil
	}
	next := s.inputs[0]
	s.inputs = s.inputs[1:]
	return next, nil
}

func (s *stubDriver) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	if len(s.confirms) == 0 {
		return cfg.Default, nil
	}
	next := s.confirms[0]
	s.confirms = s.confirms[1:]
	return next, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	return nil
}

const claimDoc = `
id: claim
scopes:
  - id: claim
    fields:
      - {id: grandTotal, type: number}
    repeat:
      fields:
        - {name: amount, type: number, label: Amount}
      rows:
        - {id: r1}
`

func newSession(t *testing.T, driver Driver) (*Session, *formdef.Form) {
	t.Helper()
	doc, err := formdef.Parse([]byte(claimDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ids := []string{"r2", "r3"}
	form, err := formdef.New(doc, formdef.WithRowIDs(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	if err != nil {
		t.Fatalf("new form: %v", err)
	}
	e, err := engine.New(form)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return NewSession(driver, form, e, nil), form
}

func TestSessionFillsRowsAndReportsTotals(t *testing.T) {
	t.Parallel()

	driver := &stubDriver{
		inputs:   []string{"10.5", "4.26"},
		confirms: []bool{true, false},
	}
	session, form := newSession(t, driver)

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := form.Value(field.Ref{Scope: "claim", Key: "grandTotal"}); got != "14.76" {
		t.Fatalf("expected total 14.76, got %q", got)
	}
	if got := form.Value(field.Ref{Scope: "claim", Key: "amount-r1"}); got != "10.50" {
		t.Fatalf("expected normalized amount 10.50, got %q", got)
	}
	if diff := cmp.Diff([]string{"r1", "r2"}, form.Rows("claim")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"grandTotal = 10.50", "grandTotal = 14.76"}, driver.infos); diff != "" {
		t.Fatalf("totals mismatch (-want +got):\n%s", diff)
	}

	if len(driver.asked) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(driver.asked))
	}
	if driver.asked[0].Message != "Amount" || driver.asked[0].Validator == nil {
		t.Fatalf("unexpected prompt %+v", driver.asked[0])
	}
}

func TestSessionStopsOnAbort(t *testing.T) {
	t.Parallel()

	driver := &stubDriver{inputErr: ErrAborted}
	session, _ := newSession(t, driver)

	if err := session.Run(context.Background()); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":            nil,
		" 12.50 ":     nil,
		"twelve":      errNotANumber,
		"1e200000000": errAmountTooLarge,
	}
	for input, want := range cases {
		if got := validateAmount(input); !errors.Is(got, want) {
			t.Fatalf("validateAmount(%q) = %v, want %v", input, got, want)
		}
	}
}
