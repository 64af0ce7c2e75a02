package formdef

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/field"
)

const claimDoc = `
id: expense-claim
title: Expense claim
labels:
  grandTotal: "Grand <b>Total</b>"
scopes:
  - id: claim
    fields:
      - {id: employee, type: text, label: Employee}
      - {id: grandTotal, type: number}
    repeat:
      container_labels: {line: "Line amount"}
      fields:
        - {name: amount, type: number, container: line}
        - {name: receiptDate, type: date, container: line}
      rows:
        - {id: r1, values: {amount: "10.50"}}
        - {values: {amount: "4.26"}}
`

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new%d", n)
	}
}

func mustParse(t *testing.T, payload string) *Document {
	t.Helper()
	doc, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func newClaimForm(t *testing.T) *Form {
	t.Helper()
	form, err := New(mustParse(t, claimDoc), WithRowIDs(sequentialIDs()))
	if err != nil {
		t.Fatalf("new form: %v", err)
	}
	return form
}

func ref(key string) field.Ref {
	return field.Ref{Scope: "claim", Key: key}
}

func keys(inputs []field.Input) []string {
	out := make([]string, len(inputs))
	for i, in := range inputs {
		out[i] = in.Key()
	}
	return out
}

func mustLookup(t *testing.T, form *Form, key string) field.Input {
	t.Helper()
	in, ok := form.Lookup(ref(key))
	if !ok {
		t.Fatalf("field %s not found", key)
	}
	return in
}

func TestFormFieldsInDocumentOrder(t *testing.T) {
	t.Parallel()

	form := newClaimForm(t)
	if got := form.Title(); got != "Expense claim" {
		t.Fatalf("expected title, got %q", got)
	}
	if diff := cmp.Diff([]field.ScopeID{"claim"}, form.Scopes()); diff != "" {
		t.Fatalf("scopes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"r1", "row2"}, form.Rows("claim")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	inputs := form.Fields("claim")
	want := []string{
		"employee", "grandTotal",
		"amount-r1", "receiptDate-r1",
		"amount-row2", "receiptDate-row2",
	}
	if diff := cmp.Diff(want, keys(inputs)); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}
	row := inputs[2]
	if row.Name != "amount" || row.Container != "r1/line" || row.Value != "10.50" {
		t.Fatalf("unexpected row field %+v", row)
	}
	if got := form.Value(ref("amount-row2")); got != "4.26" {
		t.Fatalf("expected 4.26, got %q", got)
	}
}

func TestFormLabels(t *testing.T) {
	t.Parallel()

	form := newClaimForm(t)
	labels := form.Labels("claim")

	cases := map[string]string{
		"grandTotal":  "Grand Total",
		"employee":    "Employee",
		"amount-row2": "Line amount",
	}
	for key, want := range cases {
		if got := field.ResolveLabel(mustLookup(t, form, key), labels); got != want {
			t.Fatalf("label of %s = %q, want %q", key, got, want)
		}
	}
	if form.Labels("missing") != nil {
		t.Fatalf("expected no labels for an unknown scope")
	}
}

func TestFormDrivesEngine(t *testing.T) {
	t.Parallel()

	form := newClaimForm(t)
	e, err := engine.New(form)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	e.Attach("claim")
	results := e.Flush(context.Background())
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("expected one clean pass, got %+v", results)
	}

	if got := form.Value(ref("grandTotal")); got != "14.76" {
		t.Fatalf("expected total 14.76, got %q", got)
	}
	if !mustLookup(t, form, "grandTotal").ReadOnly {
		t.Fatalf("expected total to be read-only")
	}
	if diff := cmp.Diff(field.Bounds{Min: "0", Step: "0.01"}, mustLookup(t, form, "amount-r1").Bounds); diff != "" {
		t.Fatalf("amount bounds mismatch (-want +got):\n%s", diff)
	}
	if role, ok := e.Role(ref("receiptDate-r1")); !ok || role != field.RolePastBoundedDate {
		t.Fatalf("expected past-bounded date, got %s (%v)", role, ok)
	}

	id, err := form.AddRow("claim", map[string]string{"amount": "5.24"})
	if err != nil {
		t.Fatalf("add row: %v", err)
	}
	if id != "new1" {
		t.Fatalf("expected row id new1, got %q", id)
	}
	e.OnStructuralChange("claim")
	e.Flush(context.Background())
	if got := form.Value(ref("grandTotal")); got != "20.00" {
		t.Fatalf("expected total 20.00 after adding a row, got %q", got)
	}

	if err := form.RemoveRow("claim", "r1"); err != nil {
		t.Fatalf("remove row: %v", err)
	}
	e.OnStructuralChange("claim")
	e.Flush(context.Background())
	if got := form.Value(ref("grandTotal")); got != "9.50" {
		t.Fatalf("expected total 9.50 after removing a row, got %q", got)
	}
}

func TestFormSetValue(t *testing.T) {
	t.Parallel()

	form := newClaimForm(t)
	if err := form.SetValue(ref("amount-r1"), "7"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if got := form.Value(ref("amount-r1")); got != "7" {
		t.Fatalf("expected 7, got %q", got)
	}

	if err := form.SetValue(ref("nope"), "1"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if err := form.SetReadOnly(ref("grandTotal")); err != nil {
		t.Fatalf("set read-only: %v", err)
	}
	if err := form.SetValue(ref("grandTotal"), "99"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := form.WriteValue(ref("nope"), "1"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField from WriteValue, got %v", err)
	}
	if err := form.SetBounds(ref("nope"), field.Bounds{}); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField from SetBounds, got %v", err)
	}
}

func TestFormInvalidMessages(t *testing.T) {
	t.Parallel()

	form := newClaimForm(t)
	date := ref("receiptDate-r1")

	form.ReportInvalid(date, errors.New(" date is in the future "))
	form.ReportInvalid(date, errors.New("date is in the future"))
	form.ReportInvalid(date, nil)
	if diff := cmp.Diff([]string{"date is in the future"}, form.Invalid(date)); diff != "" {
		t.Fatalf("invalid messages mismatch (-want +got):\n%s", diff)
	}

	if err := form.SetValue(date, "2024-01-01"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if got := form.Invalid(date); len(got) != 0 {
		t.Fatalf("expected messages cleared by a new value, got %v", got)
	}
}

func TestFormRowErrors(t *testing.T) {
	t.Parallel()

	form, err := New(mustParse(t, `
id: flat
scopes:
  - id: main
    fields:
      - {name: price, type: number}
`))
	if err != nil {
		t.Fatalf("new form: %v", err)
	}

	if _, err := form.AddRow("main", nil); !errors.Is(err, ErrNoRepeat) {
		t.Fatalf("expected ErrNoRepeat, got %v", err)
	}
	if _, err := form.AddRow("other", nil); !errors.Is(err, ErrUnknownScope) {
		t.Fatalf("expected ErrUnknownScope, got %v", err)
	}
	if err := newClaimForm(t).RemoveRow("claim", "missing"); !errors.Is(err, ErrUnknownRow) {
		t.Fatalf("expected ErrUnknownRow, got %v", err)
	}
}

func TestFormAddRowDefaultIDs(t *testing.T) {
	t.Parallel()

	form, err := New(mustParse(t, claimDoc))
	if err != nil {
		t.Fatalf("new form: %v", err)
	}

	first, err := form.AddRow("claim", nil)
	if err != nil {
		t.Fatalf("add row: %v", err)
	}
	second, err := form.AddRow("claim", nil)
	if err != nil {
		t.Fatalf("add row: %v", err)
	}
	if first == "" || first == second {
		t.Fatalf("expected distinct generated ids, got %q and %q", first, second)
	}
	if got := len(form.Rows("claim")); got != 4 {
		t.Fatalf("expected 4 rows, got %d", got)
	}
}
