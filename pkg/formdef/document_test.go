package formdef

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formcalc/pkg/field"
)

func TestParseRejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no scopes": `id: x`,
		"missing scope id": `
scopes:
  - fields: [{name: a}]`,
		"duplicate scope": `
scopes:
  - id: a
  - id: a`,
		"field without key": `
scopes:
  - id: a
    fields: [{type: number}]`,
		"duplicate field": `
scopes:
  - id: a
    fields: [{name: x}, {id: x}]`,
		"empty repeat": `
scopes:
  - id: a
    repeat: {fields: []}`,
		"unknown row value": `
scopes:
  - id: a
    repeat:
      fields: [{name: amount}]
      rows: [{values: {price: "1"}}]`,
		"row collides with static field": `
scopes:
  - id: a
    fields: [{id: amount-row1}]
    repeat:
      fields: [{name: amount}]
      rows: [{}]`,
		"duplicate row": `
scopes:
  - id: a
    repeat:
      fields: [{name: amount}]
      rows: [{id: r}, {id: r}]`,
	}

	for name, payload := range cases {
		payload := payload
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(payload))
			if !errors.Is(err, ErrInvalidDocument) {
				t.Fatalf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestParseEmptyAndMalformed(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("   \n")); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}

	_, err := Parse([]byte("scopes: [unclosed"))
	if err == nil {
		t.Fatalf("expected a decode error")
	}
	if errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected a decode error, not a validation error: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "claim.yaml")
	if err := os.WriteFile(path, []byte(claimDoc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.ID != "expense-claim" {
		t.Fatalf("expected id expense-claim, got %q", doc.ID)
	}

	doc, err = LoadFile(context.Background(), path, "")
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if len(doc.Scopes) != 1 {
		t.Fatalf("expected 1 scope, got %d", len(doc.Scopes))
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func mustApply(t *testing.T, form *Form, doc *Document) Changes {
	t.Helper()
	changes, err := form.Apply(doc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return changes
}

func TestApplyReportsChanges(t *testing.T) {
	t.Parallel()

	form := newClaimForm(t)
	if err := form.WriteValue(ref("grandTotal"), "14.76"); err != nil {
		t.Fatalf("write value: %v", err)
	}
	if err := form.SetReadOnly(ref("grandTotal")); err != nil {
		t.Fatalf("set read-only: %v", err)
	}

	doc := mustParse(t, claimDoc)
	doc.Scopes[0].Repeat.Rows[0].Values["amount"] = "11.50"

	changes := mustApply(t, form, doc)
	if len(changes.Structural) != 0 {
		t.Fatalf("expected no structural changes, got %v", changes.Structural)
	}
	if diff := cmp.Diff([]field.Ref{ref("amount-r1")}, changes.Values); diff != "" {
		t.Fatalf("value changes mismatch (-want +got):\n%s", diff)
	}
	if got := form.Value(ref("amount-r1")); got != "11.50" {
		t.Fatalf("expected 11.50, got %q", got)
	}
	if got := form.Value(ref("grandTotal")); got != "14.76" {
		t.Fatalf("engine-owned value should survive reloads, got %q", got)
	}

	doc.Scopes[0].Repeat.Rows = append(doc.Scopes[0].Repeat.Rows, Row{ID: "r3", Values: map[string]string{"amount": "1"}})
	doc.Scopes = append(doc.Scopes, Scope{ID: "notes", Fields: []Field{{Name: "memo"}}})

	changes = mustApply(t, form, doc)
	if diff := cmp.Diff([]field.ScopeID{"claim"}, changes.Structural); diff != "" {
		t.Fatalf("structural changes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]field.ScopeID{"notes"}, changes.Added); diff != "" {
		t.Fatalf("added scopes mismatch (-want +got):\n%s", diff)
	}
	if len(changes.Values) != 0 {
		t.Fatalf("expected no value changes, got %v", changes.Values)
	}

	doc.Scopes = doc.Scopes[:1]
	changes = mustApply(t, form, doc)
	if diff := cmp.Diff([]field.ScopeID{"notes"}, changes.Removed); diff != "" {
		t.Fatalf("removed scopes mismatch (-want +got):\n%s", diff)
	}

	if changes := mustApply(t, form, doc); !changes.Empty() {
		t.Fatalf("expected no changes on an identical reload, got %+v", changes)
	}
}

func TestApplyDetectsLabelChanges(t *testing.T) {
	t.Parallel()

	form := newClaimForm(t)
	doc := mustParse(t, claimDoc)
	doc.Labels["grandTotal"] = "Sum"

	changes := mustApply(t, form, doc)
	if diff := cmp.Diff([]field.ScopeID{"claim"}, changes.Structural); diff != "" {
		t.Fatalf("structural changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffLeavesFormsUntouched(t *testing.T) {
	t.Parallel()

	a := newClaimForm(t)
	b := newClaimForm(t)
	if err := b.SetValue(ref("employee"), "Ada"); err != nil {
		t.Fatalf("set value: %v", err)
	}

	changes := a.Diff(b)
	if diff := cmp.Diff([]field.Ref{ref("employee")}, changes.Values); diff != "" {
		t.Fatalf("value changes mismatch (-want +got):\n%s", diff)
	}
	if got := a.Value(ref("employee")); got != "" {
		t.Fatalf("diff should not modify the receiver, got %q", got)
	}
	if !a.Diff(a).Empty() {
		t.Fatalf("expected a form to have no changes against itself")
	}
}
