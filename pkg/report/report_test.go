package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formcalc/pkg/classify"
	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/formdef"
)

const claim = `
id: claim-form
title: Travel claim
scopes:
  - id: claim
    fields:
      - {id: grandTotal, type: number}
      - {id: subtotal, type: number}
      - {id: receiptDate, type: date, label: "Receipt <i>date</i>"}
    repeat:
      fields:
        - {name: ticket_price, type: number}
      rows:
        - {values: {ticket_price: "12.5"}}
        - {values: {ticket_price: "7.5"}}
  - id: notes
    fields:
      - {name: memo, type: text}
`

func snapshot(t *testing.T) View {
	t.Helper()
	doc, err := formdef.Parse([]byte(claim))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	form, err := formdef.New(doc)
	if err != nil {
		t.Fatalf("form: %v", err)
	}
	clock := func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	e, err := engine.New(form, engine.WithClassifier(classify.New(classify.WithClock(clock))))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	e.Attach("claim")
	e.Flush(context.Background())
	return Snapshot(form, e)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	view := snapshot(t)
	want := View{
		Title: "Travel claim",
		Scopes: []ScopeView{
			{
				ID:           "claim",
				State:        "idle",
				Attached:     true,
				Armed:        true,
				Aggregate:    "grandTotal",
				Total:        "20.00",
				Contributors: 2,
				Ignored:      []string{"subtotal"},
				Fields: []FieldView{
					{Key: "grandTotal", Display: "Grand Total", Kind: "numeric", Role: "aggregate_total", Keyword: "total", Value: "20.00", ReadOnly: true, Part: "aggregate"},
					{Key: "subtotal", Display: "Subtotal", Kind: "numeric", Role: "aggregate_total", Keyword: "total", Part: "ignored"},
					{Key: "receiptDate", Display: "Receipt date", Kind: "date", Role: "past_bounded_date", Keyword: "receipt", Bounds: "max=2025-06-01"},
					{Key: "ticket_price-row1", Display: "Ticket Price", Kind: "numeric", Role: "currency_amount", Keyword: "price", Value: "12.5", Bounds: "min=0 step=0.01", Part: "contributor"},
					{Key: "ticket_price-row2", Display: "Ticket Price", Kind: "numeric", Role: "currency_amount", Keyword: "price", Value: "7.5", Bounds: "min=0 step=0.01", Part: "contributor"},
				},
			},
			{ID: "notes", State: "idle"},
		},
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderText(t *testing.T) {
	t.Parallel()

	r, err := New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := r.RenderString(FormatText, snapshot(t))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"Travel claim",
		"total grandTotal = 20.00 from 2 contributors",
		"ignored totals: subtotal",
		"currency_amount",
		"[price] <contributor> min=0 step=0.01",
		"notes (idle) not attached",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHTMLEscapes(t *testing.T) {
	t.Parallel()

	r, err := New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	view := View{Title: "<script>x</script>", Scopes: []ScopeView{{ID: "claim", Attached: true}}}
	out, err := r.RenderString(FormatHTML, view)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("expected title to be escaped:\n%s", out)
	}
	if !strings.Contains(out, `data-scope="claim"`) {
		t.Fatalf("expected scope table:\n%s", out)
	}
}

func TestRenderCustomTemplatesAndFormats(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{
		"text.tpl": {Data: []byte(`{{ report.Title }}:{{ report.Scopes|length }}`)},
	}
	r, err := New(WithTemplates(files))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := r.RenderString("", View{Title: "T", Scopes: []ScopeView{{}, {}}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "T:2" {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := r.RenderString("pdf", View{}); !errors.Is(err, errUnknownFormat) {
		t.Fatalf("expected errUnknownFormat, got %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"grandTotal":     "Grand Total",
		"line_amount-2":  "Line Amount 2",
		"expenseAmount1": "Expense Amount 1",
		"":               "",
	}
	for in, want := range cases {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
