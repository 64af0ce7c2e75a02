package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formcalc/pkg/field"
	"github.com/goliatone/go-formcalc/pkg/formdef"
)

const original = `
id: claim
scopes:
  - id: claim
    fields:
      - {name: amount, type: number, value: "1"}
      - {name: total, type: number}
`

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return nil
}

func (r *recorder) Attach(scope field.ScopeID) error { return r.add("attach " + string(scope)) }
func (r *recorder) Detach(scope field.ScopeID) error { return r.add("detach " + string(scope)) }
func (r *recorder) StructuralChange(scope field.ScopeID) error {
	return r.add("structural " + string(scope))
}
func (r *recorder) FieldChanged(ref field.Ref) error { return r.add("changed " + ref.String()) }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func setup(t *testing.T) (string, *formdef.Form) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))
	doc, err := formdef.Load(path)
	require.NoError(t, err)
	form, err := formdef.New(doc)
	require.NoError(t, err)
	return path, form
}

func TestReloadNotifiesChanges(t *testing.T) {
	t.Parallel()

	path, form := setup(t)
	rec := &recorder{}
	w, err := New(path, form, rec)
	require.NoError(t, err)

	changes, err := w.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changes.Empty())
	assert.Empty(t, rec.snapshot())

	updated := `
id: claim
scopes:
  - id: claim
    fields:
      - {name: amount, type: number, value: "2"}
      - {name: total, type: number}
  - id: extra
    fields:
      - {name: fee, type: number}
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	_, err = w.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"attach extra", "changed claim/amount"}, rec.snapshot())
	assert.Equal(t, "2", form.Value(field.Ref{Scope: "claim", Key: "amount"}))
}

func TestReloadKeepsFormOnParseError(t *testing.T) {
	t.Parallel()

	path, form := setup(t)
	w, err := New(path, form, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("scopes: [broken"), 0o600))
	_, err = w.Reload(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "1", form.Value(field.Ref{Scope: "claim", Key: "amount"}))
}

func TestNewRejectsNilForm(t *testing.T) {
	t.Parallel()

	_, err := New("claim.yaml", nil, nil)
	assert.ErrorIs(t, err, errNilForm)
}

func TestRunFollowsFileEdits(t *testing.T) {
	t.Parallel()

	path, form := setup(t)
	reloaded := make(chan formdef.Changes, 4)
	w, err := New(path, form, &recorder{},
		WithDebounce(30*time.Millisecond),
		WithReloadHandler(func(changes formdef.Changes) { reloaded <- changes }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	for i := 3; ; i++ {
		body := []byte(`
id: claim
scopes:
  - id: claim
    fields:
      - {name: amount, type: number, value: "` + string(rune('0'+i%10)) + `"}
      - {name: total, type: number}
`)
		require.NoError(t, os.WriteFile(path, body, 0o600))
		select {
		case changes := <-reloaded:
			assert.Len(t, changes.Values, 1)
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
}
