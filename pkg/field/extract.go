package field

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Labels resolves the human-readable label associated with a field.
// ForID answers explicit label-to-field bindings; InContainer answers the
// nearest label inside the field's container.
type Labels interface {
	ForID(id string) (string, bool)
	InContainer(container string) (string, bool)
}

// Extract produces the descriptor for a field snapshot. The label is resolved
// through the explicit binding first and the container label second; when
// neither exists the label text is empty and matching degrades to the
// machine name alone.
func Extract(in Input, labels Labels) Descriptor {
	id := normalize(in.ID)
	name := normalize(in.Name)
	if name == "" {
		name = id
	}
	return Descriptor{
		ID:          id,
		MachineName: name,
		LabelText:   normalize(ResolveLabel(in, labels)),
		Kind:        in.Kind(),
	}
}

// ResolveLabel returns the label text for the input with markup stripped but
// case preserved.
func ResolveLabel(in Input, labels Labels) string {
	if labels == nil {
		return ""
	}
	if id := strings.TrimSpace(in.ID); id != "" {
		if text, ok := labels.ForID(id); ok {
			return LabelText(text)
		}
	}
	if container := strings.TrimSpace(in.Container); container != "" {
		if text, ok := labels.InContainer(container); ok {
			return LabelText(text)
		}
	}
	return ""
}

// LabelText strips markup from raw label content, keeping only the text
// nodes, and collapses whitespace.
func LabelText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.ContainsAny(trimmed, "<&") {
		trimmed = html.UnescapeString(labelSanitizer().Sanitize(trimmed))
	}
	return strings.Join(strings.Fields(trimmed), " ")
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

var (
	labelPolicyOnce sync.Once
	labelPolicy     *bluemonday.Policy
)

func labelSanitizer() *bluemonday.Policy {
	labelPolicyOnce.Do(func() {
		labelPolicy = bluemonday.StrictPolicy()
	})
	return labelPolicy
}

// LabelIndex is an in-memory Labels implementation. The first label recorded
// for a container wins, mirroring document order.
type LabelIndex struct {
	explicit  map[string]string
	container map[string]string
}

// NewLabelIndex constructs an empty index.
func NewLabelIndex() *LabelIndex {
	return &LabelIndex{
		explicit:  make(map[string]string),
		container: make(map[string]string),
	}
}

// Bind records an explicit label for the field identifier.
func (l *LabelIndex) Bind(id, text string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	l.explicit[id] = text
}

// AddContainerLabel records a label found inside container. Later labels for
// the same container are ignored.
func (l *LabelIndex) AddContainerLabel(container, text string) {
	container = strings.TrimSpace(container)
	if container == "" {
		return
	}
	if _, exists := l.container[container]; exists {
		return
	}
	l.container[container] = text
}

// ForID implements Labels.
func (l *LabelIndex) ForID(id string) (string, bool) {
	if l == nil {
		return "", false
	}
	text, ok := l.explicit[id]
	return text, ok
}

// InContainer implements Labels.
func (l *LabelIndex) InContainer(container string) (string, bool) {
	if l == nil {
		return "", false
	}
	text, ok := l.container[container]
	return text, ok
}
