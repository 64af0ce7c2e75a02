package engine

import (
	"time"

	"github.com/goliatone/go-formcalc/pkg/field"
)

// Recorder observes engine activity. Implementations must be cheap; they are
// called inline on the owner goroutine.
type Recorder interface {
	TriggerReceived(scope field.ScopeID, structural bool)
	TriggerCoalesced(scope field.ScopeID)
	PassCompleted(scope field.ScopeID, armed, wrote bool, elapsed time.Duration)
	ValidationFailed(scope field.ScopeID)
}

type noopRecorder struct{}

func (noopRecorder) TriggerReceived(field.ScopeID, bool)                     {}
func (noopRecorder) TriggerCoalesced(field.ScopeID)                          {}
func (noopRecorder) PassCompleted(field.ScopeID, bool, bool, time.Duration) {}
func (noopRecorder) ValidationFailed(field.ScopeID)                          {}
