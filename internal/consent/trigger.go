package consent

import "sync/atomic"

// CaptureTrigger is the single-slot signal an external actor (the Control
// API or an operator action) uses to ask the Video Worker to capture the
// current frame for consent (§4.8: "triggered by an external signal").
// Arming a new request while one is already pending overwrites it, matching
// the spec's "flag" semantics: there is one pending capture, not a queue of
// them.
type CaptureTrigger struct {
	pending atomic.Pointer[string]
}

// Request arms the trigger with speakerName, which may be empty (the
// capture is then filed under "unknown").
func (t *CaptureTrigger) Request(speakerName string) {
	name := speakerName
	t.pending.Store(&name)
}

// Consume clears and returns the pending request, if any. Called once per
// Video Worker iteration, per §4.5 ("consults a consent capture flag ...
// clears the flag").
func (t *CaptureTrigger) Consume() (string, bool) {
	p := t.pending.Swap(nil)
	if p == nil {
		return "", false
	}
	return *p, true
}
