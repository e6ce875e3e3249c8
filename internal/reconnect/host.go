package reconnect

import "actionsync/internal/events"

// HostEvents is the host-environment signal source spec section 4.6
// names ("applied only when a host window-like object is present"):
// visibility, online/resume, and freeze notifications. A server process
// with no such environment simply never constructs one and passes nil to
// New.
type HostEvents interface {
	OnVisibilityChange(fn func(hidden bool)) func()
	OnOnline(fn func()) func()
	OnResume(fn func()) func()
	OnFreeze(fn func()) func()
}

// Host is a directly-triggerable HostEvents implementation, letting
// tests (S6: host visibility) and any in-process embedder fire these
// signals without a real browser environment.
type Host struct {
	visibility events.List[func(bool)]
	online     events.List[func()]
	resume     events.List[func()]
	freeze     events.List[func()]
}

func NewHost() *Host { return &Host{} }

func (h *Host) OnVisibilityChange(fn func(hidden bool)) func() { return h.visibility.On(fn) }
func (h *Host) OnOnline(fn func()) func()                      { return h.online.On(fn) }
func (h *Host) OnResume(fn func()) func()                      { return h.resume.On(fn) }
func (h *Host) OnFreeze(fn func()) func()                      { return h.freeze.On(fn) }

// FireVisibilityChange notifies listeners of a visibilitychange event.
func (h *Host) FireVisibilityChange(hidden bool) {
	for _, fn := range h.visibility.Snapshot() {
		fn(hidden)
	}
}

// FireOnline notifies listeners of an online event.
func (h *Host) FireOnline() {
	for _, fn := range h.online.Snapshot() {
		fn()
	}
}

// FireResume notifies listeners of a resume event.
func (h *Host) FireResume() {
	for _, fn := range h.resume.Snapshot() {
		fn()
	}
}

// FireFreeze notifies listeners of a freeze event.
func (h *Host) FireFreeze() {
	for _, fn := range h.freeze.Snapshot() {
		fn()
	}
}
