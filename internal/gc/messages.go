package gc

import (
	"time"

	"github.com/teresy/marathon/internal/state"
)

// message is the closed set of inputs the coordinator mailbox accepts.
type message interface {
	isMessage()
}

// runGCMsg triggers a collection cycle.
type runGCMsg struct{}

// wakeUpMsg is the internal timer firing at the end of a resting period.
type wakeUpMsg struct{}

// scanDoneMsg carries the scan task's result back to the coordinator.
type scanDoneMsg struct {
	result   state.ScanResult
	duration time.Duration
}

// compactDoneMsg reports that the compact task has finished.
type compactDoneMsg struct {
	duration time.Duration
	counts   state.Counts
}

// storeAppMsg announces a stored app. A nil version announces the app
// itself rather than one of its versions.
type storeAppMsg struct {
	id      state.PathID
	version *state.Version
	handle  *Handle
}

// storePodMsg announces a stored pod, shaped like storeAppMsg.
type storePodMsg struct {
	id      state.PathID
	version *state.Version
	handle  *Handle
}

// storeRootMsg announces a stored root snapshot.
type storeRootMsg struct {
	root   state.RootSnapshot
	handle *Handle
}

// storePlanMsg announces a stored deployment plan.
type storePlanMsg struct {
	plan   state.Plan
	handle *Handle
}

func (runGCMsg) isMessage()       {}
func (wakeUpMsg) isMessage()      {}
func (scanDoneMsg) isMessage()    {}
func (compactDoneMsg) isMessage() {}
func (storeAppMsg) isMessage()    {}
func (storePodMsg) isMessage()    {}
func (storeRootMsg) isMessage()   {}
func (storePlanMsg) isMessage()   {}

// resolveMessage acknowledges the writer behind a store message, if any.
// Used when a message cannot reach the coordinator loop.
func resolveMessage(msg message) {
	switch m := msg.(type) {
	case storeAppMsg:
		m.handle.resolve()
	case storePodMsg:
		m.handle.resolve()
	case storeRootMsg:
		m.handle.resolve()
	case storePlanMsg:
		m.handle.resolve()
	}
}
