// Package event defines lifecycle states and the notifications exchanged
// between tasks, pipelines and elements.
package event

import "fmt"

// Type is a kind of event.
type Type int

const (
	// LoadingJob is emitted by a task when its job queue ends: finished,
	// stopped or failed.
	LoadingJob Type = 0x1000
	// ChangeState is emitted on every task state transition.
	ChangeState Type = 0x2000
	// ReportInfo carries stream metadata between elements.
	ReportInfo Type = 0x3000
)

func (t Type) String() string {
	switch t {
	case LoadingJob:
		return "LOADING_JOB"
	case ChangeState:
		return "CHANGE_STATE"
	case ReportInfo:
		return "REPORT_INFO"
	}
	return fmt.Sprintf("TYPE(%#x)", int(t))
}

// State is a lifecycle state shared by tasks, pipelines and elements.
type State int

// States in the order an element normally goes through them.
const (
	None State = iota
	Initialized
	Opening
	Running
	Paused
	Stopped
	Finished
	Error
)

var stateNames = [...]string{
	None:        "NONE",
	Initialized: "INITIALIZED",
	Opening:     "OPENING",
	Running:     "RUNNING",
	Paused:      "PAUSED",
	Stopped:     "STOPPED",
	Finished:    "FINISHED",
	Error:       "ERROR",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("STATE(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s requires a reset before reuse.
func (s State) Terminal() bool {
	return s == Stopped || s == Finished || s == Error
}

// Packet is a single notification.
type Packet struct {
	// From is the name of the sender.
	From string
	Type Type
	// Sub is a State for LoadingJob and ChangeState, info.Type for
	// ReportInfo.
	Sub int
	// Payload is optional data: an info record or the error which caused
	// an Error state.
	Payload interface{}
}

// State returns Sub interpreted as a state.
func (p Packet) State() State {
	return State(p.Sub)
}

func (p Packet) String() string {
	if p.Type == ReportInfo {
		return fmt.Sprintf("%s from %s: %d", p.Type, p.From, p.Sub)
	}
	return fmt.Sprintf("%s from %s: %s", p.Type, p.From, p.State())
}

// Handler receives packets. Returned error is reported to the sender.
type Handler func(Packet) error
