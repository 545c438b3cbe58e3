// Package job describes units of work scheduled by a task.
package job

import "fmt"

// Result is the outcome of a single job call.
type Result int

const (
	// Fail is an unrecoverable error; the task drops all jobs.
	Fail Result = -1
	// OK means the call did its unit of work.
	OK Result = 0
	// Continue asks the task to call the same job again right away.
	Continue Result = 1
	// Done removes the job from the queue.
	Done Result = 2
	// Truncate means output was produced but more input is still buffered.
	Truncate Result = 3
)

func (r Result) String() string {
	switch r {
	case Fail:
		return "FAIL"
	case OK:
		return "OK"
	case Continue:
		return "CONTINUE"
	case Done:
		return "DONE"
	case Truncate:
		return "TRUNCATE"
	}
	return fmt.Sprintf("RESULT(%d)", int(r))
}

// Times is a repeat policy.
type Times int

const (
	// None jobs are never called.
	None Times = iota
	// Once jobs are removed after the first call.
	Once
	// Infinite jobs are called every round until they return Done or Fail.
	Infinite
)

func (t Times) String() string {
	switch t {
	case None:
		return "NONE"
	case Once:
		return "ONCE"
	case Infinite:
		return "INFINITE"
	}
	return fmt.Sprintf("TIMES(%d)", int(t))
}

// Func is a job body. Non-nil error is kept as the job error and reported
// with the task ERROR event.
type Func func() (Result, error)

// Job is a labelled function with a repeat policy.
type Job struct {
	Label string
	Fn    Func
	Times Times

	// Ret and Err hold the outcome of the last call.
	Ret Result
	Err error
}

// New returns a job with provided repeat policy.
func New(label string, times Times, fn Func) *Job {
	return &Job{Label: label, Times: times, Fn: fn}
}

// NewOnce returns a job removed after its first call.
func NewOnce(label string, fn Func) *Job {
	return New(label, Once, fn)
}

// NewInfinite returns a job called every round.
func NewInfinite(label string, fn Func) *Job {
	return New(label, Infinite, fn)
}

// Call runs job function and records the outcome. A nil function is a no-op
// which returns OK. An error without explicit Fail is promoted to Fail.
func (j *Job) Call() Result {
	if j.Fn == nil {
		j.Ret, j.Err = OK, nil
		return OK
	}
	j.Ret, j.Err = j.Fn()
	if j.Err != nil && j.Ret != Fail {
		j.Ret = Fail
	}
	return j.Ret
}

func (j *Job) String() string {
	return fmt.Sprintf("%s(%s)", j.Label, j.Times)
}
