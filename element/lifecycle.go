package element

import (
	"errors"
	"fmt"

	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/port"
)

// ErrFail is reported when an element returns job.Fail without an error.
var ErrFail = errors.New("element: process failed")

// Resetter is implemented by elements which keep negotiated state that has
// to be dropped before the next run.
type Resetter interface {
	Reset() error
}

// Open is the open job of el. Elements with dependency stay closed until
// stream info arrives, Process opens them later.
func Open(el Element) (job.Result, error) {
	b := el.Core()
	if b.JobMask()&JobOpen != 0 {
		return job.OK, nil
	}
	if b.Dependency() && b.State() == event.None {
		b.log.Debug("open deferred until stream info")
		return job.OK, nil
	}
	return open(el)
}

func open(el Element) (job.Result, error) {
	b := el.Core()
	b.SetState(event.Opening)
	if err := el.Open(); err != nil {
		b.SetState(event.Error)
		b.log.WithError(err).Error("open failed")
		return job.Fail, fmt.Errorf("open %s: %w", b.name, err)
	}
	b.SetJobMask((b.JobMask() | JobOpen) &^ JobClose)
	b.startMeasure(el)
	b.SetState(event.Running)
	b.log.Debug("opened")
	return job.OK, nil
}

// Process is the processing job of el. It opens el if needed and calls
// el.Process only when input is available and output can be taken by the
// consumer. Element Continue and Truncate results are reported as job.OK so
// the task moves on to the next element.
func Process(el Element) (job.Result, error) {
	b := el.Core()
	if b.JobMask()&JobOpen == 0 {
		if b.Dependency() && b.State() == event.None && !b.inputArrived() {
			return job.OK, nil
		}
		if b.State() == event.None {
			b.log.Warn("no stream info received, opening with configured defaults")
		}
		if ret, err := open(el); err != nil {
			return ret, err
		}
	}
	if b.idle() {
		return job.OK, nil
	}
	ret, err := el.Process()
	b.setLast(ret)
	b.ChangeJobMask(JobProcess)
	if err != nil && errors.Is(err, port.ErrAbort) {
		b.log.Debug("io aborted")
		return job.OK, nil
	}
	if err != nil || ret == job.Fail {
		if err == nil {
			err = ErrFail
		}
		b.SetState(event.Error)
		b.log.WithError(err).Error("process failed")
		return job.Fail, fmt.Errorf("process %s: %w", b.name, err)
	}
	if out := b.Out(); out != nil && b.measure != nil && ret != job.Continue {
		b.measure(int64(out.Acquired()))
	}
	if ret == job.Done {
		b.SetState(event.Finished)
		b.log.Debug("done")
		return job.Done, nil
	}
	return job.OK, nil
}

// Close is the close job of el. It's a no-op for elements that were never
// opened or are already closed.
func Close(el Element) (job.Result, error) {
	b := el.Core()
	mask := b.JobMask()
	if mask&JobClose != 0 {
		return job.OK, nil
	}
	if mask&JobOpen == 0 && b.State() != event.Error {
		return job.OK, nil
	}
	err := el.Close()
	b.SetJobMask((mask &^ JobOpen) | JobClose)
	if err != nil {
		b.log.WithError(err).Error("close failed")
		return job.Fail, fmt.Errorf("close %s: %w", b.name, err)
	}
	b.log.Debug("closed")
	return job.OK, nil
}

// Reset prepares el for the next run: state goes back to initial, port
// references are dropped and negotiated parameters are cleared.
func Reset(el Element) error {
	b := el.Core()
	b.ResetState()
	b.ResetPorts()
	if r, ok := el.(Resetter); ok {
		return r.Reset()
	}
	return nil
}

// Destroy closes el if it's open, closes its ports and releases remaining
// resources.
func Destroy(el Element) error {
	var errs execErrors
	if _, err := Close(el); err != nil {
		errs = append(errs, err)
	}
	b := el.Core()
	if err := b.ClosePorts(); err != nil {
		errs = append(errs, err)
	}
	if d, ok := el.(Destroyer); ok {
		if err := d.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	b.SetState(event.None)
	return errs.ret()
}

// inputArrived reports whether there may be data to process. External
// inputs are never known in advance.
func (b *Base) inputArrived() bool {
	if len(b.ins) == 0 {
		return true
	}
	for _, in := range b.ins {
		if !in.Linked() || in.Pending() {
			return true
		}
	}
	return false
}

// idle reports whether a process call would have nothing to do: a linked
// input is empty and nothing is buffered, or the consumer still holds the
// previous output.
func (b *Base) idle() bool {
	if b.LastResult() != job.Truncate {
		for _, in := range b.ins {
			if in.Linked() && !in.Pending() {
				return true
			}
		}
	}
	for _, out := range b.outs {
		if out.Busy() {
			return true
		}
	}
	return false
}
