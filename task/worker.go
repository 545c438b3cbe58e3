package task

import (
	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/node"
)

// loop is the worker goroutine. It sleeps until the task runs and has jobs.
func (t *Task) loop() {
	defer close(t.exited)
	for {
		if t.destroy.Load() {
			t.setState(event.None)
			t.sync.give()
			t.log.Debug("worker exited")
			return
		}
		if !t.running.Load() || !t.hasJobs() {
			t.block.take()
			continue
		}
		t.busy.Store(true)
		if err := t.changeState(event.Running, nil); err != nil {
			t.log.WithError(err).Warn("running rejected by handler")
			t.running.Store(false)
			t.busy.Store(false)
			t.sync.give()
			continue
		}
		t.sync.give()
		stopped := t.process()
		t.running.Store(false)
		t.busy.Store(false)
		// pause or stop requested after the last checkpoint
		pending := t.pause.Swap(false)
		if t.stop.Swap(false) {
			pending = true
		}
		t.emit(event.ChangeState, t.State(), nil)
		if stopped || pending {
			t.sync.give()
		}
	}
}

// process calls jobs until the queue is empty. It reports whether the
// queue was dropped by stop or failure.
func (t *Task) process() bool {
	var (
		stopped bool
		cur     = t.first()
	)
	for cur != nil {
		j := cur.Value
		ret := j.Call()
		t.metrics.Counter(JobsExecuted).Inc()
		switch ret {
		case job.Continue:
			continue
		case job.Done:
			t.metrics.Counter(JobsDone).Inc()
			next := t.remove(cur)
			if !t.hasJobs() {
				t.log.Debugf("jobs finished, last %s", j.Label)
				t.loadingJob(event.Finished, nil)
				cur = t.first()
				continue
			}
			if next == nil {
				next = t.first()
			}
			cur = next
			continue
		case job.Fail:
			t.metrics.Counter(JobsFailed).Inc()
			t.log.WithField("job", j.Label).WithError(j.Err).Error("job failed")
			if t.State() != event.Stopped {
				t.clearJobs()
				t.loadingJob(event.Error, j.Err)
				stopped = true
				cur = t.first()
				continue
			}
		}

		if t.pause.Load() {
			if t.State() != event.Error {
				t.changeState(event.Paused, nil)
				t.sync.give()
				t.wait.take()
				if !t.stop.Load() {
					t.changeState(event.Running, nil)
				}
			}
			t.pause.Store(false)
			if !t.stop.Load() {
				t.sync.give()
			}
		}
		if t.stop.Load() && t.State() != event.Error {
			t.clearJobs()
			t.loadingJob(event.Stopped, nil)
			t.stop.Store(false)
			stopped = true
			cur = t.first()
			continue
		}

		var next *node.Node[*job.Job]
		if j.Times == job.Once {
			next = t.remove(cur)
		} else {
			next = t.next(cur)
		}
		if next == nil {
			next = t.first()
		}
		cur = next
	}
	return stopped
}

func (t *Task) hasJobs() bool {
	t.jobsMu.Lock()
	defer t.jobsMu.Unlock()
	return t.jobs.Len() > 0
}

func (t *Task) first() *node.Node[*job.Job] {
	t.jobsMu.Lock()
	defer t.jobsMu.Unlock()
	return t.jobs.Front()
}

func (t *Task) next(n *node.Node[*job.Job]) *node.Node[*job.Job] {
	t.jobsMu.Lock()
	defer t.jobsMu.Unlock()
	return n.Next()
}

func (t *Task) remove(n *node.Node[*job.Job]) *node.Node[*job.Job] {
	t.jobsMu.Lock()
	defer t.jobsMu.Unlock()
	return t.jobs.Remove(n)
}

func (t *Task) clearJobs() {
	t.jobsMu.Lock()
	defer t.jobsMu.Unlock()
	t.jobs.Clear()
}
