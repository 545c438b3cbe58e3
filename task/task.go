// Package task implements a cooperative job scheduler running on a single
// goroutine.
//
// A task owns a queue of jobs and calls them round-robin. Once jobs are
// removed after their first call, infinite jobs are called every round until
// they return Done or Fail. Control calls (Run, Pause, Resume, Stop) only set
// flags: the worker observes them at the checkpoint after each job call and
// acknowledges through a sync semaphore. Control calls give up with
// ErrTimeout when the worker does not acknowledge in time.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"

	"github.com/dudk/gmf/config"
	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/log"
	"github.com/dudk/gmf/node"
)

var (
	// ErrNotSupported is returned when a control call makes no sense in
	// the current state, e.g. Resume of a running task.
	ErrNotSupported = errors.New("task: not supported")
	// ErrInvalidState is returned when the worker is gone.
	ErrInvalidState = errors.New("task: invalid state")
	// ErrTimeout is returned when the worker did not acknowledge a
	// control call in time.
	ErrTimeout = errors.New("task: timeout")
	// ErrInvalidArg is returned for nil jobs.
	ErrInvalidArg = errors.New("task: invalid argument")
)

// Metric keys of a task registry.
const (
	JobsExecuted = metricz.Key("task.jobs.executed")
	JobsDone     = metricz.Key("task.jobs.done")
	JobsFailed   = metricz.Key("task.jobs.failed")
	CurrentState = metricz.Key("task.state")
)

// Task is a single-goroutine job scheduler.
type Task struct {
	id      string
	name    string
	log     logrus.FieldLogger
	clock   clockz.Clock
	metrics *metricz.Registry

	timeout atomic.Int64

	jobsMu sync.Mutex
	jobs   node.List[*job.Job]

	stateMu sync.RWMutex
	state   event.State
	handler event.Handler

	// block wakes idle worker, wait wakes paused worker, sync acknowledges
	// control calls.
	block semaphore
	wait  semaphore
	sync  semaphore

	pause   atomic.Bool
	stop    atomic.Bool
	destroy atomic.Bool
	running atomic.Bool
	busy    atomic.Bool

	apiMu  sync.Mutex
	closed bool
	exited chan struct{}
}

// Option configures a task.
type Option func(*Task) error

// WithName sets task name used in events and logs.
func WithName(name string) Option {
	return func(t *Task) error {
		t.name = name
		return nil
	}
}

// WithLogger sets logger to task.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Task) error {
		t.log = l
		return nil
	}
}

// WithClock sets clock used for control timeouts.
func WithClock(c clockz.Clock) Option {
	return func(t *Task) error {
		t.clock = c
		return nil
	}
}

// WithTimeout sets how long control calls wait for the worker.
func WithTimeout(d time.Duration) Option {
	return func(t *Task) error {
		if d <= 0 {
			return fmt.Errorf("%w: timeout %v", ErrInvalidArg, d)
		}
		t.timeout.Store(int64(d))
		return nil
	}
}

// WithEventFunc sets event handler.
func WithEventFunc(h event.Handler) Option {
	return func(t *Task) error {
		t.handler = h
		return nil
	}
}

// WithMetrics sets registry for task counters.
func WithMetrics(r *metricz.Registry) Option {
	return func(t *Task) error {
		t.metrics = r
		return nil
	}
}

// New creates a task and starts its worker. The task is in Initialized
// state and waits for jobs and Run.
func New(options ...Option) (*Task, error) {
	t := &Task{
		id:      xid.New().String(),
		clock:   clockz.RealClock,
		metrics: metricz.New(),
		state:   event.Initialized,
		block:   newSemaphore(),
		wait:    newSemaphore(),
		sync:    newSemaphore(),
		exited:  make(chan struct{}),
	}
	t.timeout.Store(int64(config.LoadOrDefault().SyncTimeout))
	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}
	if t.name == "" {
		t.name = "task-" + t.id
	}
	if t.log == nil {
		t.log = log.GetLogger()
	}
	t.log = t.log.WithField("task", t.name)
	go t.loop()
	return t, nil
}

// Name returns task name.
func (t *Task) Name() string {
	return t.name
}

// ID returns unique task id.
func (t *Task) ID() string {
	return t.id
}

// Metrics returns task counters.
func (t *Task) Metrics() *metricz.Registry {
	return t.metrics
}

// State returns current task state.
func (t *Task) State() event.State {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.state
}

// SetEventFunc replaces event handler. The handler is called from the
// worker goroutine and may register jobs, but must not call control
// methods of the same task.
func (t *Task) SetEventFunc(h event.Handler) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.handler = h
}

// SetTimeout changes how long control calls wait for the worker.
func (t *Task) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: timeout %v", ErrInvalidArg, d)
	}
	t.timeout.Store(int64(d))
	return nil
}

// Timeout returns control calls timeout.
func (t *Task) Timeout() time.Duration {
	return time.Duration(t.timeout.Load())
}

// Register appends job to the queue. Ready wakes the worker if it waits
// for jobs.
func (t *Task) Register(j *job.Job, ready bool) error {
	if j == nil || j.Fn == nil {
		return ErrInvalidArg
	}
	t.jobsMu.Lock()
	t.jobs.PushBack(j)
	t.jobsMu.Unlock()
	t.log.WithField("job", j.Label).Debug("job registered")
	if ready {
		t.block.give()
	}
	return nil
}

// RegisterReady builds a job and registers it.
func (t *Task) RegisterReady(label string, fn job.Func, times job.Times, ready bool) error {
	return t.Register(job.New(label, times, fn), ready)
}

// Jobs returns labels of queued jobs.
func (t *Task) Jobs() []string {
	t.jobsMu.Lock()
	defer t.jobsMu.Unlock()
	labels := make([]string, 0, t.jobs.Len())
	for _, j := range t.jobs.Values() {
		labels = append(labels, j.Label)
	}
	return labels
}

// Run starts processing of queued jobs.
func (t *Task) Run(ctx context.Context) error {
	t.apiMu.Lock()
	defer t.apiMu.Unlock()
	if t.closed {
		return ErrInvalidState
	}
	if st := t.State(); st == event.Running || st == event.Paused {
		t.log.Debugf("can't run, already %s", st)
		return fmt.Errorf("%w: run in %s state", ErrNotSupported, st)
	}
	t.sync.drain()
	t.pause.Store(false)
	t.stop.Store(false)
	t.running.Store(true)
	t.block.give()
	return t.waitSync(ctx, "run")
}

// Stop drops all jobs at the next checkpoint and returns once the jobs
// registered by the event handler in response finished.
func (t *Task) Stop(ctx context.Context) error {
	t.apiMu.Lock()
	defer t.apiMu.Unlock()
	if t.closed {
		return ErrInvalidState
	}
	st := t.State()
	if st != event.Running && st != event.Paused {
		t.log.Debugf("already stopped, %s", st)
		return nil
	}
	if !t.busy.Load() {
		t.changeState(event.Stopped, nil)
		return nil
	}
	t.sync.drain()
	t.stop.Store(true)
	if !t.busy.Load() {
		// queue drained before the flag was seen
		t.stop.Store(false)
		return nil
	}
	if st == event.Paused {
		t.wait.give()
	}
	return t.waitSync(ctx, "stop")
}

// Pause blocks the worker at the next checkpoint.
func (t *Task) Pause(ctx context.Context) error {
	t.apiMu.Lock()
	defer t.apiMu.Unlock()
	if t.closed {
		return ErrInvalidState
	}
	switch st := t.State(); st {
	case event.Stopped, event.Paused, event.Finished, event.Error:
		t.log.Debugf("without pause, %s", st)
		return nil
	case event.Running:
	default:
		return fmt.Errorf("%w: pause in %s state", ErrNotSupported, st)
	}
	t.sync.drain()
	t.pause.Store(true)
	if !t.busy.Load() {
		t.pause.Store(false)
		return nil
	}
	return t.waitSync(ctx, "pause")
}

// Resume wakes paused worker.
func (t *Task) Resume(ctx context.Context) error {
	t.apiMu.Lock()
	defer t.apiMu.Unlock()
	if t.closed {
		return ErrInvalidState
	}
	if st := t.State(); st != event.Paused {
		return fmt.Errorf("%w: resume in %s state", ErrNotSupported, st)
	}
	t.sync.drain()
	t.pause.Store(false)
	t.wait.give()
	return t.waitSync(ctx, "resume")
}

// Reset returns idle task to Initialized state.
func (t *Task) Reset() error {
	t.apiMu.Lock()
	defer t.apiMu.Unlock()
	if t.busy.Load() {
		return fmt.Errorf("%w: reset while %s", ErrInvalidState, t.State())
	}
	t.pause.Store(false)
	t.stop.Store(false)
	t.setState(event.Initialized)
	return nil
}

// Close stops the task if needed, terminates the worker and drops all jobs.
func (t *Task) Close() error {
	t.apiMu.Lock()
	defer t.apiMu.Unlock()
	if t.closed {
		return nil
	}
	if st := t.State(); st == event.Running || st == event.Paused {
		t.stop.Store(true)
		if st == event.Paused {
			t.wait.give()
		}
	}
	t.destroy.Store(true)
	t.block.give()
	select {
	case <-t.exited:
	case <-t.clock.After(t.Timeout()):
		return fmt.Errorf("%w: close %s", ErrTimeout, t.name)
	}
	t.closed = true
	t.jobsMu.Lock()
	t.jobs.Clear()
	t.jobsMu.Unlock()
	return nil
}

func (t *Task) String() string {
	return fmt.Sprintf("%s[%s]", t.name, t.State())
}

func (t *Task) waitSync(ctx context.Context, op string) error {
	select {
	case <-t.sync:
		return nil
	case <-t.clock.After(t.Timeout()):
		t.log.Warnf("%s not acknowledged in %v", op, t.Timeout())
		return fmt.Errorf("%w: %s %s", ErrTimeout, op, t.name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) setState(s event.State) {
	t.stateMu.Lock()
	t.state = s
	t.stateMu.Unlock()
	t.metrics.Gauge(CurrentState).Set(float64(s))
}

// emit calls handler with current state still in place.
func (t *Task) emit(typ event.Type, s event.State, payload interface{}) error {
	t.stateMu.RLock()
	h := t.handler
	t.stateMu.RUnlock()
	if h == nil {
		return nil
	}
	return h(event.Packet{From: t.name, Type: typ, Sub: int(s), Payload: payload})
}

// changeState notifies handler and then switches the state.
func (t *Task) changeState(s event.State, payload interface{}) error {
	if t.State() == s {
		return nil
	}
	err := t.emit(event.ChangeState, s, payload)
	t.setState(s)
	return err
}

// loadingJob reports the end of the job queue.
func (t *Task) loadingJob(s event.State, payload interface{}) {
	if t.State() == s {
		return
	}
	if err := t.emit(event.LoadingJob, s, payload); err != nil {
		t.log.WithError(err).Warnf("loading job %s handler failed", s)
	}
	t.setState(s)
}

type semaphore chan struct{}

func newSemaphore() semaphore {
	return make(semaphore, 1)
}

// give is a no-op if the semaphore is already given.
func (s semaphore) give() {
	select {
	case s <- struct{}{}:
	default:
	}
}

func (s semaphore) take() {
	<-s
}

func (s semaphore) drain() {
	select {
	case <-s:
	default:
	}
}
