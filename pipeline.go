package gmf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/dudk/gmf/databus"
	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/endpoint"
	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/log"
	"github.com/dudk/gmf/port"
	"github.com/dudk/gmf/task"
)

// Job label suffixes.
const (
	openJob    = "_open"
	processJob = "_proc"
	closeJob   = "_close"
)

// Pipeline is an ordered chain of elements executed by a task. Adjacent
// elements are linked with ports, the head reads from the in endpoint and
// the tail writes to the out endpoint.
type Pipeline struct {
	id       string
	name     string
	log      logrus.FieldLogger
	in       endpoint.Endpoint
	out      endpoint.Endpoint
	elements []element.Element

	mu      sync.Mutex
	task    *task.Task
	handler event.Handler
	state   event.State
	err     error
	loaded  bool
	opened  bool
	// closing is set when close jobs are queued, final is the state
	// reported once they are done.
	closing bool
	final   event.State
	links   map[int][]link
	waiting map[int]bool
	buses   []databus.Bus
}

// link forwards stream info to an element of a connected pipeline.
type link struct {
	to    *Pipeline
	index int
}

// New links elements into a pipeline. Elements are owned by the pipeline
// until Destroy.
func New(elements []element.Element, options ...Option) (*Pipeline, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: pipeline without elements", ErrInvalidArg)
	}
	p := &Pipeline{
		id:       newUID(),
		elements: elements,
		state:    event.Initialized,
		links:    make(map[int][]link),
		waiting:  make(map[int]bool),
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	if p.name == "" {
		p.name = "pipeline-" + p.id
	}
	p.log = log.Component(p.log, "pipeline", p.name)
	if err := p.bind(); err != nil {
		return nil, err
	}
	return p, nil
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// bind creates ports between elements and around endpoints.
func (p *Pipeline) bind() error {
	for i, el := range p.elements {
		if el == nil {
			return fmt.Errorf("%w: nil element at %d", ErrInvalidArg, i)
		}
		el.Core().SetEmitter(p.emitter(i))
	}
	head, tail := p.elements[0].Core(), p.elements[len(p.elements)-1].Core()
	if p.in != nil {
		in := port.NewIn(port.Byte, p.in, port.WithName(p.in.Name()), port.WithLogger(p.log))
		if err := head.RegisterIn(in); err != nil {
			return err
		}
	}
	for i := 0; i < len(p.elements)-1; i++ {
		from, to := p.elements[i].Core(), p.elements[i+1].Core()
		out := port.NewOut(from.Config().Out.Type, nil, port.WithName(from.Name()+"-out"), port.WithLogger(p.log))
		in := port.NewIn(to.Config().In.Type, nil, port.WithName(to.Name()+"-in"), port.WithLogger(p.log))
		if err := port.Link(out, in); err != nil {
			return err
		}
		if err := from.RegisterOut(out); err != nil {
			return err
		}
		if err := to.RegisterIn(in); err != nil {
			return err
		}
	}
	if p.out != nil {
		out := port.NewOut(port.Byte, p.out, port.WithName(p.out.Name()), port.WithLogger(p.log))
		if err := tail.RegisterOut(out); err != nil {
			return err
		}
		unshareTail(tail)
	}
	return nil
}

// unshareTail keeps the input of the last element out of its IO output.
func unshareTail(b *element.Base) {
	if in := b.In(); in != nil && len(b.Outs()) == 1 {
		in.EnableShare(false)
	}
}

// ID returns unique pipeline id.
func (p *Pipeline) ID() string {
	return p.id
}

// Name returns pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// State returns pipeline state.
func (p *Pipeline) State() event.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error which caused the Error state.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Elements returns elements in processing order.
func (p *Pipeline) Elements() []element.Element {
	return append([]element.Element(nil), p.elements...)
}

// Element returns the first element called name.
func (p *Pipeline) Element(name string) (element.Element, error) {
	_, el, err := p.find(name)
	return el, err
}

func (p *Pipeline) find(name string) (int, element.Element, error) {
	for i, el := range p.elements {
		if el.Core().Name() == name {
			return i, el, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: element %s in %s", ErrNotFound, name, p.name)
}

// In returns in endpoint, nil if the head reads from elsewhere.
func (p *Pipeline) In() endpoint.Endpoint {
	return p.in
}

// Out returns out endpoint, nil if the tail writes elsewhere.
func (p *Pipeline) Out() endpoint.Endpoint {
	return p.out
}

// SetInURI sets URI of in endpoint used by the next Run.
func (p *Pipeline) SetInURI(uri string) error {
	if p.in == nil {
		return fmt.Errorf("%w: in endpoint of %s", ErrNotFound, p.name)
	}
	p.in.SetURI(uri)
	return nil
}

// SetOutURI sets URI of out endpoint used by the next Run.
func (p *Pipeline) SetOutURI(uri string) error {
	if p.out == nil {
		return fmt.Errorf("%w: out endpoint of %s", ErrNotFound, p.name)
	}
	p.out.SetURI(uri)
	return nil
}

// SetEvent sets user callback. It receives stream info reported by
// elements and the pipeline state changes: RUNNING, PAUSED and the final
// one. The callback is called from the task goroutine and must not call
// control methods of the pipeline.
func (p *Pipeline) SetEvent(h event.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// BindTask sets the task which executes pipeline jobs. A task executes one
// pipeline at a time.
func (p *Pipeline) BindTask(t *task.Task) error {
	if t == nil {
		return ErrInvalidArg
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == event.Running || p.state == event.Paused {
		return fmt.Errorf("%w: bind task in %s state", ErrInvalidState, p.state)
	}
	p.task = t
	p.loaded = false
	t.SetEventFunc(p.handleTask)
	return nil
}

// Task returns bound task.
func (p *Pipeline) Task() *task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task
}

// LoadJobs registers open and process jobs of all elements in the bound
// task. Run calls it when jobs aren't loaded yet.
func (p *Pipeline) LoadJobs() error {
	p.mu.Lock()
	t := p.task
	p.mu.Unlock()
	if t == nil {
		return fmt.Errorf("%w: no task bound to %s", ErrInvalidState, p.name)
	}
	for _, el := range p.elements {
		el := el
		if err := t.RegisterReady(el.Core().Name()+openJob, func() (job.Result, error) {
			return element.Open(el)
		}, job.Once, false); err != nil {
			return err
		}
	}
	for i, el := range p.elements {
		i, el := i, el
		if err := t.RegisterReady(el.Core().Name()+processJob, func() (job.Result, error) {
			if p.awaiting(i) {
				return job.OK, nil
			}
			return element.Process(el)
		}, job.Infinite, false); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
	return nil
}

// awaiting reports whether element i reads from a bus and still waits for
// stream info from the pipeline that writes it.
func (p *Pipeline) awaiting(i int) bool {
	p.mu.Lock()
	w := p.waiting[i]
	p.mu.Unlock()
	b := p.elements[i].Core()
	return w && b.Dependency() && b.State() == event.None
}

// Run opens endpoints, reports input stream info to the elements and
// starts the bound task.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	t, st, loaded := p.task, p.state, p.loaded
	p.mu.Unlock()
	if t == nil {
		return fmt.Errorf("%w: no task bound to %s", ErrInvalidState, p.name)
	}
	if st != event.Initialized {
		return fmt.Errorf("%w: run in %s state", ErrInvalidState, st)
	}
	if err := p.openEndpoints(); err != nil {
		return err
	}
	if err := p.start(ctx, t, loaded); err != nil {
		// a timed out or cancelled run may still be picked up by the
		// worker, endpoints are closed when it ends
		if errors.Is(err, task.ErrTimeout) || ctx.Err() != nil {
			return err
		}
		if cerr := p.closeEndpoints(); cerr != nil {
			p.log.WithError(cerr).Warn("close endpoints")
		}
		return err
	}
	return nil
}

func (p *Pipeline) start(ctx context.Context, t *task.Task, loaded bool) error {
	if err := p.reportInput(); err != nil {
		return err
	}
	if !loaded {
		if err := p.LoadJobs(); err != nil {
			return err
		}
	}
	p.log.Debug("run")
	return t.Run(ctx)
}

// Pause blocks the task at the next checkpoint.
func (p *Pipeline) Pause(ctx context.Context) error {
	t := p.Task()
	if t == nil {
		return fmt.Errorf("%w: no task bound to %s", ErrInvalidState, p.name)
	}
	return t.Pause(ctx)
}

// Resume continues paused pipeline.
func (p *Pipeline) Resume(ctx context.Context) error {
	t := p.Task()
	if t == nil {
		return fmt.Errorf("%w: no task bound to %s", ErrInvalidState, p.name)
	}
	return t.Resume(ctx)
}

// Stop interrupts endpoints and buses, then stops the task. It returns
// once elements are closed.
func (p *Pipeline) Stop(ctx context.Context) error {
	t := p.Task()
	if t == nil {
		return fmt.Errorf("%w: no task bound to %s", ErrInvalidState, p.name)
	}
	p.abort()
	return t.Stop(ctx)
}

// abort interrupts blocking IO of the pipeline.
func (p *Pipeline) abort() {
	for _, e := range []endpoint.Endpoint{p.in, p.out} {
		if a, ok := e.(endpoint.Aborter); ok {
			a.Abort()
		}
	}
	p.mu.Lock()
	buses := p.buses
	p.mu.Unlock()
	for _, bus := range buses {
		bus.Abort()
	}
}

// Reset prepares stopped or finished pipeline for the next run.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	t, st := p.task, p.state
	p.mu.Unlock()
	if st == event.Running || st == event.Paused {
		return fmt.Errorf("%w: reset in %s state", ErrInvalidState, st)
	}
	var errs execErrors
	for _, el := range p.elements {
		if err := element.Reset(el); err != nil {
			errs = append(errs, err)
		}
	}
	for _, e := range []endpoint.Endpoint{p.in, p.out} {
		if e == nil {
			continue
		}
		if err := e.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	p.mu.Lock()
	for _, bus := range p.buses {
		bus.Reset()
	}
	p.state, p.err, p.closing = event.Initialized, nil, false
	p.mu.Unlock()
	if t != nil {
		if err := t.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.ret()
}

// Destroy stops the pipeline if needed and releases elements, ports and
// endpoints. The bound task isn't closed.
func (p *Pipeline) Destroy() error {
	var errs execErrors
	p.mu.Lock()
	t, st := p.task, p.state
	p.mu.Unlock()
	if t != nil && (st == event.Running || st == event.Paused) {
		if err := p.Stop(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if t != nil {
		t.SetEventFunc(nil)
	}
	for _, el := range p.elements {
		if err := element.Destroy(el); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.closeEndpoints(); err != nil {
		errs = append(errs, err)
	}
	p.mu.Lock()
	p.task, p.loaded = nil, false
	p.mu.Unlock()
	return errs.ret()
}

// ReportInfo sends stream info to all elements as if it came from the
// input, e.g. the format of raw data read by a file endpoint.
func (p *Pipeline) ReportInfo(typ info.Type, v interface{}) error {
	return p.dispatch(-1, event.Packet{
		From:    p.name,
		Type:    event.ReportInfo,
		Sub:     int(typ),
		Payload: v,
	})
}

func (p *Pipeline) reportInput() error {
	if r, ok := p.in.(endpoint.FileReporter); ok {
		if err := p.ReportInfo(info.FileType, r.FileInfo()); err != nil {
			return err
		}
	}
	if r, ok := p.in.(endpoint.SoundReporter); ok {
		if s := r.SoundInfo(); s.Valid() {
			return p.ReportInfo(info.SoundType, s)
		}
	}
	return nil
}

func (p *Pipeline) emitter(i int) event.Handler {
	return func(pkt event.Packet) error {
		return p.dispatch(i, pkt)
	}
}

// dispatch delivers packet reported by element i to the elements after it.
// Stream info of the tail goes to the out endpoint and every report of a
// connected element goes to the pipeline on the other side of the bus.
func (p *Pipeline) dispatch(i int, pkt event.Packet) error {
	var errs execErrors
	for j := i + 1; j < len(p.elements); j++ {
		if r, ok := p.elements[j].(element.EventReceiver); ok {
			if err := r.ReceiveEvent(pkt, j == i+1); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if i == len(p.elements)-1 && pkt.Type == event.ReportInfo && info.Type(pkt.Sub) == info.SoundType {
		if r, ok := p.out.(endpoint.SoundReceiver); ok {
			if s, ok := pkt.Payload.(info.Sound); ok {
				if err := r.SetSoundInfo(s); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	p.mu.Lock()
	links, h := p.links[i], p.handler
	p.mu.Unlock()
	for _, l := range links {
		if err := l.to.receive(l.index, pkt); err != nil {
			errs = append(errs, err)
		}
	}
	if h != nil && pkt.Type == event.ReportInfo {
		if err := h(pkt); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.ret()
}

// receive delivers packet from a connected pipeline to element i.
func (p *Pipeline) receive(i int, pkt event.Packet) error {
	if r, ok := p.elements[i].(element.EventReceiver); ok {
		return r.ReceiveEvent(pkt, true)
	}
	return nil
}

// handleTask reacts on task events. When the job queue ends, close jobs
// are queued; the pipeline reports its final state after they ran.
func (p *Pipeline) handleTask(pkt event.Packet) error {
	switch pkt.Type {
	case event.LoadingJob:
		p.mu.Lock()
		if p.closing {
			p.mu.Unlock()
			return nil
		}
		p.closing, p.final = true, pkt.State()
		if err, ok := pkt.Payload.(error); ok {
			p.err = &ErrorRun{Pipeline: p.name, Err: err}
		}
		t := p.task
		p.mu.Unlock()
		p.log.Debugf("jobs %s, closing", pkt.State())
		return p.loadCloseJobs(t)
	case event.ChangeState:
		s := pkt.State()
		switch {
		case s == event.Running || s == event.Paused:
			p.setState(s)
		case s.Terminal():
			p.mu.Lock()
			if p.closing {
				s, p.closing = p.final, false
			}
			p.mu.Unlock()
			p.finish(s)
		}
	}
	return nil
}

func (p *Pipeline) loadCloseJobs(t *task.Task) error {
	var errs execErrors
	for _, el := range p.elements {
		el := el
		if err := t.RegisterReady(el.Core().Name()+closeJob, func() (job.Result, error) {
			if _, err := element.Close(el); err != nil {
				p.log.WithError(err).Warn("close failed")
			}
			return job.OK, nil
		}, job.Once, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.ret()
}

// finish closes endpoints and reports the final state.
func (p *Pipeline) finish(s event.State) {
	if err := p.closeEndpoints(); err != nil {
		p.log.WithError(err).Warn("close endpoints failed")
	}
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()
	p.setState(s)
}

func (p *Pipeline) setState(s event.State) {
	p.mu.Lock()
	p.state = s
	h := p.handler
	var payload interface{}
	if s == event.Error && p.err != nil {
		payload = p.err
	}
	p.mu.Unlock()
	p.log.Debugf("state %s", s)
	if h == nil {
		return
	}
	if err := h(event.Packet{From: p.name, Type: event.ChangeState, Sub: int(s), Payload: payload}); err != nil {
		p.log.WithError(err).Warnf("%s handler failed", s)
	}
}

func (p *Pipeline) openEndpoints() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		return nil
	}
	var opened []endpoint.Endpoint
	for _, e := range []endpoint.Endpoint{p.in, p.out} {
		if e == nil {
			continue
		}
		if err := e.Open(); err != nil {
			for _, o := range opened {
				o.Close()
			}
			return fmt.Errorf("open %s: %w", e.Name(), err)
		}
		opened = append(opened, e)
	}
	p.opened = true
	return nil
}

func (p *Pipeline) closeEndpoints() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opened {
		return nil
	}
	p.opened = false
	var errs execErrors
	for _, e := range []endpoint.Endpoint{p.in, p.out} {
		if e == nil {
			continue
		}
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.ret()
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("%s[%s]", p.name, p.State())
}
