package element

import (
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/dudk/gmf/config"
	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/log"
	"github.com/dudk/gmf/metric"
	"github.com/dudk/gmf/port"
)

// Shape tells how many ports an element side accepts.
type Shape int

// Port shapes.
const (
	Single Shape = iota + 1
	Multi
)

// PortAttr describes ports of one side of an element.
type PortAttr struct {
	Shape Shape
	Type  port.Type
	// DataSize is the preferred acquire size.
	DataSize int
	// Align is the output buffer size alignment.
	Align int
	// Shared allows the input payload to be reused as output buffer.
	Shared bool
}

// DefaultPortAttr returns single shared byte port attributes with sizes
// from configuration.
func DefaultPortAttr() PortAttr {
	cfg := config.LoadOrDefault()
	return PortAttr{
		Shape:    Single,
		Type:     port.Byte,
		DataSize: cfg.PortDataSize,
		Align:    cfg.PortAlign,
		Shared:   true,
	}
}

// Config is a common element configuration.
type Config struct {
	// Name is the element tag, e.g. "bit_cvt".
	Name string
	In   PortAttr
	Out  PortAttr
	// Dependency means the element needs stream info from upstream to
	// open. Such elements start in None state.
	Dependency bool
	Caps       []Cap
	Logger     logrus.FieldLogger
}

// Base keeps the state shared by all elements. It's embedded by pointer.
type Base struct {
	id      string
	name    string
	cfg     Config
	log     logrus.FieldLogger
	meter   metric.ResetFunc
	measure metric.MeasureFunc
	emit    event.Handler

	mu        sync.Mutex
	state     event.State
	initState event.State

	ins  []*port.Port
	outs []*port.Port

	mask uint8
	last job.Result
}

// NewBase returns base configured with cfg. Zero port attributes are
// replaced with defaults.
func NewBase(cfg Config) *Base {
	if cfg.In.Shape == 0 && cfg.In.DataSize == 0 {
		cfg.In = DefaultPortAttr()
	}
	if cfg.Out.Shape == 0 && cfg.Out.DataSize == 0 {
		cfg.Out = DefaultPortAttr()
	}
	defaults := DefaultPortAttr()
	for _, attr := range []*PortAttr{&cfg.In, &cfg.Out} {
		if attr.Shape == 0 {
			attr.Shape = Single
		}
		if attr.DataSize <= 0 {
			attr.DataSize = defaults.DataSize
		}
		if attr.Align <= 0 {
			attr.Align = defaults.Align
		}
	}
	b := &Base{
		id:   xid.New().String(),
		name: cfg.Name,
		cfg:  cfg,
	}
	if b.name == "" {
		b.name = "element-" + b.id
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger()
	}
	b.log = log.Component(cfg.Logger, "element", b.name)
	b.initState = event.Initialized
	if cfg.Dependency {
		b.initState = event.None
	}
	b.state = b.initState
	return b
}

// Core returns b. Elements embedding *Base satisfy the Core part of
// Element.
func (b *Base) Core() *Base {
	return b
}

// ID returns unique element id.
func (b *Base) ID() string {
	return b.id
}

// Name returns element tag.
func (b *Base) Name() string {
	return b.name
}

// Config returns element configuration.
func (b *Base) Config() Config {
	return b.cfg
}

// Logger returns element logger.
func (b *Base) Logger() logrus.FieldLogger {
	return b.log
}

// Caps returns element capabilities.
func (b *Base) Caps() []Cap {
	return b.cfg.Caps
}

// Dependency reports whether the element waits for stream info to open.
func (b *Base) Dependency() bool {
	return b.cfg.Dependency
}

// InSize returns preferred input acquire size.
func (b *Base) InSize() int {
	return b.cfg.In.DataSize
}

// OutSize returns preferred output acquire size.
func (b *Base) OutSize() int {
	return b.cfg.Out.DataSize
}

// OutAlign returns output buffer alignment.
func (b *Base) OutAlign() int {
	return b.cfg.Out.Align
}

// State returns current state.
func (b *Base) State() event.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetState changes state.
func (b *Base) SetState(s event.State) {
	b.mu.Lock()
	old := b.state
	b.state = s
	b.mu.Unlock()
	if old != s {
		b.log.Debugf("state %s -> %s", old, s)
	}
}

// ResetState returns the element to its initial state: None for elements
// with dependency, Initialized otherwise.
func (b *Base) ResetState() {
	b.SetState(b.initState)
	b.mu.Lock()
	b.mask, b.last = 0, job.OK
	b.mu.Unlock()
}

// Configurable reports whether parameters can still be changed.
func (b *Base) Configurable() bool {
	return b.State() < event.Opening
}

// JobMask returns lifecycle jobs that have run.
func (b *Base) JobMask() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mask
}

// SetJobMask replaces job mask.
func (b *Base) SetJobMask(mask uint8) {
	b.mu.Lock()
	b.mask = mask
	b.mu.Unlock()
}

// ChangeJobMask sets bits of mask.
func (b *Base) ChangeJobMask(mask uint8) {
	b.mu.Lock()
	b.mask |= mask
	b.mu.Unlock()
}

// LastResult returns the result of the last Process call.
func (b *Base) LastResult() job.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *Base) setLast(r job.Result) {
	b.mu.Lock()
	b.last = r
	b.mu.Unlock()
}

// SetEmitter sets function used to report events. Pipelines set it when the
// element is added.
func (b *Base) SetEmitter(h event.Handler) {
	b.emit = h
}

// Emit reports an event with b as sender.
func (b *Base) Emit(typ event.Type, sub int, payload interface{}) error {
	if b.emit == nil {
		return nil
	}
	return b.emit(event.Packet{From: b.name, Type: typ, Sub: sub, Payload: payload})
}

// NotifySound reports sound info to downstream elements.
func (b *Base) NotifySound(s info.Sound) error {
	return b.Emit(event.ReportInfo, int(info.SoundType), s)
}

// NotifyVideo reports video info to downstream elements.
func (b *Base) NotifyVideo(v info.Video) error {
	return b.Emit(event.ReportInfo, int(info.VideoType), v)
}

// RegisterIn adds input port. The first in port is paired with the first
// out port.
func (b *Base) RegisterIn(p *port.Port) error {
	if p == nil || p.Dir() != port.In {
		return fmt.Errorf("%w: register in port", ErrInvalidArg)
	}
	if b.cfg.In.Shape == Single && len(b.ins) > 0 {
		return fmt.Errorf("%w: %s has single in port", ErrPortCaps, b.name)
	}
	if !b.cfg.In.Shared {
		p.EnableShare(false)
	}
	b.ins = append(b.ins, p)
	if len(b.ins) == 1 && len(b.outs) > 0 {
		return port.Pair(b.ins[0], b.outs[0])
	}
	return nil
}

// RegisterOut adds output port. The first out port is paired with the first
// in port.
func (b *Base) RegisterOut(p *port.Port) error {
	if p == nil || p.Dir() != port.Out {
		return fmt.Errorf("%w: register out port", ErrInvalidArg)
	}
	if b.cfg.Out.Shape == Single && len(b.outs) > 0 {
		return fmt.Errorf("%w: %s has single out port", ErrPortCaps, b.name)
	}
	b.outs = append(b.outs, p)
	if len(b.outs) == 1 && len(b.ins) > 0 {
		return port.Pair(b.ins[0], b.outs[0])
	}
	return nil
}

// UnregisterIn removes input port.
func (b *Base) UnregisterIn(p *port.Port) error {
	ins, err := unregister(b.ins, p)
	if err != nil {
		return err
	}
	b.ins = ins
	b.repair()
	return nil
}

// UnregisterOut removes output port.
func (b *Base) UnregisterOut(p *port.Port) error {
	outs, err := unregister(b.outs, p)
	if err != nil {
		return err
	}
	b.outs = outs
	b.repair()
	return nil
}

func (b *Base) repair() {
	var in, out *port.Port
	if len(b.ins) > 0 {
		in = b.ins[0]
	}
	if len(b.outs) > 0 {
		out = b.outs[0]
	}
	port.Pair(in, out)
}

func unregister(ports []*port.Port, p *port.Port) ([]*port.Port, error) {
	for i := range ports {
		if ports[i] == p {
			if p.Dir() == port.In {
				port.Pair(p, nil)
			} else {
				port.Pair(nil, p)
			}
			return append(ports[:i], ports[i+1:]...), nil
		}
	}
	return ports, fmt.Errorf("%w: port %s not registered", ErrInvalidArg, p)
}

// In returns the first input port or nil.
func (b *Base) In() *port.Port {
	if len(b.ins) == 0 {
		return nil
	}
	return b.ins[0]
}

// Out returns the first output port or nil.
func (b *Base) Out() *port.Port {
	if len(b.outs) == 0 {
		return nil
	}
	return b.outs[0]
}

// Ins returns all input ports.
func (b *Base) Ins() []*port.Port {
	return b.ins
}

// Outs returns all output ports.
func (b *Base) Outs() []*port.Port {
	return b.outs
}

// ResetPorts drops payload references of all ports.
func (b *Base) ResetPorts() {
	for _, p := range b.ins {
		p.Reset()
	}
	for _, p := range b.outs {
		p.Reset()
	}
}

// ClosePorts closes all ports and forgets them.
func (b *Base) ClosePorts() error {
	var errs execErrors
	for _, p := range b.ins {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range b.outs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.ins, b.outs = nil, nil
	return errs.ret()
}

// startMeasure resets measure function for the next run. Metrics are kept
// per concrete element type.
func (b *Base) startMeasure(component interface{}) {
	if b.meter == nil {
		b.meter = metric.Meter(component, 0)
	}
	b.measure = b.meter()
}

func (b *Base) String() string {
	return fmt.Sprintf("%s[%s]", b.name, b.State())
}
