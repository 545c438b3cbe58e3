package databus

import (
	"time"

	"github.com/dudk/gmf/payload"
	"github.com/dudk/gmf/port"
)

type readerIO struct {
	bus Bus
}

func (r readerIO) Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	return r.bus.AcquireRead(pl, wanted, wait)
}

func (r readerIO) Release(pl *payload.Payload, wait time.Duration) error {
	return r.bus.ReleaseRead(pl, wait)
}

type writerIO struct {
	bus Bus
}

func (w writerIO) Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	return w.bus.AcquireWrite(pl, wanted, wait)
}

func (w writerIO) Release(pl *payload.Payload, wait time.Duration) error {
	return w.bus.ReleaseWrite(pl, wait)
}

// ReaderPort returns in port which reads from bus.
func ReaderPort(bus Bus, options ...port.Option) *port.Port {
	options = append([]port.Option{port.WithName(bus.Name() + "-reader")}, options...)
	return port.NewIn(bus.Type().PortType(), readerIO{bus: bus}, options...)
}

// WriterPort returns out port which writes to bus.
func WriterPort(bus Bus, options ...port.Option) *port.Port {
	options = append([]port.Option{port.WithName(bus.Name() + "-writer")}, options...)
	return port.NewOut(bus.Type().PortType(), writerIO{bus: bus}, options...)
}
