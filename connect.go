package gmf

import (
	"fmt"

	"github.com/dudk/gmf/databus"
	"github.com/dudk/gmf/port"
)

// ConnectPipe routes output of element from of pipeline a to input of
// element to of pipeline b through bus. Pipelines normally run on
// different tasks, the bus is the only synchronization between them.
//
// Stream info reported by from is forwarded to to, which doesn't open
// until the info arrives if it depends on it. The bus is closed when the
// writer side is destroyed; stopping either pipeline aborts it.
func ConnectPipe(a *Pipeline, from string, b *Pipeline, to string, bus databus.Bus) error {
	if a == nil || b == nil || bus == nil {
		return ErrInvalidArg
	}
	i, src, err := a.find(from)
	if err != nil {
		return err
	}
	j, dst, err := b.find(to)
	if err != nil {
		return err
	}
	w := databus.WriterPort(bus, port.WithCloser(bus.Close), port.WithLogger(a.log))
	r := databus.ReaderPort(bus, port.WithLogger(b.log))
	if err := src.Core().RegisterOut(w); err != nil {
		return fmt.Errorf("connect %s: %w", from, err)
	}
	if err := dst.Core().RegisterIn(r); err != nil {
		src.Core().UnregisterOut(w)
		return fmt.Errorf("connect %s: %w", to, err)
	}
	if i == len(a.elements)-1 {
		unshareTail(src.Core())
	}
	bus.SetWriter(src)
	bus.SetReader(dst)

	a.mu.Lock()
	a.links[i] = append(a.links[i], link{to: b, index: j})
	a.buses = append(a.buses, bus)
	a.mu.Unlock()

	b.mu.Lock()
	b.waiting[j] = true
	if b != a {
		b.buses = append(b.buses, bus)
	}
	b.mu.Unlock()
	a.log.Debugf("%s connected to %s of %s over %s", from, to, b.name, bus.Name())
	return nil
}
