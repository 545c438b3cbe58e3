package audio

import (
	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/job"
)

// Copier passes data through unchanged. It doesn't depend on stream info
// but forwards it when it arrives.
type Copier struct {
	*element.Audio
}

// NewCopier returns a copier element.
func NewCopier() *Copier {
	return &Copier{
		Audio: element.NewAudio(element.Config{
			Name: CopierName,
			Caps: []element.Cap{element.CapAudioCopy},
		}),
	}
}

// Open reports received stream info downstream.
func (c *Copier) Open() error {
	if s := c.SourceSound(); s.Valid() {
		return c.UpdateSound(s)
	}
	return nil
}

// Process hands input downstream, in place when the ports allow it.
func (c *Copier) Process() (job.Result, error) {
	return convert(c.Audio, true, identity, func(in, out []byte) int {
		return copy(out, in)
	})
}

// Close does nothing.
func (c *Copier) Close() error {
	return nil
}

// ReceiveEvent forwards stream info which arrives after open.
func (c *Copier) ReceiveEvent(pkt event.Packet, fromUpstream bool) error {
	if err := c.Audio.ReceiveEvent(pkt, fromUpstream); err != nil {
		return err
	}
	if !fromUpstream || c.State() != event.Running {
		return nil
	}
	if s := c.SourceSound(); s.Valid() && s != c.SoundInfo() {
		return c.UpdateSound(s)
	}
	return nil
}

func identity(n int) int {
	return n
}
