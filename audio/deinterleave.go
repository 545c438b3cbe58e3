package audio

import (
	"errors"
	"fmt"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/internal/pcm"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/payload"
)

// Deinterleave splits interleaved stream into mono streams, channel i goes
// to out port i.
type Deinterleave struct {
	*element.Audio

	channels int
	bits     int
	outLoads []*payload.Payload
}

// NewDeinterleave returns deinterleave element.
func NewDeinterleave() *Deinterleave {
	in, out := element.DefaultPortAttr(), element.DefaultPortAttr()
	in.Shared = false
	out.Shape = element.Multi
	return &Deinterleave{
		Audio: element.NewAudio(element.Config{
			Name:       DeinterleaveName,
			In:         in,
			Out:        out,
			Dependency: true,
			Caps:       []element.Cap{element.CapAudioDeinterleave},
		}),
	}
}

// Open checks that every channel has an out port and reports mono format.
func (d *Deinterleave) Open() error {
	s := sourceSound(d.Audio)
	if !pcm.Supported(s.Bits) {
		return fmt.Errorf("%w: source %d bits", element.ErrInvalidArg, s.Bits)
	}
	if n := len(d.Outs()); n != s.Channels {
		return fmt.Errorf("%w: %d channels to %d out ports", element.ErrInvalidArg, s.Channels, n)
	}
	d.channels, d.bits = s.Channels, s.Bits
	d.outLoads = make([]*payload.Payload, s.Channels)
	s.Channels = 1
	return d.UpdateSound(withBitrate(s))
}

// Process splits one input chunk.
func (d *Deinterleave) Process() (job.Result, error) {
	in := d.In()
	if in == nil {
		return job.Fail, fmt.Errorf("%w: %s has no in port", element.ErrInvalidArg, d.Name())
	}
	inLoad, _, err := in.AcquireIn(nil, d.InSize(), in.Wait())
	if err != nil {
		return job.Fail, err
	}
	bps := d.bits / 8
	frame := d.channels * bps
	frames := inLoad.ValidSize / frame
	outs := d.Outs()
	for i, out := range outs {
		pl, _, err := out.AcquireOut(nil, max(frames*bps, 1), out.Wait())
		if err != nil {
			in.ReleaseIn(inLoad, in.Wait())
			return job.Fail, err
		}
		for f := 0; f < frames; f++ {
			copy(pl.Buf[f*bps:(f+1)*bps], inLoad.Buf[f*frame+i*bps:])
		}
		pl.ValidSize, pl.PTS, pl.IsDone = frames*bps, inLoad.PTS, inLoad.IsDone
		d.outLoads[i] = pl
	}
	done := inLoad.IsDone
	d.UpdateFilePos(int64(inLoad.ValidSize))
	errs := []error{in.ReleaseIn(inLoad, in.Wait())}
	for i, out := range outs {
		errs = append(errs, out.ReleaseOut(d.outLoads[i], out.Wait()))
		d.outLoads[i] = nil
	}
	if err := errors.Join(errs...); err != nil {
		return job.Fail, err
	}
	if done {
		return job.Done, nil
	}
	return job.OK, nil
}

// Close does nothing.
func (d *Deinterleave) Close() error {
	return nil
}
