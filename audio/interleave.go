package audio

import (
	"errors"
	"fmt"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/internal/pcm"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/payload"
	"github.com/dudk/gmf/port"
)

// Interleave merges mono streams into one interleaved stream, in port i
// becomes channel i. It finishes when any input is done.
type Interleave struct {
	*element.Audio

	bits   int
	inLoad []*payload.Payload
}

// NewInterleave returns interleave element.
func NewInterleave() *Interleave {
	in := element.DefaultPortAttr()
	in.Shape = element.Multi
	in.Shared = false
	return &Interleave{
		Audio: element.NewAudio(element.Config{
			Name:       InterleaveName,
			In:         in,
			Dependency: true,
			Caps:       []element.Cap{element.CapAudioInterleave},
		}),
	}
}

// Open reports format with one channel per in port.
func (l *Interleave) Open() error {
	s := sourceSound(l.Audio)
	if !pcm.Supported(s.Bits) {
		return fmt.Errorf("%w: source %d bits", element.ErrInvalidArg, s.Bits)
	}
	if s.Channels != 1 {
		return fmt.Errorf("%w: interleave of %d channel streams", element.ErrInvalidArg, s.Channels)
	}
	n := len(l.Ins())
	if n == 0 {
		return fmt.Errorf("%w: %s has no in ports", element.ErrInvalidArg, l.Name())
	}
	l.bits = s.Bits
	l.inLoad = make([]*payload.Payload, n)
	s.Channels = n
	return l.UpdateSound(withBitrate(s))
}

// Process merges one chunk of every input. Inputs are expected to deliver
// chunks of equal size, samples beyond the shortest chunk are dropped.
func (l *Interleave) Process() (job.Result, error) {
	out := l.Out()
	if out == nil {
		return job.Fail, fmt.Errorf("%w: %s has no out port", element.ErrInvalidArg, l.Name())
	}
	ins := l.Ins()
	bps := l.bits / 8
	wanted := l.InSize() / bps * bps
	frames, done := -1, false
	for i, in := range ins {
		pl, _, err := in.AcquireIn(nil, wanted, in.Wait())
		if err != nil {
			l.releaseIns(ins[:i])
			return job.Fail, err
		}
		l.inLoad[i] = pl
		if n := pl.ValidSize / bps; frames < 0 || n < frames {
			frames = n
		}
		done = done || pl.IsDone
	}
	frame := len(ins) * bps
	outLoad, _, err := out.AcquireOut(nil, max(frames*frame, 1), out.Wait())
	if err != nil {
		l.releaseIns(ins)
		return job.Fail, err
	}
	for i, pl := range l.inLoad {
		for f := 0; f < frames; f++ {
			copy(outLoad.Buf[f*frame+i*bps:][:bps], pl.Buf[f*bps:])
		}
	}
	outLoad.ValidSize, outLoad.PTS, outLoad.IsDone = frames*frame, l.inLoad[0].PTS, done
	l.UpdateFilePos(int64(outLoad.ValidSize))
	errIn := l.releaseIns(ins)
	if err := errors.Join(errIn, out.ReleaseOut(outLoad, out.Wait())); err != nil {
		return job.Fail, err
	}
	if done {
		return job.Done, nil
	}
	return job.OK, nil
}

func (l *Interleave) releaseIns(ins []*port.Port) error {
	var errs []error
	for i, in := range ins {
		errs = append(errs, in.ReleaseIn(l.inLoad[i], in.Wait()))
		l.inLoad[i] = nil
	}
	return errors.Join(errs...)
}

// Close does nothing.
func (l *Interleave) Close() error {
	return nil
}
