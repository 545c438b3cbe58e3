// Package audio provides stock elements which process interleaved little
// endian signed PCM.
//
// Elements with a dependency on upstream stream info open once the info
// arrives: their output format is derived from it and reported further
// downstream. Parameters are set with typed setters before the element is
// opened, SetParam exists for command line use.
package audio

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/payload"
)

// Element names.
const (
	CopierName       = "copier"
	BitCvtName       = "bit_cvt"
	ChCvtName        = "ch_cvt"
	RateCvtName      = "rate_cvt"
	DeinterleaveName = "deinterleave"
	InterleaveName   = "interleave"
	EncoderName      = "encoder"
	DecoderName      = "decoder"
)

// DefaultSound is used by elements opened without stream info.
var DefaultSound = info.Sound{
	SampleRate: 44100,
	Channels:   2,
	Bits:       16,
	Bitrate:    44100 * 2 * 16,
}

// Registry is the set of factories elements are registered in.
type Registry interface {
	RegisterElement(name string, caps []element.Cap, factory func() element.Element) error
}

// Register adds all stock elements to r.
func Register(r Registry) error {
	var errs []error
	add := func(name string, caps []element.Cap, factory func() element.Element) {
		errs = append(errs, r.RegisterElement(name, caps, factory))
	}
	add(CopierName, []element.Cap{element.CapAudioCopy}, func() element.Element { return NewCopier() })
	add(BitCvtName, []element.Cap{element.CapAudioBitConvert}, func() element.Element { return NewBitCvt(0) })
	add(ChCvtName, []element.Cap{element.CapAudioChConvert}, func() element.Element { return NewChCvt(0) })
	add(RateCvtName, []element.Cap{element.CapAudioRateConvert}, func() element.Element { return NewRateCvt(0) })
	add(DeinterleaveName, []element.Cap{element.CapAudioDeinterleave}, func() element.Element { return NewDeinterleave() })
	add(InterleaveName, []element.Cap{element.CapAudioInterleave}, func() element.Element { return NewInterleave() })
	add(EncoderName, []element.Cap{element.CapAudioEncoder}, func() element.Element { return NewEncoder(PCMConfig{}) })
	add(DecoderName, []element.Cap{element.CapAudioDecoder}, func() element.Element { return NewDecoder(PCMConfig{}) })
	return errors.Join(errs...)
}

// sourceSound returns upstream info or defaults.
func sourceSound(a *element.Audio) info.Sound {
	if s := a.SourceSound(); s.Valid() {
		return s
	}
	a.Logger().Warnf("no valid stream info, using %s", DefaultSound)
	return DefaultSound
}

func withBitrate(s info.Sound) info.Sound {
	s.Bitrate = s.SampleRate * s.Channels * s.Bits
	return s
}

// convert runs one acquire, convert and release cycle of an element with a
// single in and a single out port. When bypass is set the input payload is
// handed downstream as is. Conversion gets valid input and an output buffer
// of outSize(len(in)) bytes and returns number of bytes written.
func convert(a *element.Audio, bypass bool, outSize func(n int) int, fn func(in, out []byte) int) (job.Result, error) {
	in, out := a.In(), a.Out()
	if in == nil || out == nil {
		return job.Fail, fmt.Errorf("%w: %s needs in and out ports", element.ErrInvalidArg, a.Name())
	}
	inLoad, _, err := in.AcquireIn(nil, a.InSize(), in.Wait())
	if err != nil {
		return job.Fail, err
	}
	size := outSize(inLoad.ValidSize)
	var outLoad *payload.Payload
	if bypass && inLoad.ValidSize > 0 {
		outLoad, _, err = out.AcquireAlignedOut(inLoad, 0, inLoad.ValidSize, out.Wait())
	} else {
		outLoad, _, err = out.AcquireOut(nil, max(size, 1), out.Wait())
	}
	if err != nil {
		in.ReleaseIn(inLoad, in.Wait())
		return job.Fail, err
	}
	// an offered input buffer is converted in place
	if !bypass || outLoad != inLoad {
		outLoad.ValidSize = fn(inLoad.Data(), outLoad.Buf[:size])
		outLoad.PTS, outLoad.IsDone = inLoad.PTS, inLoad.IsDone
	}
	a.UpdateFilePos(int64(inLoad.ValidSize))
	done := outLoad.IsDone
	errIn := in.ReleaseIn(inLoad, in.Wait())
	errOut := out.ReleaseOut(outLoad, out.Wait())
	if err := errors.Join(errIn, errOut); err != nil {
		return job.Fail, err
	}
	if done {
		a.Logger().Debug("got done")
		return job.Done, nil
	}
	return job.OK, nil
}

// setInt parses value of an integer parameter and passes it to set.
func setInt(name, value string, set func(int) error) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", element.ErrInvalidArg, name, value)
	}
	return set(v)
}

func configurable(a *element.Audio) error {
	if !a.Configurable() {
		return fmt.Errorf("%w: %s is %s", element.ErrInvalidState, a.Name(), a.State())
	}
	return nil
}

// sameSound reports whether a and b describe the same PCM layout.
func sameSound(a, b info.Sound) bool {
	return a.SampleRate == b.SampleRate && a.Channels == b.Channels && a.Bits == b.Bits
}
