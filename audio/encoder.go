package audio

import (
	"errors"
	"fmt"

	"github.com/dudk/gmf/cache"
	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/payload"
)

// Encoder re-blocks input into codec frames and encodes them one frame per
// process call. Input is held until all its frames are encoded.
type Encoder struct {
	*element.Audio

	cfg    CodecConfig
	enc    FrameEncoder
	cache  *cache.Cache
	frame  int
	outMax int
	inLoad *payload.Payload
}

// NewEncoder returns encoder element.
func NewEncoder(cfg CodecConfig) *Encoder {
	in := element.DefaultPortAttr()
	in.Shared = false
	return &Encoder{
		Audio: element.NewAudio(element.Config{
			Name:       EncoderName,
			In:         in,
			Dependency: true,
			Caps:       []element.Cap{element.CapAudioEncoder},
		}),
		cfg: cfg,
	}
}

// SetConfig replaces codec config.
func (e *Encoder) SetConfig(cfg CodecConfig) error {
	if err := configurable(e.Audio); err != nil {
		return err
	}
	if _, err := lookupCodec(cfg); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// Open creates codec encoder and frame cache.
func (e *Encoder) Open() error {
	codec, err := lookupCodec(e.cfg)
	if err != nil {
		return err
	}
	enc, err := codec.NewEncoder(e.cfg, sourceSound(e.Audio))
	if err != nil {
		return err
	}
	e.frame, e.outMax = enc.FrameSize()
	c, err := cache.New(e.frame)
	if err != nil {
		enc.Close()
		return err
	}
	e.enc, e.cache = enc, c
	e.Logger().Debugf("frame %d bytes", e.frame)
	return e.UpdateSound(enc.Sound())
}

// Process encodes one frame. It returns job.Continue when the frame needs
// more input and job.Truncate when more frames are buffered.
func (e *Encoder) Process() (job.Result, error) {
	in, out := e.In(), e.Out()
	if in == nil || out == nil {
		return job.Fail, fmt.Errorf("%w: %s needs in and out ports", element.ErrInvalidArg, e.Name())
	}
	if e.cache.ReadyForLoad() {
		if err := e.releaseIn(); err != nil {
			return job.Fail, err
		}
		pl, _, err := in.AcquireIn(nil, e.InSize(), in.Wait())
		if err != nil {
			return job.Fail, err
		}
		e.inLoad = pl
		if err := e.cache.Load(pl); err != nil {
			return job.Fail, err
		}
		e.UpdateFilePos(int64(pl.ValidSize))
	}
	view, err := e.cache.Acquire(e.frame)
	if err != nil {
		return job.Fail, err
	}
	if view.ValidSize < e.frame && !view.IsDone {
		if err := errors.Join(e.cache.Release(view), e.releaseIn()); err != nil {
			return job.Fail, err
		}
		return job.Continue, nil
	}
	outLoad, _, err := out.AcquireOut(nil, max(e.outMax, 1), out.Wait())
	if err != nil {
		e.cache.Release(view)
		return job.Fail, err
	}
	n, err := e.enc.Encode(view.Data(), outLoad.Buf[:e.outMax])
	if err != nil {
		e.cache.Release(view)
		return job.Fail, fmt.Errorf("encode: %w", err)
	}
	outLoad.ValidSize, outLoad.PTS, outLoad.IsDone = n, view.PTS, view.IsDone
	done := view.IsDone
	var errs []error
	errs = append(errs, e.cache.Release(view))
	if e.cache.ReadyForLoad() {
		errs = append(errs, e.releaseIn())
	}
	errs = append(errs, out.ReleaseOut(outLoad, out.Wait()))
	if err := errors.Join(errs...); err != nil {
		return job.Fail, err
	}
	switch {
	case done:
		return job.Done, nil
	case !e.cache.ReadyForLoad():
		return job.Truncate, nil
	}
	return job.OK, nil
}

// releaseIn gives back input held by the cache.
func (e *Encoder) releaseIn() error {
	if e.inLoad == nil {
		return nil
	}
	pl := e.inLoad
	e.inLoad = nil
	return e.In().ReleaseIn(pl, e.In().Wait())
}

// Close releases codec and cache.
func (e *Encoder) Close() error {
	var errs []error
	if e.inLoad != nil && e.In() != nil {
		errs = append(errs, e.releaseIn())
	}
	if e.cache != nil {
		e.cache.Close()
		e.cache = nil
	}
	if e.enc != nil {
		errs = append(errs, e.enc.Close())
		e.enc = nil
	}
	return errors.Join(errs...)
}
