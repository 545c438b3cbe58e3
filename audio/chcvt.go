package audio

import (
	"fmt"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/internal/pcm"
	"github.com/dudk/gmf/job"
)

// maxChannels limits channel counts accepted by converters.
const maxChannels = 32

// ChCvt converts number of channels. Mono is duplicated to every output
// channel, multiple channels are averaged to mono. Other layouts keep the
// leading channels and repeat the last one when widening.
type ChCvt struct {
	*element.Audio

	dest int
	// negotiated at open
	src, out, bits int
}

// NewChCvt returns channel converter. Zero channels keep the source layout.
func NewChCvt(channels int) *ChCvt {
	return &ChCvt{
		Audio: element.NewAudio(element.Config{
			Name:       ChCvtName,
			Dependency: true,
			Caps:       []element.Cap{element.CapAudioChConvert},
		}),
		dest: channels,
	}
}

// SetDestChannels sets output channel count.
func (c *ChCvt) SetDestChannels(channels int) error {
	if err := configurable(c.Audio); err != nil {
		return err
	}
	if channels <= 0 || channels > maxChannels {
		return fmt.Errorf("%w: %d channels", element.ErrInvalidArg, channels)
	}
	c.dest = channels
	return nil
}

// DestChannels returns output channel count.
func (c *ChCvt) DestChannels() int {
	return c.dest
}

// SetParam supports "channels".
func (c *ChCvt) SetParam(name, value string) error {
	if name != "channels" {
		return fmt.Errorf("%w: %s.%s", element.ErrUnknownParam, c.Name(), name)
	}
	return setInt(name, value, c.SetDestChannels)
}

// Open derives output format from the source.
func (c *ChCvt) Open() error {
	s := sourceSound(c.Audio)
	if !pcm.Supported(s.Bits) {
		return fmt.Errorf("%w: source %d bits", element.ErrInvalidArg, s.Bits)
	}
	c.src, c.out, c.bits = s.Channels, c.dest, s.Bits
	if c.out == 0 {
		c.out = s.Channels
	}
	s.Channels = c.out
	return c.UpdateSound(withBitrate(s))
}

// Process converts one input chunk.
func (c *ChCvt) Process() (job.Result, error) {
	bps := c.bits / 8
	from, to := c.src*bps, c.out*bps
	return convert(c.Audio, c.src == c.out,
		func(n int) int { return n / from * to },
		func(in, out []byte) int {
			frames := len(in) / from
			for i := 0; i < frames; i++ {
				c.frame(in[i*from:(i+1)*from], out[i*to:(i+1)*to], bps)
			}
			return frames * to
		})
}

func (c *ChCvt) frame(in, out []byte, bps int) {
	switch {
	case c.src == 1:
		for ch := 0; ch < c.out; ch++ {
			copy(out[ch*bps:], in[:bps])
		}
	case c.out == 1:
		var sum int64
		for ch := 0; ch < c.src; ch++ {
			sum += int64(pcm.Sample(in[ch*bps:], c.bits))
		}
		pcm.PutSample(out, c.bits, int32(sum/int64(c.src)))
	default:
		for ch := 0; ch < c.out; ch++ {
			copy(out[ch*bps:], in[min(ch, c.src-1)*bps:][:bps])
		}
	}
}

// Close does nothing.
func (c *ChCvt) Close() error {
	return nil
}

// Reset forgets negotiated layout.
func (c *ChCvt) Reset() error {
	c.src, c.out, c.bits = 0, 0, 0
	return nil
}
