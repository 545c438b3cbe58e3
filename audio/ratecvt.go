package audio

import (
	"fmt"
	"math"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/internal/pcm"
	"github.com/dudk/gmf/job"
)

// RateCvt resamples with linear interpolation. The last input frame and the
// interpolation position are carried between chunks, so output doesn't
// depend on chunk boundaries.
type RateCvt struct {
	*element.Audio

	dest int

	src      int
	out      int
	channels int
	bits     int
	step     float64
	// pos is the next output position in input frames, -1 is the last
	// frame of the previous chunk.
	pos  float64
	prev []int32
}

// NewRateCvt returns resampler. Zero rate keeps the source rate.
func NewRateCvt(rate int) *RateCvt {
	in := element.DefaultPortAttr()
	in.Shared = false
	return &RateCvt{
		Audio: element.NewAudio(element.Config{
			Name:       RateCvtName,
			In:         in,
			Dependency: true,
			Caps:       []element.Cap{element.CapAudioRateConvert},
		}),
		dest: rate,
	}
}

// SetDestRate sets output sample rate.
func (c *RateCvt) SetDestRate(rate int) error {
	if err := configurable(c.Audio); err != nil {
		return err
	}
	if rate <= 0 {
		return fmt.Errorf("%w: rate %d", element.ErrInvalidArg, rate)
	}
	c.dest = rate
	return nil
}

// DestRate returns output sample rate.
func (c *RateCvt) DestRate() int {
	return c.dest
}

// SetParam supports "rate".
func (c *RateCvt) SetParam(name, value string) error {
	if name != "rate" {
		return fmt.Errorf("%w: %s.%s", element.ErrUnknownParam, c.Name(), name)
	}
	return setInt(name, value, c.SetDestRate)
}

// Open derives output format from the source.
func (c *RateCvt) Open() error {
	s := sourceSound(c.Audio)
	if !pcm.Supported(s.Bits) {
		return fmt.Errorf("%w: source %d bits", element.ErrInvalidArg, s.Bits)
	}
	c.src, c.out = s.SampleRate, c.dest
	if c.out == 0 {
		c.out = s.SampleRate
	}
	c.channels, c.bits = s.Channels, s.Bits
	c.step = float64(c.src) / float64(c.out)
	c.pos = 0
	c.prev = make([]int32, c.channels)
	s.SampleRate = c.out
	return c.UpdateSound(withBitrate(s))
}

// Process resamples one input chunk.
func (c *RateCvt) Process() (job.Result, error) {
	frame := c.channels * c.bits / 8
	return convert(c.Audio, c.src == c.out,
		func(n int) int { return (n/frame*c.out/c.src + 2) * frame },
		func(in, out []byte) int {
			return c.resample(in[:len(in)/frame*frame], out, frame)
		})
}

func (c *RateCvt) resample(in, out []byte, frame int) int {
	bps := c.bits / 8
	n := len(in) / frame
	sample := func(i, ch int) int32 {
		if i < 0 {
			return c.prev[ch]
		}
		return pcm.Sample(in[i*frame+ch*bps:], c.bits)
	}
	written := 0
	for n > 0 && c.pos <= float64(n-1) && written+frame <= len(out) {
		i := int(math.Floor(c.pos))
		frac := c.pos - float64(i)
		for ch := 0; ch < c.channels; ch++ {
			v := float64(sample(i, ch))
			if frac > 0 {
				v += (float64(sample(i+1, ch)) - v) * frac
			}
			pcm.PutSample(out[written+ch*bps:], c.bits, int32(math.Round(v)))
		}
		written += frame
		c.pos += c.step
	}
	if n > 0 {
		c.pos -= float64(n)
		for ch := 0; ch < c.channels; ch++ {
			c.prev[ch] = sample(n-1, ch)
		}
	}
	return written
}

// Close drops interpolation state.
func (c *RateCvt) Close() error {
	c.pos = 0
	return nil
}

// Reset forgets negotiated format.
func (c *RateCvt) Reset() error {
	c.src, c.out, c.channels, c.bits = 0, 0, 0, 0
	c.prev = nil
	return c.Close()
}
