package audio

import (
	"fmt"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/internal/pcm"
	"github.com/dudk/gmf/job"
)

// BitCvt converts sample bit depth.
type BitCvt struct {
	*element.Audio

	dest int
	// negotiated at open
	src, out int
}

// NewBitCvt returns bit depth converter. Zero bits keep the source depth.
func NewBitCvt(bits int) *BitCvt {
	return &BitCvt{
		Audio: element.NewAudio(element.Config{
			Name:       BitCvtName,
			Dependency: true,
			Caps:       []element.Cap{element.CapAudioBitConvert},
		}),
		dest: bits,
	}
}

// SetDestBits sets output bit depth.
func (c *BitCvt) SetDestBits(bits int) error {
	if err := configurable(c.Audio); err != nil {
		return err
	}
	if !pcm.Supported(bits) {
		return fmt.Errorf("%w: %d bits", element.ErrInvalidArg, bits)
	}
	c.dest = bits
	return nil
}

// DestBits returns output bit depth.
func (c *BitCvt) DestBits() int {
	return c.dest
}

// SetParam supports "bits".
func (c *BitCvt) SetParam(name, value string) error {
	if name != "bits" {
		return fmt.Errorf("%w: %s.%s", element.ErrUnknownParam, c.Name(), name)
	}
	return setInt(name, value, c.SetDestBits)
}

// Open derives output format from the source.
func (c *BitCvt) Open() error {
	s := sourceSound(c.Audio)
	if !pcm.Supported(s.Bits) {
		return fmt.Errorf("%w: source %d bits", element.ErrInvalidArg, s.Bits)
	}
	c.src, c.out = s.Bits, c.dest
	if c.out == 0 {
		c.out = s.Bits
	}
	s.Bits = c.out
	return c.UpdateSound(withBitrate(s))
}

// Process converts one input chunk.
func (c *BitCvt) Process() (job.Result, error) {
	from, to := c.src/8, c.out/8
	return convert(c.Audio, c.src == c.out,
		func(n int) int { return n / from * to },
		func(in, out []byte) int {
			samples := len(in) / from
			for i := 0; i < samples; i++ {
				v := pcm.Convert(pcm.Sample(in[i*from:], c.src), c.src, c.out)
				pcm.PutSample(out[i*to:], c.out, v)
			}
			return samples * to
		})
}

// Close does nothing.
func (c *BitCvt) Close() error {
	return nil
}

// Reset forgets negotiated source depth.
func (c *BitCvt) Reset() error {
	c.src, c.out = 0, 0
	return nil
}
