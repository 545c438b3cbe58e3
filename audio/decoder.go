package audio

import (
	"fmt"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/job"
)

// Decoder decodes input chunks. With PCM config it passes data and stream
// info through.
type Decoder struct {
	*element.Audio

	cfg CodecConfig
	dec FrameDecoder
}

// NewDecoder returns decoder element.
func NewDecoder(cfg CodecConfig) *Decoder {
	return &Decoder{
		Audio: element.NewAudio(element.Config{
			Name:       DecoderName,
			Dependency: true,
			Caps:       []element.Cap{element.CapAudioDecoder},
		}),
		cfg: cfg,
	}
}

// SetConfig replaces codec config.
func (d *Decoder) SetConfig(cfg CodecConfig) error {
	if err := configurable(d.Audio); err != nil {
		return err
	}
	if _, err := lookupCodec(cfg); err != nil {
		return err
	}
	d.cfg = cfg
	return nil
}

// Open creates codec decoder and reports decoded format.
func (d *Decoder) Open() error {
	codec, err := lookupCodec(d.cfg)
	if err != nil {
		return err
	}
	dec, err := codec.NewDecoder(d.cfg, sourceSound(d.Audio))
	if err != nil {
		return err
	}
	d.dec = dec
	return d.UpdateSound(dec.Sound())
}

// Process decodes one input chunk.
func (d *Decoder) Process() (job.Result, error) {
	var errDecode error
	ret, err := convert(d.Audio, false, d.dec.OutSize, func(in, out []byte) int {
		n, err := d.dec.Decode(in, out)
		errDecode = err
		return n
	})
	if errDecode != nil {
		return job.Fail, fmt.Errorf("decode: %w", errDecode)
	}
	return ret, err
}

// Close releases codec.
func (d *Decoder) Close() error {
	if d.dec == nil {
		return nil
	}
	err := d.dec.Close()
	d.dec = nil
	return err
}
