package audio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/internal/pcm"
)

// CodecType names a codec implementation.
type CodecType string

// PCM is the built-in codec which frames raw samples.
const PCM CodecType = "pcm"

var (
	// ErrUnknownCodec is returned for codec types without implementation.
	ErrUnknownCodec = errors.New("audio: unknown codec")
	// ErrCodecExists is returned when a codec type is registered twice.
	ErrCodecExists = errors.New("audio: codec already registered")
)

// CodecConfig configures encoder and decoder elements. It's implemented by
// PCMConfig and ExternalConfig only.
type CodecConfig interface {
	Type() CodecType
	codecConfig()
}

// PCMConfig configures the PCM codec. Zero sound takes the upstream
// format, zero frame duration means 20ms frames.
type PCMConfig struct {
	Sound         info.Sound
	FrameDuration time.Duration
}

// Type returns PCM.
func (PCMConfig) Type() CodecType { return PCM }

func (PCMConfig) codecConfig() {}

// ExternalConfig configures a codec registered with RegisterCodec.
type ExternalConfig struct {
	Codec  CodecType
	Sound  info.Sound
	Params map[string]string
}

// Type returns configured codec type.
func (c ExternalConfig) Type() CodecType { return c.Codec }

func (ExternalConfig) codecConfig() {}

// FrameEncoder encodes fixed size frames.
type FrameEncoder interface {
	// FrameSize returns size of input frame and maximum size of encoded
	// frame.
	FrameSize() (in, out int)
	// Encode encodes one frame. The last frame of a stream may be
	// shorter.
	Encode(in, out []byte) (int, error)
	// Sound returns format of the encoded stream.
	Sound() info.Sound
	Close() error
}

// FrameDecoder decodes chunks of encoded stream.
type FrameDecoder interface {
	// OutSize returns maximum decoded size of n encoded bytes.
	OutSize(n int) int
	Decode(in, out []byte) (int, error)
	// Sound returns format of the decoded stream.
	Sound() info.Sound
	Close() error
}

// Codec creates encoders and decoders. Src is the format received from
// upstream, it may be zero.
type Codec interface {
	NewEncoder(cfg CodecConfig, src info.Sound) (FrameEncoder, error)
	NewDecoder(cfg CodecConfig, src info.Sound) (FrameDecoder, error)
}

var codecs = struct {
	sync.RWMutex
	m map[CodecType]Codec
}{
	m: map[CodecType]Codec{PCM: pcmCodec{}},
}

// RegisterCodec makes codec available for configs of type t.
func RegisterCodec(t CodecType, c Codec) error {
	if t == "" || c == nil {
		return fmt.Errorf("%w: codec %q", ErrUnknownCodec, t)
	}
	codecs.Lock()
	defer codecs.Unlock()
	if _, ok := codecs.m[t]; ok {
		return fmt.Errorf("%w: %s", ErrCodecExists, t)
	}
	codecs.m[t] = c
	return nil
}

// Codecs returns registered codec types.
func Codecs() []CodecType {
	codecs.RLock()
	defer codecs.RUnlock()
	types := make([]CodecType, 0, len(codecs.m))
	for t := range codecs.m {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func lookupCodec(cfg CodecConfig) (Codec, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrUnknownCodec)
	}
	codecs.RLock()
	defer codecs.RUnlock()
	c, ok := codecs.m[cfg.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, cfg.Type())
	}
	return c, nil
}

const defaultFrameDuration = 20 * time.Millisecond

type pcmCodec struct{}

func (pcmCodec) sound(cfg CodecConfig, src info.Sound) (info.Sound, time.Duration, error) {
	c, ok := cfg.(PCMConfig)
	if !ok {
		return info.Sound{}, 0, fmt.Errorf("%w: %T for pcm", ErrUnknownCodec, cfg)
	}
	s := src
	if c.Sound.Valid() {
		s = c.Sound
	}
	if !s.Valid() || !pcm.Supported(s.Bits) {
		return info.Sound{}, 0, fmt.Errorf("audio: pcm format %s not supported", s)
	}
	d := c.FrameDuration
	if d <= 0 {
		d = defaultFrameDuration
	}
	return withBitrate(s), d, nil
}

func (p pcmCodec) NewEncoder(cfg CodecConfig, src info.Sound) (FrameEncoder, error) {
	s, d, err := p.sound(cfg, src)
	if err != nil {
		return nil, err
	}
	frames := int(int64(s.SampleRate) * int64(d) / int64(time.Second))
	return &pcmFrames{sound: s, size: max(frames, 1) * s.BytesPerFrame()}, nil
}

func (p pcmCodec) NewDecoder(cfg CodecConfig, src info.Sound) (FrameDecoder, error) {
	s, _, err := p.sound(cfg, src)
	if err != nil {
		return nil, err
	}
	return &pcmFrames{sound: s}, nil
}

// pcmFrames copies whole sample frames.
type pcmFrames struct {
	sound info.Sound
	size  int
}

func (f *pcmFrames) FrameSize() (int, int) {
	return f.size, f.size
}

func (f *pcmFrames) Encode(in, out []byte) (int, error) {
	frame := f.sound.BytesPerFrame()
	return copy(out, in[:len(in)/frame*frame]), nil
}

func (f *pcmFrames) OutSize(n int) int {
	return n
}

func (f *pcmFrames) Decode(in, out []byte) (int, error) {
	return f.Encode(in, out)
}

func (f *pcmFrames) Sound() info.Sound {
	return f.sound
}

func (f *pcmFrames) Close() error {
	return nil
}
