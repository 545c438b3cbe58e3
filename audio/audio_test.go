package audio_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/gmf/audio"
	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/internal/pcm"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/payload"
	"github.com/dudk/gmf/port"
	"github.com/dudk/gmf/test"
)

// harness links element ports to producer and consumer ports driven by the
// test.
type harness struct {
	t         *testing.T
	el        element.Element
	producers []*port.Port
	consumers []*port.Port
	reported  info.Sound
}

func newHarness(t *testing.T, el element.Element, ins, outs int, src info.Sound) *harness {
	t.Helper()
	h := &harness{t: t, el: el}
	b := el.Core()
	for i := 0; i < ins; i++ {
		producer, in := port.NewOut(port.Byte, nil), port.NewIn(port.Byte, nil)
		assert.Nil(t, port.Link(producer, in))
		assert.Nil(t, b.RegisterIn(in))
		h.producers = append(h.producers, producer)
	}
	for i := 0; i < outs; i++ {
		out, consumer := port.NewOut(port.Byte, nil), port.NewIn(port.Byte, nil)
		assert.Nil(t, port.Link(out, consumer))
		assert.Nil(t, b.RegisterOut(out))
		h.consumers = append(h.consumers, consumer)
	}
	b.SetEmitter(func(pkt event.Packet) error {
		if s, ok := pkt.Payload.(info.Sound); ok {
			h.reported = s
		}
		return nil
	})
	if src.Valid() {
		r := el.(element.EventReceiver)
		assert.Nil(t, r.ReceiveEvent(event.Packet{
			From:    "upstream",
			Type:    event.ReportInfo,
			Sub:     int(info.SoundType),
			Payload: src,
		}, true))
	}
	return h
}

func (h *harness) open() {
	h.t.Helper()
	ret, err := element.Open(h.el)
	assert.Nil(h.t, err)
	assert.Equal(h.t, job.OK, ret)
	assert.Equal(h.t, event.Running, h.el.Core().State())
}

func (h *harness) push(i int, data []byte, done bool) *payload.Payload {
	h.t.Helper()
	producer := h.producers[i]
	pl, _, err := producer.AcquireOut(nil, max(len(data), 1), port.NoWait)
	assert.Nil(h.t, err)
	copy(pl.Buf, data)
	pl.ValidSize, pl.IsDone = len(data), done
	assert.Nil(h.t, producer.ReleaseOut(pl, port.NoWait))
	return pl
}

func (h *harness) process() job.Result {
	h.t.Helper()
	ret, err := element.Process(h.el)
	assert.Nil(h.t, err)
	return ret
}

func (h *harness) pull(i int) ([]byte, bool) {
	h.t.Helper()
	consumer := h.consumers[i]
	if consumer.Payload() == nil {
		return nil, false
	}
	pl, _, err := consumer.AcquireIn(nil, 0, port.NoWait)
	assert.Nil(h.t, err)
	data := append([]byte{}, pl.Data()...)
	done := pl.IsDone
	assert.Nil(h.t, consumer.ReleaseIn(pl, port.NoWait))
	return data, done
}

func (h *harness) destroy() {
	assert.Nil(h.t, element.Destroy(h.el))
	for _, p := range h.producers {
		p.Close()
	}
	for _, p := range h.consumers {
		p.Close()
	}
}

func samples(bits int, values ...int32) []byte {
	bps := bits / 8
	b := make([]byte, len(values)*bps)
	for i, v := range values {
		pcm.PutSample(b[i*bps:], bits, v)
	}
	return b
}

func values(bits int, b []byte) []int32 {
	bps := bits / 8
	v := make([]int32, len(b)/bps)
	for i := range v {
		v[i] = pcm.Sample(b[i*bps:], bits)
	}
	return v
}

func TestCopier(t *testing.T) {
	c := audio.NewCopier()
	assert.False(t, c.Dependency())
	h := newHarness(t, c, 1, 1, test.Stereo16)
	defer h.destroy()
	h.open()
	assert.Equal(t, test.Stereo16, h.reported)

	data := test.PCM(test.Stereo16, 10)
	pl := h.push(0, data, false)
	assert.Equal(t, job.OK, h.process())
	assert.Same(t, pl, h.consumers[0].Payload())
	got, done := h.pull(0)
	assert.Equal(t, data, got)
	assert.False(t, done)

	// info changes are forwarded while running
	c.ReceiveEvent(event.Packet{Type: event.ReportInfo, Sub: int(info.SoundType), Payload: test.Mono16}, true)
	assert.Equal(t, test.Mono16, h.reported)

	h.push(0, nil, true)
	assert.Equal(t, job.Done, h.process())
	got, done = h.pull(0)
	assert.Empty(t, got)
	assert.True(t, done)
	assert.Equal(t, event.Finished, c.State())
}

func TestBitCvt(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		in, out  []int32
	}{
		{name: "16 to 24", from: 16, to: 24, in: []int32{0x1234, -2}, out: []int32{0x123400, -512}},
		{name: "24 to 16", from: 24, to: 16, in: []int32{0x123456, -0x100}, out: []int32{0x1234, -1}},
		{name: "16 to 8", from: 16, to: 8, in: []int32{0x7f00, -0x8000}, out: []int32{0x7f, -0x80}},
		{name: "8 to 32", from: 8, to: 32, in: []int32{1, -1}, out: []int32{1 << 24, -1 << 24}},
		{name: "same", from: 16, to: 16, in: []int32{1, 2, 3}, out: []int32{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := audio.NewBitCvt(0)
			assert.Nil(t, c.SetParam("bits", "32"))
			assert.Nil(t, c.SetDestBits(tt.to))
			src := info.Sound{SampleRate: 8000, Channels: 1, Bits: tt.from}
			h := newHarness(t, c, 1, 1, src)
			defer h.destroy()
			h.open()
			assert.Equal(t, tt.to, h.reported.Bits)
			assert.Equal(t, 8000*tt.to, h.reported.Bitrate)

			h.push(0, samples(tt.from, tt.in...), true)
			assert.Equal(t, job.Done, h.process())
			got, done := h.pull(0)
			assert.Equal(t, tt.out, values(tt.to, got))
			assert.True(t, done)
		})
	}
}

func TestParams(t *testing.T) {
	c := audio.NewBitCvt(16)
	assert.True(t, errors.Is(c.SetDestBits(12), element.ErrInvalidArg))
	assert.True(t, errors.Is(c.SetParam("bits", "x"), element.ErrInvalidArg))
	assert.True(t, errors.Is(c.SetParam("rate", "8000"), element.ErrUnknownParam))

	r := audio.NewRateCvt(0)
	assert.Nil(t, r.SetParam("rate", "16000"))
	assert.Equal(t, 16000, r.DestRate())
	assert.True(t, errors.Is(r.SetDestRate(0), element.ErrInvalidArg))

	ch := audio.NewChCvt(0)
	assert.Nil(t, ch.SetParam("channels", "1"))
	assert.Equal(t, 1, ch.DestChannels())
	assert.True(t, errors.Is(ch.SetDestChannels(0), element.ErrInvalidArg))

	h := newHarness(t, ch, 1, 1, test.Stereo16)
	defer h.destroy()
	h.open()
	assert.True(t, errors.Is(ch.SetDestChannels(2), element.ErrInvalidState))
}

func TestChCvt(t *testing.T) {
	t.Run("mono to stereo", func(t *testing.T) {
		h := newHarness(t, audio.NewChCvt(2), 1, 1, test.Mono16)
		defer h.destroy()
		h.open()
		assert.Equal(t, 2, h.reported.Channels)
		h.push(0, samples(16, 1, 2, 3), false)
		assert.Equal(t, job.OK, h.process())
		got, _ := h.pull(0)
		assert.Equal(t, []int32{1, 1, 2, 2, 3, 3}, values(16, got))
	})
	t.Run("stereo to mono", func(t *testing.T) {
		h := newHarness(t, audio.NewChCvt(1), 1, 1, test.Stereo16)
		defer h.destroy()
		h.open()
		assert.Equal(t, 1, h.reported.Channels)
		h.push(0, samples(16, 10, 20, -10, -30, 7, 8), false)
		assert.Equal(t, job.OK, h.process())
		got, _ := h.pull(0)
		assert.Equal(t, []int32{15, -20, 7}, values(16, got))
	})
	t.Run("stereo to quad", func(t *testing.T) {
		h := newHarness(t, audio.NewChCvt(4), 1, 1, test.Stereo16)
		defer h.destroy()
		h.open()
		h.push(0, samples(16, 1, 2), false)
		assert.Equal(t, job.OK, h.process())
		got, _ := h.pull(0)
		assert.Equal(t, []int32{1, 2, 2, 2}, values(16, got))
	})
	t.Run("same", func(t *testing.T) {
		h := newHarness(t, audio.NewChCvt(2), 1, 1, test.Stereo16)
		defer h.destroy()
		h.open()
		pl := h.push(0, samples(16, 1, 2), false)
		assert.Equal(t, job.OK, h.process())
		assert.Same(t, pl, h.consumers[0].Payload())
		got, _ := h.pull(0)
		assert.Equal(t, []int32{1, 2}, values(16, got))
	})
}

func TestRateCvt(t *testing.T) {
	t.Run("upsample across chunks", func(t *testing.T) {
		h := newHarness(t, audio.NewRateCvt(16000), 1, 1, test.Mono16)
		defer h.destroy()
		h.open()
		assert.Equal(t, 16000, h.reported.SampleRate)

		h.push(0, samples(16, 0, 100, 200, 300), false)
		assert.Equal(t, job.OK, h.process())
		got, _ := h.pull(0)
		assert.Equal(t, []int32{0, 50, 100, 150, 200, 250, 300}, values(16, got))

		h.push(0, samples(16, 400), true)
		assert.Equal(t, job.Done, h.process())
		got, done := h.pull(0)
		assert.Equal(t, []int32{350, 400}, values(16, got))
		assert.True(t, done)
	})
	t.Run("downsample stereo", func(t *testing.T) {
		h := newHarness(t, audio.NewRateCvt(4000), 1, 1, test.Stereo16)
		defer h.destroy()
		h.open()
		h.push(0, samples(16, 1, -1, 2, -2, 3, -3, 4, -4), false)
		assert.Equal(t, job.OK, h.process())
		got, _ := h.pull(0)
		assert.Equal(t, []int32{1, -1}, values(16, got))
	})
	t.Run("same rate", func(t *testing.T) {
		h := newHarness(t, audio.NewRateCvt(0), 1, 1, test.Mono16)
		defer h.destroy()
		h.open()
		h.push(0, samples(16, 5, 6), false)
		assert.Equal(t, job.OK, h.process())
		got, _ := h.pull(0)
		assert.Equal(t, []int32{5, 6}, values(16, got))
	})
}

func TestDeinterleave(t *testing.T) {
	h := newHarness(t, audio.NewDeinterleave(), 1, 2, test.Stereo16)
	defer h.destroy()
	h.open()
	assert.Equal(t, 1, h.reported.Channels)

	h.push(0, samples(16, 1, -1, 2, -2, 3, -3), true)
	assert.Equal(t, job.Done, h.process())
	left, done := h.pull(0)
	assert.Equal(t, []int32{1, 2, 3}, values(16, left))
	assert.True(t, done)
	right, done := h.pull(1)
	assert.Equal(t, []int32{-1, -2, -3}, values(16, right))
	assert.True(t, done)

	t.Run("ports mismatch", func(t *testing.T) {
		h := newHarness(t, audio.NewDeinterleave(), 1, 1, test.Stereo16)
		defer h.destroy()
		ret, err := element.Open(h.el)
		assert.Equal(t, job.Fail, ret)
		assert.True(t, errors.Is(err, element.ErrInvalidArg))
		assert.Equal(t, event.Error, h.el.Core().State())
	})
}

func TestInterleave(t *testing.T) {
	h := newHarness(t, audio.NewInterleave(), 2, 1, test.Mono16)
	defer h.destroy()
	h.open()
	assert.Equal(t, 2, h.reported.Channels)

	h.push(0, samples(16, 1, 2, 3), false)
	// waits for every input
	assert.Equal(t, job.OK, h.process())
	got, _ := h.pull(0)
	assert.Nil(t, got)

	h.push(1, samples(16, -1, -2, -3), true)
	assert.Equal(t, job.Done, h.process())
	got, done := h.pull(0)
	assert.Equal(t, []int32{1, -1, 2, -2, 3, -3}, values(16, got))
	assert.True(t, done)

	t.Run("stereo input", func(t *testing.T) {
		h := newHarness(t, audio.NewInterleave(), 2, 1, test.Stereo16)
		defer h.destroy()
		ret, err := element.Open(h.el)
		assert.Equal(t, job.Fail, ret)
		assert.True(t, errors.Is(err, element.ErrInvalidArg))
	})
}

func TestEncoder(t *testing.T) {
	// 20ms of 8kHz mono 16 bit
	const frame = 320
	h := newHarness(t, audio.NewEncoder(audio.PCMConfig{}), 1, 1, test.Mono16)
	defer h.destroy()
	h.open()
	assert.Equal(t, test.Mono16, h.reported)

	data := test.PCM(test.Mono16, 768)
	var got []byte
	step := func(expected job.Result) {
		t.Helper()
		h.process()
		assert.Equal(t, expected, h.el.Core().LastResult())
		if b, _ := h.pull(0); b != nil {
			got = append(got, b...)
		}
	}

	h.push(0, data[:768], false)
	step(job.Truncate)
	step(job.Truncate)
	// 128 bytes left, input is released
	step(job.Continue)
	assert.Nil(t, h.el.Core().In().Payload())
	assert.Len(t, got, 2*frame)

	h.push(0, data[768:], true)
	step(job.Truncate)
	step(job.Truncate)
	step(job.Done)
	assert.Equal(t, data, got)
	assert.Equal(t, event.Finished, h.el.Core().State())
}

func TestDecoder(t *testing.T) {
	d := audio.NewDecoder(audio.PCMConfig{})
	h := newHarness(t, d, 1, 1, test.Stereo24)
	defer h.destroy()
	h.open()
	assert.Equal(t, test.Stereo24, h.reported)

	data := test.PCM(test.Stereo24, 20)
	h.push(0, data, true)
	assert.Equal(t, job.Done, h.process())
	got, done := h.pull(0)
	assert.Equal(t, data, got)
	assert.True(t, done)
}

type doubler struct{}

func (doubler) NewEncoder(cfg audio.CodecConfig, src info.Sound) (audio.FrameEncoder, error) {
	return nil, errors.New("no encoder")
}

func (doubler) NewDecoder(cfg audio.CodecConfig, src info.Sound) (audio.FrameDecoder, error) {
	return doublerDecoder{sound: src}, nil
}

// doublerDecoder repeats every input byte.
type doublerDecoder struct {
	sound info.Sound
}

func (d doublerDecoder) OutSize(n int) int { return 2 * n }

func (d doublerDecoder) Decode(in, out []byte) (int, error) {
	for i, b := range in {
		out[2*i], out[2*i+1] = b, b
	}
	return 2 * len(in), nil
}

func (d doublerDecoder) Sound() info.Sound { return d.sound }

func (d doublerDecoder) Close() error { return nil }

func TestCodecs(t *testing.T) {
	const doubleType = audio.CodecType("double")
	assert.True(t, errors.Is(audio.RegisterCodec(audio.PCM, doubler{}), audio.ErrCodecExists))
	if err := audio.RegisterCodec(doubleType, doubler{}); err != nil {
		assert.True(t, errors.Is(err, audio.ErrCodecExists))
	}
	assert.Contains(t, audio.Codecs(), doubleType)
	assert.Contains(t, audio.Codecs(), audio.PCM)

	d := audio.NewDecoder(audio.PCMConfig{})
	assert.True(t, errors.Is(d.SetConfig(audio.ExternalConfig{Codec: "missing"}), audio.ErrUnknownCodec))
	assert.Nil(t, d.SetConfig(audio.ExternalConfig{Codec: doubleType}))
	h := newHarness(t, d, 1, 1, test.Mono16)
	defer h.destroy()
	h.open()
	h.push(0, []byte{1, 2}, false)
	assert.Equal(t, job.OK, h.process())
	got, _ := h.pull(0)
	assert.Equal(t, []byte{1, 1, 2, 2}, got)

	e := audio.NewEncoder(audio.ExternalConfig{Codec: doubleType})
	he := newHarness(t, e, 1, 1, test.Mono16)
	defer he.destroy()
	ret, err := element.Open(e)
	assert.Equal(t, job.Fail, ret)
	assert.NotNil(t, err)
}

type registry map[string][]element.Cap

func (r registry) RegisterElement(name string, caps []element.Cap, factory func() element.Element) error {
	if _, ok := r[name]; ok {
		return errors.New("exists")
	}
	if el := factory(); el.Core().Name() != name {
		return errors.New("name mismatch")
	}
	r[name] = caps
	return nil
}

func TestRegister(t *testing.T) {
	r := registry{}
	assert.Nil(t, audio.Register(r))
	assert.Len(t, r, 8)
	assert.Equal(t, []element.Cap{element.CapAudioRateConvert}, r[audio.RateCvtName])
	assert.NotNil(t, audio.Register(r))
}
