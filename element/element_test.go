package element_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/payload"
	"github.com/dudk/gmf/port"
)

var errTest = errors.New("test error")

type testElement struct {
	*element.Audio
	opened, processed, closed int

	ret      job.Result
	err      error
	errOpen  error
	errClose error
}

func newTestElement(dependency bool) *testElement {
	return &testElement{
		Audio: element.NewAudio(element.Config{
			Name:       "test",
			Dependency: dependency,
		}),
	}
}

func (e *testElement) Open() error {
	e.opened++
	return e.errOpen
}

func (e *testElement) Process() (job.Result, error) {
	e.processed++
	return e.ret, e.err
}

func (e *testElement) Close() error {
	e.closed++
	return e.errClose
}

// linkedIn returns in port linked to a producer out port.
func linkedIn() (in, producer *port.Port) {
	producer = port.NewOut(port.Byte, nil)
	in = port.NewIn(port.Byte, nil)
	port.Link(producer, in)
	return in, producer
}

func produce(t *testing.T, producer *port.Port) {
	t.Helper()
	pl, _, err := producer.AcquireOut(nil, 8, port.WaitForever)
	assert.Nil(t, err)
	pl.ValidSize = 8
	assert.Nil(t, producer.ReleaseOut(pl, port.WaitForever))
}

func TestBase(t *testing.T) {
	el := newTestElement(false)
	assert.Equal(t, "test", el.Name())
	assert.NotEmpty(t, el.ID())
	assert.Equal(t, event.Initialized, el.State())
	assert.Equal(t, 768, el.InSize())
	assert.Equal(t, 768, el.OutSize())
	assert.Equal(t, 16, el.OutAlign())
	assert.True(t, el.Configurable())

	dep := newTestElement(true)
	assert.Equal(t, event.None, dep.State())
	assert.True(t, dep.Dependency())

	unnamed := element.NewBase(element.Config{})
	assert.Contains(t, unnamed.Name(), "element-")
}

func TestPorts(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		el := newTestElement(false)
		in, out := port.NewIn(port.Byte, nil), port.NewOut(port.Byte, nil)
		assert.Nil(t, el.RegisterIn(in))
		assert.Nil(t, el.RegisterOut(out))
		assert.Equal(t, out, in.Sibling())
		assert.Equal(t, in, out.Sibling())
		assert.Equal(t, in, el.In())
		assert.Equal(t, out, el.Out())

		assert.True(t, errors.Is(el.RegisterIn(port.NewIn(port.Byte, nil)), element.ErrPortCaps))
		assert.True(t, errors.Is(el.RegisterOut(port.NewOut(port.Byte, nil)), element.ErrPortCaps))
		assert.True(t, errors.Is(el.RegisterIn(port.NewOut(port.Byte, nil)), element.ErrInvalidArg))

		assert.Nil(t, el.UnregisterIn(in))
		assert.Nil(t, in.Sibling())
		assert.Nil(t, out.Sibling())
		assert.Nil(t, el.In())
		assert.True(t, errors.Is(el.UnregisterIn(in), element.ErrInvalidArg))
	})
	t.Run("multi", func(t *testing.T) {
		b := element.NewBase(element.Config{
			Name: "multi",
			In:   element.PortAttr{Shape: element.Single, DataSize: 64},
			Out:  element.PortAttr{Shape: element.Multi, DataSize: 32},
		})
		in := port.NewIn(port.Byte, nil)
		assert.Nil(t, b.RegisterIn(in))
		assert.Nil(t, b.RegisterOut(port.NewOut(port.Byte, nil)))
		assert.Nil(t, b.RegisterOut(port.NewOut(port.Byte, nil)))
		assert.Equal(t, 2, len(b.Outs()))
		assert.Equal(t, b.Outs()[0], in.Sibling())
		assert.Equal(t, 64, b.InSize())
		assert.Equal(t, 32, b.OutSize())
		// not shared attr disables offers
		assert.False(t, in.Shared())
	})
	t.Run("close", func(t *testing.T) {
		el := newTestElement(false)
		closed := 0
		out := port.NewOut(port.Byte, port.Funcs{}, port.WithCloser(func() error {
			closed++
			return nil
		}))
		assert.Nil(t, el.RegisterOut(out))
		assert.Nil(t, element.Destroy(el))
		assert.Equal(t, 1, closed)
		assert.Nil(t, el.Out())
		assert.Equal(t, event.None, el.State())
	})
}

func TestOpen(t *testing.T) {
	t.Run("deferred", func(t *testing.T) {
		el := newTestElement(true)
		ret, err := element.Open(el)
		assert.Nil(t, err)
		assert.Equal(t, job.OK, ret)
		assert.Equal(t, 0, el.opened)

		assert.Nil(t, el.ReceiveEvent(event.Packet{
			Type:    event.ReportInfo,
			Sub:     int(info.SoundType),
			Payload: info.Sound{SampleRate: 8000, Channels: 1, Bits: 16},
		}, true))
		assert.Equal(t, event.Initialized, el.State())
		ret, err = element.Open(el)
		assert.Nil(t, err)
		assert.Equal(t, job.OK, ret)
		assert.Equal(t, 1, el.opened)
		assert.Equal(t, event.Running, el.State())
		assert.Equal(t, element.JobOpen, el.JobMask()&element.JobOpen)
		assert.False(t, el.Configurable())

		// opened once
		_, err = element.Open(el)
		assert.Nil(t, err)
		assert.Equal(t, 1, el.opened)
	})
	t.Run("error", func(t *testing.T) {
		el := newTestElement(false)
		el.errOpen = errTest
		ret, err := element.Open(el)
		assert.True(t, errors.Is(err, errTest))
		assert.Equal(t, job.Fail, ret)
		assert.Equal(t, event.Error, el.State())

		// close is safe after failed open
		_, err = element.Close(el)
		assert.Nil(t, err)
		assert.Equal(t, 1, el.closed)
	})
	t.Run("lazy", func(t *testing.T) {
		el := newTestElement(true)
		in, producer := linkedIn()
		assert.Nil(t, el.RegisterIn(in))

		// nothing arrived
		ret, err := element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, job.OK, ret)
		assert.Equal(t, 0, el.opened)

		// data without info opens with defaults
		produce(t, producer)
		_, err = element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, 1, el.opened)
		assert.Equal(t, 1, el.processed)
	})
}

func TestProcess(t *testing.T) {
	setup := func(ret job.Result, err error) (*testElement, *port.Port) {
		el := newTestElement(false)
		el.ret, el.err = ret, err
		in, producer := linkedIn()
		el.RegisterIn(in)
		element.Open(el)
		return el, producer
	}
	t.Run("idle without input", func(t *testing.T) {
		el, _ := setup(job.OK, nil)
		ret, err := element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, job.OK, ret)
		assert.Equal(t, 0, el.processed)
	})
	t.Run("idle while consumer busy", func(t *testing.T) {
		el, producer := setup(job.OK, nil)
		out, next := port.NewOut(port.Byte, nil), port.NewIn(port.Byte, nil)
		port.Link(out, next)
		el.RegisterOut(out)
		next.SetPayload(payload.New())
		produce(t, producer)
		_, err := element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, 0, el.processed)

		next.SetPayload(nil)
		_, err = element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, 1, el.processed)
	})
	t.Run("continue", func(t *testing.T) {
		el, producer := setup(job.Continue, nil)
		produce(t, producer)
		ret, err := element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, job.OK, ret)
		assert.Equal(t, job.Continue, el.LastResult())
	})
	t.Run("truncate", func(t *testing.T) {
		el, producer := setup(job.Truncate, nil)
		produce(t, producer)
		ret, err := element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, job.OK, ret)

		// buffered data is processed without new input
		el.In().SetPayload(nil)
		element.Process(el)
		assert.Equal(t, 2, el.processed)
	})
	t.Run("done", func(t *testing.T) {
		el, producer := setup(job.Done, nil)
		produce(t, producer)
		ret, err := element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, job.Done, ret)
		assert.Equal(t, event.Finished, el.State())
	})
	t.Run("fail", func(t *testing.T) {
		el, producer := setup(job.Fail, nil)
		produce(t, producer)
		ret, err := element.Process(el)
		assert.True(t, errors.Is(err, element.ErrFail))
		assert.Equal(t, job.Fail, ret)
		assert.Equal(t, event.Error, el.State())
	})
	t.Run("error", func(t *testing.T) {
		el, producer := setup(job.OK, errTest)
		produce(t, producer)
		ret, err := element.Process(el)
		assert.True(t, errors.Is(err, errTest))
		assert.Equal(t, job.Fail, ret)
	})
	t.Run("abort", func(t *testing.T) {
		el, producer := setup(job.OK, port.ErrAbort)
		produce(t, producer)
		ret, err := element.Process(el)
		assert.Nil(t, err)
		assert.Equal(t, job.OK, ret)
		assert.Equal(t, event.Running, el.State())
	})
}

func TestClose(t *testing.T) {
	el := newTestElement(false)
	_, err := element.Close(el)
	assert.Nil(t, err)
	assert.Equal(t, 0, el.closed)

	element.Open(el)
	_, err = element.Close(el)
	assert.Nil(t, err)
	assert.Equal(t, 1, el.closed)
	_, err = element.Close(el)
	assert.Nil(t, err)
	assert.Equal(t, 1, el.closed)

	el.errClose = errTest
	element.Reset(el)
	assert.Equal(t, uint8(0), el.JobMask())
	assert.Equal(t, event.Initialized, el.State())
	element.Open(el)
	ret, err := element.Close(el)
	assert.True(t, errors.Is(err, errTest))
	assert.Equal(t, job.Fail, ret)
	// failed close is not repeated
	_, err = element.Close(el)
	assert.Nil(t, err)
	assert.Equal(t, 2, el.closed)
}

func TestReceiveEvent(t *testing.T) {
	sound := info.Sound{SampleRate: 44100, Channels: 2, Bits: 16}
	pkt := event.Packet{From: "up", Type: event.ReportInfo, Sub: int(info.SoundType), Payload: sound}

	el := newTestElement(true)
	assert.Nil(t, el.ReceiveEvent(pkt, false))
	assert.Equal(t, sound, el.SourceSound())
	assert.Equal(t, event.Initialized, el.State())

	// only upstream changes info of an initialized element
	other := pkt
	other.Payload = info.Sound{SampleRate: 8000, Channels: 1, Bits: 8}
	assert.Nil(t, el.ReceiveEvent(other, false))
	assert.Equal(t, sound, el.SourceSound())
	assert.Nil(t, el.ReceiveEvent(other, true))
	assert.Equal(t, other.Payload, el.SourceSound())

	// other info types are ignored
	assert.Nil(t, el.ReceiveEvent(event.Packet{Type: event.ReportInfo, Sub: int(info.FileType)}, true))
	bad := pkt
	bad.Payload = "garbage"
	assert.True(t, errors.Is(el.ReceiveEvent(bad, true), element.ErrInvalidArg))
}

func TestAudioInfo(t *testing.T) {
	el := newTestElement(false)
	var reported []event.Packet
	el.SetEmitter(func(pkt event.Packet) error {
		reported = append(reported, pkt)
		return nil
	})
	sound := info.Sound{SampleRate: 16000, Channels: 1, Bits: 16}
	assert.Nil(t, el.UpdateSound(sound))
	assert.Equal(t, sound, el.SoundInfo())
	assert.Equal(t, 1, len(reported))
	assert.Equal(t, "test", reported[0].From)
	assert.Equal(t, sound, reported[0].Payload)

	el.SetFileInfo(info.File{URI: "a.wav"})
	el.SetFileSize(100)
	el.UpdateFilePos(10)
	el.UpdateFilePos(20)
	assert.Equal(t, info.File{URI: "a.wav", Size: 100, Pos: 30}, el.FileInfo())
	el.ResetInfo()
	assert.Equal(t, int64(0), el.FileInfo().Pos)
}

type testVideo struct {
	*element.Video
}

func TestVideo(t *testing.T) {
	v := testVideo{element.NewVideo(element.Config{Name: "video", Dependency: true})}
	vi := info.Video{Width: 320, Height: 240, FPS: 30}
	assert.Nil(t, v.ReceiveEvent(event.Packet{Type: event.ReportInfo, Sub: int(info.VideoType), Payload: vi}, true))
	assert.Equal(t, vi, v.SourceVideo())
	assert.Equal(t, event.Initialized, v.State())
	assert.Nil(t, v.UpdateVideo(vi))
	assert.Equal(t, vi, v.VideoInfo())
}

func TestCaps(t *testing.T) {
	caps := []element.Cap{element.CapAudioCopy, element.CapAudioDecoder}
	assert.True(t, element.HasCap(caps, element.CapAudioDecoder))
	assert.False(t, element.HasCap(caps, element.CapAudioEncoder))
}
