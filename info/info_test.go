package info_test

import (
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"

	"github.com/dudk/gmf/info"
)

func TestSound(t *testing.T) {
	s := info.Sound{SampleRate: 44100, Channels: 2, Bits: 16}
	assert.True(t, s.Valid())
	assert.Equal(t, 4, s.BytesPerFrame())
	assert.Equal(t, "44100Hz 2ch 16bit", s.String())

	f := s.Format()
	assert.Equal(t, 2, f.NumChannels)
	assert.Equal(t, 44100, f.SampleRate)

	back := info.SoundFromFormat(&audio.Format{NumChannels: 1, SampleRate: 8000}, 8)
	assert.Equal(t, info.Sound{SampleRate: 8000, Channels: 1, Bits: 8, Bitrate: 64000}, back)
	assert.False(t, info.SoundFromFormat(nil, 12).Valid())
}

func TestType(t *testing.T) {
	assert.Equal(t, info.Type(1), info.SoundType)
	assert.Equal(t, info.Type(4), info.PicType)
	assert.Equal(t, "video", info.VideoType.String())
}
