// Package test contains helpers shared by gmf package tests.
package test

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/internal/pcm"
)

// Sound formats used across tests.
var (
	Mono16   = info.Sound{SampleRate: 8000, Channels: 1, Bits: 16, Bitrate: 8000 * 16}
	Stereo16 = info.Sound{SampleRate: 44100, Channels: 2, Bits: 16, Bitrate: 44100 * 2 * 16}
	Stereo24 = info.Sound{SampleRate: 48000, Channels: 2, Bits: 24, Bitrate: 48000 * 2 * 24}
)

// PCM returns frames of interleaved samples of format s. Sample values are
// a ramp, so reordering and loss are visible in comparisons.
func PCM(s info.Sound, frames int) []byte {
	bps := s.Bits / 8
	b := make([]byte, frames*s.Channels*bps)
	max := int32(1)<<uint(s.Bits-1) - 1
	for i := 0; i < frames*s.Channels; i++ {
		v := int32(i*7%int(max)) - max/2
		pcm.PutSample(b[i*bps:], s.Bits, v)
	}
	return b
}

// WriteWav writes data of format s to a wav file at path.
func WriteWav(path string, s info.Sound, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	e := wav.NewEncoder(f, s.SampleRate, s.Bits, s.Channels, 1)
	bps := s.Bits / 8
	ib := &audio.IntBuffer{
		Format:         s.Format(),
		Data:           make([]int, len(data)/bps),
		SourceBitDepth: s.Bits,
	}
	for i := range ib.Data {
		v := pcm.Sample(data[i*bps:], s.Bits)
		if s.Bits == 8 {
			v += 128
		}
		ib.Data[i] = int(v)
	}
	if err := e.Write(ib); err != nil {
		f.Close()
		return err
	}
	if err := e.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadWav returns format and PCM data of a wav file.
func ReadWav(path string) (info.Sound, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return info.Sound{}, nil, err
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return info.Sound{}, nil, fmt.Errorf("%s is not a valid wav", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return info.Sound{}, nil, err
	}
	bits := int(d.BitDepth)
	s := info.SoundFromFormat(d.Format(), bits)
	bps := bits / 8
	data := make([]byte, len(buf.Data)*bps)
	for i, v := range buf.Data {
		if bits == 8 {
			v -= 128
		}
		pcm.PutSample(data[i*bps:], bits, int32(v))
	}
	return s, data, nil
}
