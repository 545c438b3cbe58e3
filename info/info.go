// Package info holds stream metadata records reported between elements.
package info

import (
	"fmt"

	"github.com/go-audio/audio"
)

// Type identifies the record carried by a REPORT_INFO event.
type Type int

// Info types.
const (
	SoundType Type = iota + 1
	VideoType
	FileType
	PicType
)

func (t Type) String() string {
	switch t {
	case SoundType:
		return "sound"
	case VideoType:
		return "video"
	case FileType:
		return "file"
	case PicType:
		return "pic"
	}
	return fmt.Sprintf("info(%d)", int(t))
}

// Sound describes an audio stream.
type Sound struct {
	SampleRate int
	Bitrate    int
	Channels   int
	Bits       int
	// FormatID is a codec specific tag, e.g. a FourCC.
	FormatID uint32
}

// BytesPerFrame returns size of one interleaved sample frame.
func (s Sound) BytesPerFrame() int {
	return s.Channels * s.Bits / 8
}

// Valid reports whether the record describes a usable PCM layout.
func (s Sound) Valid() bool {
	return s.SampleRate > 0 && s.Channels > 0 && s.Bits > 0 && s.Bits%8 == 0
}

// Format returns go-audio representation of the stream.
func (s Sound) Format() *audio.Format {
	return &audio.Format{
		NumChannels: s.Channels,
		SampleRate:  s.SampleRate,
	}
}

// SoundFromFormat builds a record from go-audio format and bit depth.
func SoundFromFormat(f *audio.Format, bits int) Sound {
	if f == nil {
		return Sound{Bits: bits}
	}
	return Sound{
		SampleRate: f.SampleRate,
		Channels:   f.NumChannels,
		Bits:       bits,
		Bitrate:    f.SampleRate * f.NumChannels * bits,
	}
}

func (s Sound) String() string {
	return fmt.Sprintf("%dHz %dch %dbit", s.SampleRate, s.Channels, s.Bits)
}

// Video describes a video stream.
type Video struct {
	Codec   uint32
	Width   int
	Height  int
	FPS     int
	Bitrate int
}

// File describes the resource behind an endpoint.
type File struct {
	URI  string
	Size int64
	Pos  int64
}

// Pic describes a picture.
type Pic struct {
	Width  int
	Height int
}
