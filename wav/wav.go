// Package wav provides endpoints which read and write wav files.
package wav

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dudk/gmf/endpoint"
	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/internal/pcm"
	"github.com/dudk/gmf/payload"
	"github.com/dudk/gmf/port"
)

// wavFormatPCM is the audio format tag of uncompressed wav.
const wavFormatPCM = 1

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("wav: only 8, 16, 24 and 32 bit depth is supported")
	// ErrInvalidFile is returned when file has no valid wav header.
	ErrInvalidFile = errors.New("wav: file is not valid")
	// ErrNoSoundInfo is returned when writer gets data before stream info.
	ErrNoSoundInfo = errors.New("wav: sound info not set")
)

type (
	// Reader reads PCM data of a wav file. Sound info is available after
	// Open.
	Reader struct {
		*endpoint.Base

		mu      sync.Mutex
		file    *os.File
		decoder *wav.Decoder
		ib      *audio.IntBuffer
		sound   info.Sound
		pcmLen  int64
		pos     int64
	}

	// Writer writes PCM data to a wav file. The header is built from the
	// sound info received before the first data.
	Writer struct {
		*endpoint.Base

		mu      sync.Mutex
		file    *os.File
		encoder *wav.Encoder
		ib      *audio.IntBuffer
		sound   info.Sound
		written int64
	}
)

var (
	_ endpoint.Endpoint      = (*Reader)(nil)
	_ endpoint.SoundReporter = (*Reader)(nil)
	_ endpoint.FileReporter  = (*Reader)(nil)
	_ endpoint.Endpoint      = (*Writer)(nil)
	_ endpoint.SoundReceiver = (*Writer)(nil)
)

// NewReader returns wav reader endpoint.
func NewReader(options ...endpoint.Option) *Reader {
	return &Reader{Base: endpoint.NewBase(port.In, "wav_reader", options...)}
}

// Open opens the file and reads the header.
func (r *Reader) Open() error {
	uri := r.URI()
	if uri == "" {
		return endpoint.ErrNoURI
	}
	file, err := os.Open(uri)
	if err != nil {
		return fmt.Errorf("open %s: %w", uri, err)
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return fmt.Errorf("%w: %s", ErrInvalidFile, uri)
	}
	bits := int(decoder.BitDepth)
	if !pcm.Supported(bits) {
		file.Close()
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bits)
	}
	if err := decoder.FwdToPCM(); err != nil {
		file.Close()
		return fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	r.mu.Lock()
	r.file, r.decoder = file, decoder
	r.sound = info.SoundFromFormat(decoder.Format(), bits)
	r.pcmLen, r.pos = decoder.PCMLen(), 0
	r.ib = &audio.IntBuffer{Format: decoder.Format(), SourceBitDepth: bits}
	r.mu.Unlock()
	r.Logger().WithField("sound", r.sound.String()).Debug("opened")
	return nil
}

// SoundInfo returns format of the file.
func (r *Reader) SoundInfo() info.Sound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sound
}

// FileInfo returns URI, PCM size and position.
func (r *Reader) FileInfo() info.File {
	r.mu.Lock()
	defer r.mu.Unlock()
	return info.File{URI: r.URI(), Size: r.pcmLen, Pos: r.pos}
}

// Acquire reads up to wanted bytes of whole samples. The payload with the
// last samples is marked done.
func (r *Reader) Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if r.Aborted() {
		return 0, port.ErrAbort
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decoder == nil {
		return 0, endpoint.ErrNotOpen
	}
	bps := r.sound.Bits / 8
	samples := wanted / bps
	if samples == 0 {
		samples = 1
	}
	if err := pl.Realloc(samples * bps); err != nil {
		return 0, err
	}
	if cap(r.ib.Data) < samples {
		r.ib.Data = make([]int, samples)
	}
	r.ib.Data = r.ib.Data[:samples]
	n, err := r.decoder.PCMBuffer(r.ib)
	if err != nil {
		return 0, err
	}
	for i, v := range r.ib.Data[:n] {
		s := int32(v)
		if r.sound.Bits == 8 {
			// wav keeps 8 bit samples unsigned
			s -= 128
		}
		pcm.PutSample(pl.Buf[i*bps:], r.sound.Bits, s)
	}
	pl.ValidSize = n * bps
	r.pos += int64(pl.ValidSize)
	pl.IsDone = n == 0 || r.pos >= r.pcmLen
	return pl.ValidSize, nil
}

// Release does nothing, data is copied to the payload.
func (r *Reader) Release(pl *payload.Payload, wait time.Duration) error {
	return nil
}

// Close closes the file.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.decoder = nil, nil
	return err
}

// Reset clears abort mark. The file must be reopened to be read again.
func (r *Reader) Reset() error {
	r.mu.Lock()
	r.pos = 0
	r.mu.Unlock()
	return r.Base.Reset()
}

// NewWriter returns wav writer endpoint.
func NewWriter(options ...endpoint.Option) *Writer {
	return &Writer{Base: endpoint.NewBase(port.Out, "wav_writer", options...)}
}

// SetSoundInfo sets format of written data. It must be called before the
// first data is released.
func (w *Writer) SetSoundInfo(s info.Sound) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedBitDepth, s)
	}
	if !pcm.Supported(s.Bits) {
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, s.Bits)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.encoder != nil && w.sound != s {
		return fmt.Errorf("wav: format changed to %s after data was written", s)
	}
	w.sound = s
	return nil
}

// Open creates the file.
func (w *Writer) Open() error {
	uri := w.URI()
	if uri == "" {
		return endpoint.ErrNoURI
	}
	file, err := os.Create(uri)
	if err != nil {
		return fmt.Errorf("create %s: %w", uri, err)
	}
	w.mu.Lock()
	w.file, w.written = file, 0
	w.mu.Unlock()
	return nil
}

// Acquire confirms wanted size, the port provides the buffer.
func (w *Writer) Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if w.Aborted() {
		return 0, port.ErrAbort
	}
	return wanted, nil
}

// Release encodes valid samples of pl.
func (w *Writer) Release(pl *payload.Payload, wait time.Duration) error {
	if w.Aborted() {
		return port.ErrAbort
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return endpoint.ErrNotOpen
	}
	if pl.ValidSize == 0 {
		return nil
	}
	if !w.sound.Valid() {
		return ErrNoSoundInfo
	}
	if w.encoder == nil {
		w.encoder = wav.NewEncoder(w.file, w.sound.SampleRate, w.sound.Bits, w.sound.Channels, wavFormatPCM)
		w.ib = &audio.IntBuffer{Format: w.sound.Format(), SourceBitDepth: w.sound.Bits}
	}
	bps := w.sound.Bits / 8
	// only whole frames
	frame := bps * w.sound.Channels
	size := pl.ValidSize / frame * frame
	samples := size / bps
	if cap(w.ib.Data) < samples {
		w.ib.Data = make([]int, samples)
	}
	w.ib.Data = w.ib.Data[:samples]
	for i := range w.ib.Data {
		s := pcm.Sample(pl.Buf[i*bps:], w.sound.Bits)
		if w.sound.Bits == 8 {
			s += 128
		}
		w.ib.Data[i] = int(s)
	}
	if err := w.encoder.Write(w.ib); err != nil {
		return err
	}
	w.written += int64(size)
	return nil
}

// Written returns number of PCM bytes written.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close finalizes the header and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	var errs []error
	if w.encoder != nil {
		errs = append(errs, w.encoder.Close())
	}
	errs = append(errs, w.file.Close())
	w.file, w.encoder = nil, nil
	return errors.Join(errs...)
}
