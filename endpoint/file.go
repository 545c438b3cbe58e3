package endpoint

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/payload"
	"github.com/dudk/gmf/port"
)

// File reads or writes raw bytes of a file. The in direction reports file
// size at Open and marks the last payload done at the end of file.
type File struct {
	*Base

	mu   sync.Mutex
	file *os.File
	info info.File
}

var (
	_ Endpoint     = (*File)(nil)
	_ FileReporter = (*File)(nil)
	_ Aborter      = (*File)(nil)
)

// NewFileReader returns in file endpoint.
func NewFileReader(options ...Option) *File {
	return &File{Base: NewBase(port.In, "file_reader", options...)}
}

// NewFileWriter returns out file endpoint.
func NewFileWriter(options ...Option) *File {
	return &File{Base: NewBase(port.Out, "file_writer", options...)}
}

// Open opens or creates the file.
func (f *File) Open() error {
	uri := f.URI()
	if uri == "" {
		return ErrNoURI
	}
	var (
		file *os.File
		err  error
	)
	if f.Dir() == port.In {
		file, err = os.Open(uri)
	} else {
		file, err = os.Create(uri)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", uri, err)
	}
	fi := info.File{URI: uri}
	if f.Dir() == port.In {
		st, err := file.Stat()
		if err != nil {
			file.Close()
			return fmt.Errorf("stat %s: %w", uri, err)
		}
		fi.Size = st.Size()
	}
	f.mu.Lock()
	f.file, f.info = file, fi
	f.mu.Unlock()
	f.log.WithField("size", fi.Size).Debug("opened")
	return nil
}

// Acquire reads up to wanted bytes for in endpoints. Out endpoints only
// confirm the size, data is written on Release.
func (f *File) Acquire(pl *payload.Payload, wanted int, wait time.Duration) (int, error) {
	if f.Aborted() {
		return 0, port.ErrAbort
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return 0, ErrNotOpen
	}
	if f.Dir() == port.Out {
		return wanted, nil
	}
	if err := pl.Realloc(wanted); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(f.file, pl.Buf[:wanted])
	f.info.Pos += int64(n)
	pl.ValidSize = n
	pl.IsDone = f.info.Size > 0 && f.info.Pos >= f.info.Size
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		pl.IsDone = true
	case err != nil:
		return n, err
	}
	return n, nil
}

// Release writes payload data for out endpoints.
func (f *File) Release(pl *payload.Payload, wait time.Duration) error {
	if f.Dir() == port.In {
		return nil
	}
	if f.Aborted() {
		return port.ErrAbort
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return ErrNotOpen
	}
	n, err := f.file.Write(pl.Data())
	f.info.Pos += int64(n)
	f.info.Size = f.info.Pos
	return err
}

// FileInfo returns URI, size and current position.
func (f *File) FileInfo() info.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

// Close closes the file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Reset clears abort mark and position. File must be reopened to read it
// again.
func (f *File) Reset() error {
	f.mu.Lock()
	f.info.Pos = 0
	f.mu.Unlock()
	return f.Base.Reset()
}
