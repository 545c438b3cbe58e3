package element

import (
	"sync"

	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/info"
)

// Audio is a base of audio elements. Sound and file info are read from the
// reporting path while the element processes, so they are kept under a
// mutex.
type Audio struct {
	*Base

	mu    sync.Mutex
	src   info.Sound
	sound info.Sound
	file  info.File
}

// NewAudio returns audio base.
func NewAudio(cfg Config) *Audio {
	return &Audio{Base: NewBase(cfg)}
}

// SourceSound returns sound info received from upstream.
func (a *Audio) SourceSound() info.Sound {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.src
}

// SetSourceSound replaces sound info of the input stream.
func (a *Audio) SetSourceSound(s info.Sound) {
	a.mu.Lock()
	a.src = s
	a.mu.Unlock()
}

// SoundInfo returns info of the produced stream.
func (a *Audio) SoundInfo() info.Sound {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sound
}

// SetSoundInfo replaces info of the produced stream.
func (a *Audio) SetSoundInfo(s info.Sound) {
	a.mu.Lock()
	a.sound = s
	a.mu.Unlock()
}

// UpdateSound sets info of the produced stream and reports it downstream.
func (a *Audio) UpdateSound(s info.Sound) error {
	a.SetSoundInfo(s)
	return a.NotifySound(s)
}

// FileInfo returns file info.
func (a *Audio) FileInfo() info.File {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file
}

// SetFileInfo replaces file info.
func (a *Audio) SetFileInfo(f info.File) {
	a.mu.Lock()
	a.file = f
	a.mu.Unlock()
}

// SetFileSize sets total size of the stream.
func (a *Audio) SetFileSize(size int64) {
	a.mu.Lock()
	a.file.Size = size
	a.mu.Unlock()
}

// UpdateFilePos advances stream position by n bytes.
func (a *Audio) UpdateFilePos(n int64) {
	a.mu.Lock()
	a.file.Pos += n
	a.mu.Unlock()
}

// ReceiveEvent takes sound info of the immediate predecessor, or of any
// sender while the element hasn't got one yet, and marks the element
// Initialized.
func (a *Audio) ReceiveEvent(pkt event.Packet, fromUpstream bool) error {
	if pkt.Type != event.ReportInfo || info.Type(pkt.Sub) != info.SoundType {
		return nil
	}
	if a.State() != event.None && !fromUpstream {
		return nil
	}
	s, ok := pkt.Payload.(info.Sound)
	if !ok {
		return ErrInvalidArg
	}
	a.SetSourceSound(s)
	a.log.WithField("from", pkt.From).Debugf("received sound info %s", s)
	if a.State() == event.None {
		a.SetState(event.Initialized)
	}
	return nil
}

// ResetInfo drops stream position.
func (a *Audio) ResetInfo() {
	a.mu.Lock()
	a.file.Pos = 0
	a.mu.Unlock()
}
