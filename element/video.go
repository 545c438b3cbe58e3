package element

import (
	"sync"

	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/info"
)

// Video is a base of video elements.
type Video struct {
	*Base

	mu    sync.Mutex
	src   info.Video
	video info.Video
}

// NewVideo returns video base.
func NewVideo(cfg Config) *Video {
	return &Video{Base: NewBase(cfg)}
}

// SourceVideo returns video info received from upstream.
func (v *Video) SourceVideo() info.Video {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.src
}

// VideoInfo returns info of the produced stream.
func (v *Video) VideoInfo() info.Video {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.video
}

// UpdateVideo sets info of the produced stream and reports it downstream.
func (v *Video) UpdateVideo(i info.Video) error {
	v.mu.Lock()
	v.video = i
	v.mu.Unlock()
	return v.NotifyVideo(i)
}

// ReceiveEvent takes video info the same way Audio takes sound info.
func (v *Video) ReceiveEvent(pkt event.Packet, fromUpstream bool) error {
	if pkt.Type != event.ReportInfo || info.Type(pkt.Sub) != info.VideoType {
		return nil
	}
	if v.State() != event.None && !fromUpstream {
		return nil
	}
	i, ok := pkt.Payload.(info.Video)
	if !ok {
		return ErrInvalidArg
	}
	v.mu.Lock()
	v.src = i
	v.mu.Unlock()
	if v.State() == event.None {
		v.SetState(event.Initialized)
	}
	return nil
}
