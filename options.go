package gmf

import (
	"github.com/sirupsen/logrus"

	"github.com/dudk/gmf/endpoint"
	"github.com/dudk/gmf/event"
)

// Option configures a pipeline.
type Option func(*Pipeline) error

// WithName sets pipeline name used in events and logs.
func WithName(name string) Option {
	return func(p *Pipeline) error {
		p.name = name
		return nil
	}
}

// WithLogger sets logger to pipeline.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) error {
		p.log = l
		return nil
	}
}

// WithIn attaches in endpoint to the head element.
func WithIn(e endpoint.Endpoint) Option {
	return func(p *Pipeline) error {
		if e == nil {
			return ErrInvalidArg
		}
		p.in = e
		return nil
	}
}

// WithOut attaches out endpoint to the tail element.
func WithOut(e endpoint.Endpoint) Option {
	return func(p *Pipeline) error {
		if e == nil {
			return ErrInvalidArg
		}
		p.out = e
		return nil
	}
}

// WithEventFunc sets user callback. See Pipeline.SetEvent.
func WithEventFunc(h event.Handler) Option {
	return func(p *Pipeline) error {
		p.handler = h
		return nil
	}
}
