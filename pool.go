package gmf

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dudk/gmf/audio"
	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/endpoint"
	"github.com/dudk/gmf/wav"
)

// Names of stock endpoints registered by NewDefaultPool.
const (
	FileReaderName = "file_reader"
	FileWriterName = "file_writer"
	WavReaderName  = "wav_reader"
	WavWriterName  = "wav_writer"
)

// ElementFactory allocates a new element instance.
type ElementFactory func() element.Element

// EndpointFactory allocates a new endpoint instance.
type EndpointFactory func(options ...endpoint.Option) endpoint.Endpoint

type poolEntry struct {
	caps     []element.Cap
	element  ElementFactory
	endpoint EndpointFactory
}

// Pool is a registry of named element and endpoint factories. Pipelines
// are assembled from names registered in the pool.
type Pool struct {
	mu        sync.RWMutex
	elements  map[string]poolEntry
	endpoints map[string]poolEntry
}

// NewPool returns empty pool.
func NewPool() *Pool {
	return &Pool{
		elements:  map[string]poolEntry{},
		endpoints: map[string]poolEntry{},
	}
}

// NewDefaultPool returns pool with stock audio elements and file and wav
// endpoints.
func NewDefaultPool() (*Pool, error) {
	p := NewPool()
	err := errors.Join(
		audio.Register(p),
		p.RegisterEndpoint(FileReaderName, []element.Cap{element.CapIORead}, func(options ...endpoint.Option) endpoint.Endpoint {
			return endpoint.NewFileReader(options...)
		}),
		p.RegisterEndpoint(FileWriterName, []element.Cap{element.CapIOWrite}, func(options ...endpoint.Option) endpoint.Endpoint {
			return endpoint.NewFileWriter(options...)
		}),
		p.RegisterEndpoint(WavReaderName, []element.Cap{element.CapIORead}, func(options ...endpoint.Option) endpoint.Endpoint {
			return wav.NewReader(options...)
		}),
		p.RegisterEndpoint(WavWriterName, []element.Cap{element.CapIOWrite}, func(options ...endpoint.Option) endpoint.Endpoint {
			return wav.NewWriter(options...)
		}),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RegisterElement adds element factory under name.
func (p *Pool) RegisterElement(name string, caps []element.Cap, factory func() element.Element) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: element %q", ErrInvalidArg, name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.elements[name]; ok {
		return fmt.Errorf("%w: element %s", ErrAlreadyExists, name)
	}
	p.elements[name] = poolEntry{caps: caps, element: factory}
	return nil
}

// RegisterEndpoint adds endpoint factory under name.
func (p *Pool) RegisterEndpoint(name string, caps []element.Cap, factory EndpointFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: endpoint %q", ErrInvalidArg, name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.endpoints[name]; ok {
		return fmt.Errorf("%w: endpoint %s", ErrAlreadyExists, name)
	}
	p.endpoints[name] = poolEntry{caps: caps, endpoint: factory}
	return nil
}

// NewElement allocates element registered under name.
func (p *Pool) NewElement(name string) (element.Element, error) {
	p.mu.RLock()
	e, ok := p.elements[name]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: element %s", ErrNotFound, name)
	}
	return e.element(), nil
}

// NewEndpoint allocates endpoint registered under name.
func (p *Pool) NewEndpoint(name string, options ...endpoint.Option) (endpoint.Endpoint, error) {
	p.mu.RLock()
	e, ok := p.endpoints[name]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: endpoint %s", ErrNotFound, name)
	}
	return e.endpoint(options...), nil
}

// Elements returns sorted names of registered elements.
func (p *Pool) Elements() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedNames(p.elements)
}

// Endpoints returns sorted names of registered endpoints.
func (p *Pool) Endpoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedNames(p.endpoints)
}

// Caps returns capabilities of element or endpoint registered under name.
func (p *Pool) Caps(name string) ([]element.Cap, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.elements[name]; ok {
		return e.caps, nil
	}
	if e, ok := p.endpoints[name]; ok {
		return e.caps, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Lookup returns sorted names of elements and endpoints with capability c.
func (p *Pool) Lookup(c element.Cap) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var names []string
	for _, m := range []map[string]poolEntry{p.elements, p.endpoints} {
		for name, e := range m {
			if element.HasCap(e.caps, c) {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// NewPipeline allocates elements by names and links them into a pipeline.
// Empty in or out name leaves the corresponding end open for ConnectPipe.
func (p *Pool) NewPipeline(in string, names []string, out string, options ...Option) (*Pipeline, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: pipeline without elements", ErrInvalidArg)
	}
	elements := make([]element.Element, 0, len(names))
	for _, name := range names {
		el, err := p.NewElement(name)
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}
	if in != "" {
		e, err := p.NewEndpoint(in)
		if err != nil {
			return nil, err
		}
		options = append([]Option{WithIn(e)}, options...)
	}
	if out != "" {
		e, err := p.NewEndpoint(out)
		if err != nil {
			return nil, err
		}
		options = append([]Option{WithOut(e)}, options...)
	}
	return New(elements, options...)
}

func sortedNames(m map[string]poolEntry) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
